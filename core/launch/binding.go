package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/errors"
	"github.com/scietool/jump/core/fsx"
)

// bind runs the named boot binding if its identity has not yet completed
// successfully and returns its captured env. Identity is the fingerprint of
// the fully expanded process, so a binding re-runs when its expansion
// materially changes and never otherwise.
func (c *Context) bind(name string) (boundBinding, error) {
	if bound, done := c.bound[name]; done {
		return bound, nil
	}
	if c.binding[name] {
		return boundBinding{}, configError(fmt.Sprintf("binding %s participates in a reference cycle", name))
	}
	c.binding[name] = true
	defer delete(c.binding, name)

	command, found := c.lift.Boot.Bindings[name]
	if !found {
		return boundBinding{}, configError(fmt.Sprintf("no boot binding named %s", name))
	}
	proc, err := c.prepareProcess(command)
	if err != nil {
		return boundBinding{}, err
	}
	identity, err := proc.Fingerprint()
	if err != nil {
		return boundBinding{}, err
	}

	outputsPath := c.store.BindingOutputsPath(identity)
	if env, loaded, err := loadBindingEnv(outputsPath); err != nil {
		return boundBinding{}, err
	} else if loaded {
		bound := boundBinding{identity: identity, env: env}
		c.bound[name] = bound
		return bound, nil
	}

	var env map[string]string
	err = fsx.WithExclusiveLock(c.store.BindingLockPath(identity), func() error {
		var loaded bool
		var err error
		if env, loaded, err = loadBindingEnv(outputsPath); err != nil || loaded {
			return err
		}

		workDir := c.store.BindingDir(identity)
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("create binding work dir %s: %w", workDir, err)
		}
		envFile, err := freshBindingEnvFile(workDir)
		if err != nil {
			return err
		}
		exitCode, err := proc.Run([]string{
			"SCIE_BINDING_ENV=" + envFile,
			"SCIE_BINDINGS=" + c.store.BindingsDir(),
		})
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return errors.Wrap(
				fmt.Errorf("boot binding %s exited with code %d", name, exitCode),
				errors.CategoryBinding, "binding_failed", "", false)
		}

		captured, err := os.ReadFile(envFile)
		if err != nil {
			return fmt.Errorf("read binding env written by %s: %w", name, err)
		}
		env = parseBindingEnv(string(captured))
		return fsx.WriteFileAtomic(outputsPath, renderBindingEnv(env), 0o644)
	})
	if err != nil {
		return boundBinding{}, err
	}
	bound := boundBinding{identity: identity, env: env}
	c.bound[name] = bound
	return bound, nil
}

func freshBindingEnvFile(workDir string) (string, error) {
	envFile := filepath.Join(workDir, ".binding-env")
	if err := os.WriteFile(envFile, nil, 0o644); err != nil {
		return "", fmt.Errorf("create binding env file %s: %w", envFile, err)
	}
	return envFile, nil
}

func loadBindingEnv(path string) (map[string]string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read binding outputs at %s: %w", path, err)
	}
	return parseBindingEnv(string(data)), true, nil
}

func parseBindingEnv(content string) map[string]string {
	env := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		name, value, _ := strings.Cut(trimmed, "=")
		env[name] = value
	}
	return env
}

func renderBindingEnv(env map[string]string) []byte {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	var rendered strings.Builder
	for _, name := range names {
		rendered.WriteString(name)
		rendered.WriteByte('=')
		rendered.WriteString(env[name])
		rendered.WriteByte('\n')
	}
	return []byte(rendered.String())
}

// materializeSourced streams a file out of the binding named by its source
// field: the binding writes the raw bytes to stdout and they pass through
// the store's verification like any embedded payload.
func (c *Context) materializeSourced(file *config.File) error {
	if c.store.IsMaterialized(file.Hash) {
		return nil
	}
	if c.loading[file.Name] {
		return configError(fmt.Sprintf("file %s and its source binding %s form a reference cycle", file.Name, file.Source))
	}
	c.loading[file.Name] = true
	defer delete(c.loading, file.Name)

	command, found := c.lift.Boot.Bindings[file.Source]
	if !found {
		return configError(fmt.Sprintf("file %s names source binding %s which does not exist", file.Name, file.Source))
	}
	proc, err := c.prepareProcess(command)
	if err != nil {
		return err
	}
	payload, err := proc.Output([]string{"SCIE_BINDINGS=" + c.store.BindingsDir()})
	if err != nil {
		return errors.Wrap(err, errors.CategoryBinding, "source_binding_failed", "", false)
	}
	if _, err := c.store.Materialize(*file, payload); err != nil {
		return errors.Wrap(err, errors.CategoryIntegrity, "sourced_payload_mismatch", "", false)
	}
	return nil
}
