package launch

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scietool/jump/core/errors"
	"github.com/scietool/jump/core/placeholders"
	"github.com/scietool/jump/core/platform"
)

// maxExpansionDepth bounds placeholder recursion; references that feed back
// into themselves bottom out here instead of spinning.
const maxExpansionDepth = 64

func (c *Context) reify(value string) (string, error) {
	if c.depth >= maxExpansionDepth {
		return "", errors.Wrap(
			fmt.Errorf("placeholder expansion exceeded %d levels expanding %q; the placeholder references form a cycle", maxExpansionDepth, value),
			errors.CategoryConfig, "placeholder_cycle", "", false)
	}
	c.depth++
	defer func() { c.depth-- }()

	items, err := placeholders.Parse(value)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryConfig, "invalid_placeholder", "", false)
	}
	var expanded strings.Builder
	for _, item := range items {
		switch item.Kind {
		case placeholders.KindText:
			expanded.WriteString(item.Text)
		case placeholders.KindLeftBrace:
			expanded.WriteByte('{')
		case placeholders.KindPlaceholder:
			value, err := c.expand(item.Symbol)
			if err != nil {
				return "", err
			}
			expanded.WriteString(value)
		}
	}
	return expanded.String(), nil
}

func (c *Context) expand(symbol string) (string, error) {
	parts := strings.SplitN(symbol, ".", 3)
	if parts[0] != "scie" {
		name, err := c.reify(symbol)
		if err != nil {
			return "", err
		}
		return c.filePath(name)
	}
	if len(parts) == 1 {
		return c.scie.Path, nil
	}
	switch parts[1] {
	case "base":
		if len(parts) == 2 {
			if c.resolvingBase {
				return "", configError("the cache root cannot be defined in terms of {scie.base}")
			}
			return c.base, nil
		}
	case "lift":
		if len(parts) == 2 {
			return c.ensureLiftManifest()
		}
	case "argv0":
		if len(parts) == 2 {
			return filepath.Base(c.argv0), nil
		}
	case "platform":
		if len(parts) == 2 {
			return platform.Current(), nil
		}
		switch parts[2] {
		case "os":
			return platform.OS(), nil
		case "arch":
			return platform.Arch(), nil
		}
	case "env":
		if len(parts) == 3 {
			return c.expandEnv(parts[2])
		}
	case "files":
		if len(parts) == 3 {
			return c.expandFile(parts[2])
		}
	case "bindings":
		if len(parts) == 2 {
			if c.resolvingBase {
				return "", configError("the cache root cannot reference bindings")
			}
			return c.store.BindingsDir(), nil
		}
		return c.expandBinding(parts[2])
	case "user":
		if len(parts) == 3 && strings.HasPrefix(parts[2], "cache_dir") {
			return c.expandCacheDir(parts[2])
		}
	}
	return "", configError(fmt.Sprintf("unrecognized placeholder {%s}; placeholders beginning with scie. must name a known attribute", symbol))
}

// expandEnv handles scie.env.NAME and scie.env.NAME=default. The default is
// expanded in its own right, so it can itself be a placeholder. The name is
// resolved against the pending command env first, then the ambient
// environment, so a command sees the variables it sets for itself.
func (c *Context) expandEnv(expr string) (string, error) {
	expanded, err := c.reify(expr)
	if err != nil {
		return "", err
	}
	name, fallback, _ := strings.Cut(expanded, "=")
	if name == "" {
		return "", configError(fmt.Sprintf("the {scie.env.<name>} placeholder requires a non-empty name, given %q", expr))
	}
	value, handled, err := c.lookupCommandEnv(name)
	if err != nil {
		return "", err
	}
	if handled {
		if value == nil {
			return fallback, nil
		}
		return *value, nil
	}
	if value, present := os.LookupEnv(name); present {
		return value, nil
	}
	return fallback, nil
}

// reifyEnvValue expands an env directive's value with its own target name
// marked in flight, so PATH={scie.files.app}/bin:{scie.env.PATH} reads the
// ambient PATH instead of recursing into itself.
func (c *Context) reifyEnvValue(name, value string) (string, error) {
	c.resolvingEnv[name] = true
	defer delete(c.resolvingEnv, name)
	return c.reify(value)
}

// lookupCommandEnv resolves name against the env directives of the command
// being expanded, the way the child process will see them. A null directive
// hides the variable, the plain form defers to ambient when ambient has the
// name, and the = form always yields the directive's expanded value. Names
// whose own values are mid-expansion are skipped so self-references resolve
// ambiently.
func (c *Context) lookupCommandEnv(name string) (*string, bool, error) {
	if c.resolvingEnv[name] {
		return nil, false, nil
	}
	entry, found := c.pendingEnv[name]
	if !found {
		return nil, false, nil
	}
	if entry.Value == nil {
		return nil, true, nil
	}
	if !entry.Replace() {
		if value, present := os.LookupEnv(name); present {
			return &value, true, nil
		}
	}
	expanded, err := c.reifyEnvValue(name, *entry.Value)
	if err != nil {
		return nil, false, err
	}
	return &expanded, true, nil
}

// expandFile handles scie.files.NAME and scie.files.NAME:hash.
func (c *Context) expandFile(expr string) (string, error) {
	nameExpr, attribute, hasAttribute := strings.Cut(expr, ":")
	name, err := c.reify(nameExpr)
	if err != nil {
		return "", err
	}
	if !hasAttribute {
		return c.filePath(name)
	}
	if attribute != "hash" {
		return "", configError(fmt.Sprintf("unrecognized file attribute %q in placeholder {scie.files.%s}", attribute, expr))
	}
	file, found := c.filesByName[name]
	if !found {
		return "", configError(fmt.Sprintf("no file named %s is stored in this scie", name))
	}
	return file.Hash, nil
}

// expandBinding handles scie.bindings.NAME and scie.bindings.NAME:key, with
// an optional =default on the key. Referencing a binding runs it.
func (c *Context) expandBinding(expr string) (string, error) {
	if c.resolvingBase {
		return "", configError("the cache root cannot reference bindings")
	}
	nameExpr, keyExpr, hasKey := strings.Cut(expr, ":")
	name, err := c.reify(nameExpr)
	if err != nil {
		return "", err
	}
	bound, err := c.bind(name)
	if err != nil {
		return "", err
	}
	if !hasKey {
		return c.store.BindingDir(bound.identity), nil
	}
	expandedKey, err := c.reify(keyExpr)
	if err != nil {
		return "", err
	}
	key, fallback, _ := strings.Cut(expandedKey, "=")
	if value, present := bound.env[key]; present {
		return value, nil
	}
	return fallback, nil
}

// expandCacheDir handles scie.user.cache_dir and scie.user.cache_dir=fallback.
func (c *Context) expandCacheDir(expr string) (string, error) {
	rest := strings.TrimPrefix(expr, "cache_dir")
	if rest != "" && !strings.HasPrefix(rest, "=") {
		return "", configError(fmt.Sprintf("unrecognized placeholder {scie.user.%s}", expr))
	}
	cacheDir, err := platform.UserCacheDir()
	if err == nil {
		return cacheDir, nil
	}
	if rest == "" {
		return "", errors.Wrap(
			fmt.Errorf("no user cache dir could be located and {scie.user.cache_dir} names no fallback: %w", err),
			errors.CategoryPlatform, "no_cache_dir", "", false)
	}
	return c.reify(strings.TrimPrefix(rest, "="))
}

func (c *Context) filePath(name string) (string, error) {
	if c.resolvingBase {
		return "", configError("the cache root cannot reference scie files")
	}
	file, found := c.filesByName[name]
	if !found {
		return "", configError(fmt.Sprintf("no file named %s is stored in this scie", name))
	}
	if err := c.materialize(file); err != nil {
		return "", err
	}
	return c.store.ArtifactPath(*file), nil
}

func configError(message string) error {
	return errors.Wrap(stderrors.New(message), errors.CategoryConfig, "invalid_manifest", "", false)
}
