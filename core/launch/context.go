// Package launch turns a loaded scie and an invocation into a runnable
// process: it selects the boot command, expands placeholders, materializes
// the files and bindings the command references, and composes the child
// environment.
package launch

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scietool/jump/core/cas"
	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/errors"
	"github.com/scietool/jump/core/fingerprint"
	"github.com/scietool/jump/core/fsx"
	"github.com/scietool/jump/core/platform"
	"github.com/scietool/jump/core/process"
	"github.com/scietool/jump/core/scie"
)

// ErrNoCommand reports that the selector ran out of options; callers render
// the boot command help screen in response.
var ErrNoCommand = stderrors.New("no boot command selected")

const selectorHint = "You might begin debugging by inspecting the output of `SCIE=inspect` on this scie."

// Selection is a chosen boot command with its fully expanded process.
type Selection struct {
	Name          string
	Process       *process.Process
	Argv1Consumed bool
}

// Context carries the state threaded through one scie invocation.
type Context struct {
	scie  *scie.Scie
	argv0 string
	lift  *config.Lift
	store *cas.Store
	base  string

	filesByName map[string]*config.File
	offsets     map[string]int

	liftHash         string
	liftManifestPath string
	liftManifestDone bool

	installed map[string]bool
	loading   map[string]bool
	bound     map[string]boundBinding
	binding   map[string]bool

	// pendingEnv holds the env directives of the command currently being
	// expanded, keyed by target name with the last directive winning, so a
	// command's own env is visible to its own placeholders. resolvingEnv
	// tracks names whose values are mid-expansion; a self-reference falls
	// back to the ambient environment instead of recursing.
	pendingEnv   map[string]config.EnvEntry
	resolvingEnv map[string]bool

	resolvingBase bool
	depth         int
}

type boundBinding struct {
	identity string
	env      map[string]string
}

// New builds a Context for the given scie. argv0 is the name the scie was
// invoked as, before any path resolution.
func New(loaded *scie.Scie, argv0 string) (*Context, error) {
	context := &Context{
		scie:         loaded,
		argv0:        argv0,
		lift:         &loaded.Lift,
		filesByName:  map[string]*config.File{},
		offsets:      map[string]int{},
		liftHash:     fingerprint.DigestBytes(loaded.Manifest()),
		installed:    map[string]bool{},
		loading:      map[string]bool{},
		bound:        map[string]boundBinding{},
		binding:      map[string]bool{},
		resolvingEnv: map[string]bool{},
	}
	location := 0
	for index := range loaded.Lift.Files {
		file := &loaded.Lift.Files[index]
		context.filesByName[file.Name] = file
		if file.Key != "" {
			context.filesByName[file.Key] = file
		}
		if file.Source == "" {
			context.offsets[file.Name] = location
			if file.Size != nil {
				location += int(*file.Size)
			}
		}
	}
	base, err := context.resolveBase()
	if err != nil {
		return nil, err
	}
	context.base = base
	context.store = cas.NewStore(base)
	context.liftManifestPath = filepath.Join(base, context.liftHash, "lift.json")
	return context, nil
}

// Base is the resolved cache root.
func (c *Context) Base() string {
	return c.base
}

// Store is the content-addressed store rooted at Base.
func (c *Context) Store() *cas.Store {
	return c.store
}

func (c *Context) resolveBase() (string, error) {
	raw := os.Getenv("SCIE_BASE")
	if raw == "" {
		raw = c.lift.Base
	}
	if raw == "" {
		cacheDir, err := platform.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(
				fmt.Errorf("locate a cache root for scie %s: %w", c.lift.Name, err),
				errors.CategoryPlatform, "no_cache_dir",
				"Set SCIE_BASE to choose a cache root explicitly.", false)
		}
		raw = filepath.Join(cacheDir, "nce")
	}
	c.resolvingBase = true
	defer func() { c.resolvingBase = false }()
	resolved, err := c.reify(raw)
	if err != nil {
		return "", err
	}
	return expandUser(resolved)
}

func expandUser(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home dir in path %s: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

// SelectCommand resolves the boot command for this invocation. args is the
// full argv of the jump process. Selection order: SCIE_BOOT, the basename the
// scie was invoked as, argv[1], then the default command.
func (c *Context) SelectCommand(args []string) (*Selection, error) {
	if bootName, set := os.LookupEnv("SCIE_BOOT"); set {
		// Cleared so children re-executing this scie do not loop back into
		// the same command.
		if err := os.Unsetenv("SCIE_BOOT"); err != nil {
			return nil, fmt.Errorf("clear SCIE_BOOT: %w", err)
		}
		selection, err := c.trySelect(bootName, false)
		if err != nil || selection != nil {
			return selection, err
		}
		return nil, errors.Wrap(
			fmt.Errorf("SCIE_BOOT=%s names no command in this scie: %w", bootName, ErrNoCommand),
			errors.CategorySelector, "unknown_boot_command", selectorHint, false)
	}

	if c.hasNamedCommands() {
		stem := strings.TrimSuffix(filepath.Base(c.argv0), platform.ExeExt())
		selection, err := c.trySelect(stem, false)
		if err != nil || selection != nil {
			return selection, err
		}
	}
	if len(args) > 1 {
		selection, err := c.trySelect(args[1], true)
		if err != nil || selection != nil {
			return selection, err
		}
	}
	selection, err := c.trySelect("", false)
	if err != nil || selection != nil {
		return selection, err
	}
	return nil, errors.Wrap(
		fmt.Errorf("scie %s has no default command and no command was named: %w", c.lift.Name, ErrNoCommand),
		errors.CategorySelector, "no_command_selected", selectorHint, false)
}

func (c *Context) hasNamedCommands() bool {
	for name := range c.lift.Boot.Commands {
		if name != "" {
			return true
		}
	}
	return false
}

func (c *Context) trySelect(name string, argv1Consumed bool) (*Selection, error) {
	command, found := c.lift.Boot.Commands[name]
	if !found {
		return nil, nil
	}
	proc, err := c.prepareProcess(command)
	if err != nil {
		return nil, err
	}
	if err := c.materializeEager(); err != nil {
		return nil, err
	}
	return &Selection{Name: name, Process: proc, Argv1Consumed: argv1Consumed}, nil
}

func (c *Context) prepareProcess(command config.Command) (*process.Process, error) {
	// Bindings prepare their own processes mid-expansion, so the pending env
	// is saved and restored rather than overwritten.
	saved := c.pendingEnv
	c.pendingEnv = nil
	if command.Env != nil {
		c.pendingEnv = make(map[string]config.EnvEntry, len(command.Env.Entries))
		for _, entry := range command.Env.Entries {
			c.pendingEnv[entry.TargetName()] = entry
		}
	}
	defer func() { c.pendingEnv = saved }()

	exe, err := c.reify(command.Exe)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, len(command.Args))
	for _, arg := range command.Args {
		expanded, err := c.reify(arg)
		if err != nil {
			return nil, err
		}
		args = append(args, expanded)
	}
	var vars []process.Var
	if command.Env != nil {
		for _, entry := range command.Env.Entries {
			var value *string
			if entry.Value != nil {
				expanded, err := c.reifyEnvValue(entry.TargetName(), *entry.Value)
				if err != nil {
					return nil, err
				}
				value = &expanded
			}
			variable, err := process.FromEntry(entry.Name, value)
			if err != nil {
				return nil, errors.Wrap(err, errors.CategoryConfig, "invalid_env_entry", "", false)
			}
			vars = append(vars, variable)
		}
	}
	return &process.Process{Exe: exe, Args: args, Env: process.EnvVars{Vars: vars}}, nil
}

func (c *Context) ensureLiftManifest() (string, error) {
	if c.liftManifestDone {
		return c.liftManifestPath, nil
	}
	rendered, err := c.scie.Config.Render(config.Fmt{Pretty: true, TrailingNewline: true})
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(c.liftManifestPath), 0o755); err != nil {
		return "", fmt.Errorf("create lift manifest dir: %w", err)
	}
	if err := fsx.WriteFileAtomic(c.liftManifestPath, rendered, 0o644); err != nil {
		return "", fmt.Errorf("write lift manifest to %s: %w", c.liftManifestPath, err)
	}
	c.liftManifestDone = true
	return c.liftManifestPath, nil
}
