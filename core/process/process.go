// Package process models the final command a scie launches: its executable,
// arguments and environment directives, with the ordering guarantee that
// removals are applied first, then defaults, then replacements.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/scietool/jump/core/jcs"
)

type Kind int

const (
	// KindDefault sets the variable only when the ambient env lacks it.
	KindDefault Kind = iota
	// KindReplace always sets the variable.
	KindReplace
	// KindRemove unsets one exact variable.
	KindRemove
	// KindRemoveMatching unsets every ambient variable the pattern matches.
	KindRemoveMatching
)

type Var struct {
	Kind    Kind
	Name    string
	Value   string
	Matcher *regexp.Regexp
}

// FromEntry converts one manifest env directive into a Var. A leading = on
// the name marks the replace form; a nil value marks removal. A plain-form
// removal treats the name as a pattern applied to the ambient env.
func FromEntry(name string, value *string) (Var, error) {
	replace := strings.HasPrefix(name, "=")
	target := strings.TrimPrefix(name, "=")
	switch {
	case value != nil && replace:
		return Var{Kind: KindReplace, Name: target, Value: *value}, nil
	case value != nil:
		return Var{Kind: KindDefault, Name: target, Value: *value}, nil
	case replace:
		return Var{Kind: KindRemove, Name: target}, nil
	default:
		matcher, err := regexp.Compile(target)
		if err != nil {
			return Var{}, fmt.Errorf("env removal %q is not a valid pattern: %w", target, err)
		}
		return Var{Kind: KindRemoveMatching, Name: target, Matcher: matcher}, nil
	}
}

type EnvVars struct {
	Vars []Var
}

// Op is one concrete environment mutation. A nil Value unsets the variable.
type Op struct {
	Name  string
	Value *string
}

// Ops translates the directives into an ordered mutation sequence against
// the given ambient environ ("k=v" entries): removals first, then defaults
// resolved against the ambient values, then replacements.
func (e EnvVars) Ops(environ []string) []Op {
	ambient := map[string]string{}
	var ambientNames []string
	for _, entry := range environ {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			continue
		}
		if _, seen := ambient[name]; !seen {
			ambientNames = append(ambientNames, name)
		}
		ambient[name] = value
	}

	type pair struct{ name, value string }
	var defaults []pair
	var replacements []pair
	removals := map[string]struct{}{}
	for _, variable := range e.Vars {
		switch variable.Kind {
		case KindDefault:
			defaults = append(defaults, pair{variable.Name, variable.Value})
		case KindReplace:
			replacements = append(replacements, pair{variable.Name, variable.Value})
		case KindRemove:
			removals[variable.Name] = struct{}{}
		case KindRemoveMatching:
			for _, name := range ambientNames {
				if variable.Matcher.MatchString(name) {
					removals[name] = struct{}{}
				}
			}
		}
	}

	removedNames := make([]string, 0, len(removals))
	for name := range removals {
		removedNames = append(removedNames, name)
	}
	sort.Strings(removedNames)

	var ops []Op
	for _, name := range removedNames {
		ops = append(ops, Op{Name: name})
	}
	for _, entry := range defaults {
		value := entry.value
		if _, removed := removals[entry.name]; !removed {
			if ambientValue, present := ambient[entry.name]; present {
				value = ambientValue
			}
		}
		resolved := value
		ops = append(ops, Op{Name: entry.name, Value: &resolved})
	}
	for _, entry := range replacements {
		resolved := entry.value
		ops = append(ops, Op{Name: entry.name, Value: &resolved})
	}
	return ops
}

// Export applies the directives to the current process environment.
func (e EnvVars) Export() error {
	for _, op := range e.Ops(os.Environ()) {
		if op.Value == nil {
			if err := os.Unsetenv(op.Name); err != nil {
				return fmt.Errorf("unset %s: %w", op.Name, err)
			}
			continue
		}
		if err := os.Setenv(op.Name, *op.Value); err != nil {
			return fmt.Errorf("set %s: %w", op.Name, err)
		}
	}
	return nil
}

// Environ applies the directives to a copy of environ and returns the result.
func (e EnvVars) Environ(environ []string) []string {
	result := append([]string{}, environ...)
	for _, op := range e.Ops(environ) {
		prefix := op.Name + "="
		kept := result[:0]
		for _, entry := range result {
			if !strings.HasPrefix(entry, prefix) {
				kept = append(kept, entry)
			}
		}
		result = kept
		if op.Value != nil {
			result = append(result, prefix+*op.Value)
		}
	}
	return result
}

// Process is a fully expanded command ready to launch.
type Process struct {
	Exe  string
	Args []string
	Env  EnvVars
}

// Fingerprint returns the identity hash of the process: a sha256 over the
// canonical JSON of the exe, args and the env mutations that set values.
// Two invocations with materially identical expansions share a fingerprint.
func (p *Process) Fingerprint() (string, error) {
	settings := map[string]string{}
	for _, op := range p.Env.Ops(os.Environ()) {
		if op.Value != nil {
			settings[op.Name] = *op.Value
		}
	}
	return jcs.IdentityDigest(jcs.ProcessIdentity{Exe: p.Exe, Args: p.Args, Env: settings})
}

// Command builds an exec.Cmd with the composed environment and inherited
// stdio.
func (p *Process) Command(extraEnv []string) *exec.Cmd {
	// #nosec G204 -- the launched executable comes from the scie's own manifest.
	command := exec.Command(p.Exe, p.Args...)
	command.Env = append(p.Env.Environ(os.Environ()), extraEnv...)
	command.Stdin = os.Stdin
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	return command
}

// Output spawns the process with stdin and stderr inherited, captures its
// stdout, and returns the bytes. A non-zero exit is an error since the
// captured stream would be incomplete.
func (p *Process) Output(extraEnv []string) ([]byte, error) {
	command := p.Command(extraEnv)
	var stdout bytes.Buffer
	command.Stdout = &stdout
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("capture output of %s %v: %w", p.Exe, p.Args, err)
	}
	return stdout.Bytes(), nil
}

// Run spawns the process, waits for it, and returns its exit code.
func (p *Process) Run(extraEnv []string) (int, error) {
	command := p.Command(extraEnv)
	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("spawn %s %v: %w", p.Exe, p.Args, err)
	}
	return 0, nil
}
