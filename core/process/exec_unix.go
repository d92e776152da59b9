//go:build !windows

package process

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Exec replaces the current process image with the prepared command. The
// directives are expected to have been exported already; trailingArgs are
// appended after the manifest args. Exec only returns on failure.
func (p *Process) Exec(trailingArgs []string) error {
	path := p.Exe
	if resolved, err := exec.LookPath(p.Exe); err == nil {
		path = resolved
	}
	argv := append([]string{p.Exe}, p.Args...)
	argv = append(argv, trailingArgs...)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s %v: %w", p.Exe, argv[1:], err)
	}
	return nil
}

// ReplaceOrRun execs on POSIX; the returned exit code is only meaningful on
// platforms where replacement is impossible.
func (p *Process) ReplaceOrRun(trailingArgs []string) (int, error) {
	if err := p.Exec(trailingArgs); err != nil {
		return -1, err
	}
	return 0, nil
}
