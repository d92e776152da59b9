//go:build windows

package process

// ReplaceOrRun cannot replace the process image on Windows, so the command is
// spawned with forwarded stdio and its exit code is propagated.
func (p *Process) ReplaceOrRun(trailingArgs []string) (int, error) {
	spawned := &Process{
		Exe:  p.Exe,
		Args: append(append([]string{}, p.Args...), trailingArgs...),
		Env:  p.Env,
	}
	return spawned.Run(nil)
}
