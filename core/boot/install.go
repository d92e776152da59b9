package boot

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/scietool/jump/core/config"
)

// InstallShims writes one launcher script per named command into dir. Each
// shim re-invokes the parent scie with SCIE_BOOT fixed to its command, so
// hardlink-free BusyBox style installs work on any filesystem. The returned
// paths are in command name order.
func InstallShims(dir, sciePath string, lift *config.Lift) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shim directory %s: %w", dir, err)
	}
	var names []string
	for name := range lift.Boot.Commands {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var written []string
	for _, name := range names {
		path, err := writeShim(dir, sciePath, name)
		if err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeShim(dir, sciePath, name string) (string, error) {
	var path, script string
	var mode os.FileMode
	if runtime.GOOS == "windows" {
		path = filepath.Join(dir, name+".ps1")
		script = fmt.Sprintf("$env:SCIE_BOOT = \"%s\"\n& \"%s\" @args\nexit $LASTEXITCODE\n", name, sciePath)
		mode = 0o644
	} else {
		path = filepath.Join(dir, name)
		script = fmt.Sprintf("#!/bin/sh\nSCIE_BOOT=%s exec \"%s\" \"$@\"\n", name, sciePath)
		mode = 0o755
	}
	if err := os.WriteFile(path, []byte(script), mode); err != nil {
		return "", fmt.Errorf("write shim %s: %w", path, err)
	}
	return path, nil
}
