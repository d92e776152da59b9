package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/scietool/jump/core/boot"
	"github.com/scietool/jump/core/errors"
	"github.com/scietool/jump/core/jmp"
	"github.com/scietool/jump/core/lift"
	"github.com/scietool/jump/core/logging"
	"github.com/scietool/jump/core/scie"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "1.6.0"

const (
	exitOK  = 0
	exitErr = 1
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	logCloser := logging.Configure()
	defer func() {
		_ = logCloser.Close()
	}()

	exePath, err := jmp.CurrentExe()
	if err != nil {
		return renderError(err)
	}

	// #nosec G304 -- the path is this process's own executable.
	data, err := os.ReadFile(exePath)
	if err != nil {
		return renderError(fmt.Errorf("read %s: %w", exePath, err))
	}

	// A bare jump ends in its own magic and carries no payload; it acts as
	// the boot-pack assembler.
	if jmp.IsBare(data) {
		jump, err := jmp.Load(exePath, version)
		if err != nil {
			return renderError(err)
		}
		if jump == nil {
			return renderError(fmt.Errorf("the trailer of %s is malformed", exePath))
		}
		return runBootPack(arguments[1:], *jump, exePath)
	}

	loaded, err := scie.LoadData(exePath, data)
	if err != nil {
		return renderError(err)
	}
	if err := lift.ValidateTip(loaded); err != nil {
		return renderError(errors.Wrap(err, errors.CategoryFormat, "invalid_scie", "", false))
	}

	if action, set := os.LookupEnv("SCIE"); set {
		if intrinsic, known := intrinsicOf(action); known {
			// Cleared so processes re-invoking this scie run it normally; on
			// a normal launch SCIE is re-exported as the scie's own path.
			if err := os.Unsetenv("SCIE"); err != nil {
				return renderError(err)
			}
			return intrinsic(arguments, loaded, exePath)
		}
	}
	return runLaunch(arguments, loaded, exePath)
}

type intrinsic func(arguments []string, loaded *scie.Scie, exePath string) int

func intrinsicOf(action string) (intrinsic, bool) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "inspect":
		return runInspect, true
	case "help":
		return runHelp, true
	case "list":
		return runList, true
	case "split":
		return runSplit, true
	case "install":
		return runInstall, true
	case "boot-pack":
		return runScieBootPack, true
	default:
		return nil, false
	}
}

func runInspect(_ []string, loaded *scie.Scie, _ string) int {
	if err := boot.Inspect(os.Stdout, loaded); err != nil {
		return renderError(err)
	}
	return exitOK
}

func runHelp(_ []string, loaded *scie.Scie, _ string) int {
	fmt.Print(boot.RenderHelp(&loaded.Lift))
	return exitOK
}

func runList(_ []string, loaded *scie.Scie, _ string) int {
	if err := boot.List(os.Stdout, &loaded.Lift); err != nil {
		return renderError(err)
	}
	return exitOK
}

func runSplit(arguments []string, loaded *scie.Scie, _ string) int {
	if err := boot.Split(loaded, arguments[1:], os.Stdout, os.Stderr); err != nil {
		return renderError(err)
	}
	return exitOK
}

func runInstall(arguments []string, loaded *scie.Scie, exePath string) int {
	dir := "."
	if len(arguments) > 1 {
		dir = arguments[1]
	}
	written, err := boot.InstallShims(dir, exePath, &loaded.Lift)
	if err != nil {
		return renderError(err)
	}
	for _, path := range written {
		fmt.Println(path)
	}
	return exitOK
}

// runScieBootPack packs manifests using this scie's own head as the launcher.
func runScieBootPack(arguments []string, loaded *scie.Scie, exePath string) int {
	return runBootPack(arguments[1:], loaded.Jump, exePath)
}
