package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/scietool/jump/core/boot"
	"github.com/scietool/jump/core/dotenv"
	"github.com/scietool/jump/core/launch"
	"github.com/scietool/jump/core/scie"
)

func runLaunch(arguments []string, loaded *scie.Scie, exePath string) int {
	if loaded.Lift.LoadDotenv {
		cwd, err := os.Getwd()
		if err != nil {
			return renderError(err)
		}
		loadedPath, err := dotenv.Load(cwd)
		if err != nil {
			return renderError(err)
		}
		if loadedPath != "" {
			slog.Debug("loaded dotenv file", "path", loadedPath)
		}
	}

	context, err := launch.New(loaded, arguments[0])
	if err != nil {
		return renderError(err)
	}
	selection, err := context.SelectCommand(arguments)
	if err != nil {
		if stderrors.Is(err, launch.ErrNoCommand) {
			fmt.Fprint(os.Stderr, boot.RenderHelp(&loaded.Lift))
			return exitErr
		}
		return renderError(err)
	}

	// Children see the scie they were launched from, the name it was invoked
	// as, and its bindings dir, so a command can re-enter its own scie.
	if err := os.Setenv("SCIE", exePath); err != nil {
		return renderError(err)
	}
	if err := os.Setenv("SCIE_ARGV0", filepath.Base(arguments[0])); err != nil {
		return renderError(err)
	}
	if err := os.Setenv("SCIE_BINDINGS", context.Store().BindingsDir()); err != nil {
		return renderError(err)
	}
	if err := selection.Process.Env.Export(); err != nil {
		return renderError(err)
	}

	trailing := arguments[1:]
	if selection.Argv1Consumed && len(trailing) > 0 {
		trailing = trailing[1:]
	}
	slog.Debug("launching boot command",
		"command", selection.Name, "exe", selection.Process.Exe, "args", selection.Process.Args)
	code, err := selection.Process.ReplaceOrRun(trailing)
	if err != nil {
		return renderError(err)
	}
	return code
}
