package main

import (
	"fmt"
	"os"

	"github.com/scietool/jump/core/errors"
)

// renderError prints an error in the launcher's terminal format and returns
// the exit code to use. Classified errors carry an optional remediation hint.
func renderError(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if hint := errors.HintOf(err); hint != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", hint)
	}
	return exitErr
}
