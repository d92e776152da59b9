package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/jmp"
	"github.com/scietool/jump/core/lift"
	"github.com/scietool/jump/core/pack"
)

type bootPackArgs struct {
	singleLine  bool
	jumpPath    string
	manifests   []string
	showHelp    bool
	showVersion bool
}

func parseBootPackArgs(arguments []string) (*bootPackArgs, error) {
	parsed := &bootPackArgs{singleLine: true}
	for index := 0; index < len(arguments); index++ {
		arg := arguments[index]
		switch arg {
		case "-h", "--help":
			parsed.showHelp = true
		case "-V", "--version":
			parsed.showVersion = true
		case "-1", "--single-lift-line":
			parsed.singleLine = true
		case "--no-single-lift-line":
			parsed.singleLine = false
		case "-sj", "--jump", "--scie-jump":
			index++
			if index == len(arguments) {
				return nil, fmt.Errorf("%s requires a scie-jump path argument", arg)
			}
			parsed.jumpPath = arguments[index]
		default:
			if arg != "-" && strings.HasPrefix(arg, "-") {
				return nil, fmt.Errorf("unrecognized boot-pack option %s", arg)
			}
			parsed.manifests = append(parsed.manifests, arg)
		}
	}
	return parsed, nil
}

func runBootPack(arguments []string, jump config.Jump, jumpPath string) int {
	parsed, err := parseBootPackArgs(arguments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printBootPackUsage(os.Stderr)
		return exitErr
	}
	if parsed.showHelp {
		printBootPackUsage(os.Stdout)
		return exitOK
	}
	if parsed.showVersion {
		// Bare version on stdout; older jumps are interrogated this way when
		// their trailers record no version.
		fmt.Println(version)
		return exitOK
	}

	if parsed.jumpPath != "" {
		custom, err := jmp.Load(parsed.jumpPath, version)
		if err != nil {
			return renderError(err)
		}
		if custom == nil {
			return renderError(fmt.Errorf("the file at %s is not a scie-jump executable", parsed.jumpPath))
		}
		jump = *custom
		jumpPath = parsed.jumpPath
	}

	manifests := parsed.manifests
	if len(manifests) == 0 {
		if _, err := os.Stat("lift.json"); err != nil {
			fmt.Fprintln(os.Stderr, "Error: no lift manifests given and no lift.json in the current directory.")
			fmt.Fprintln(os.Stderr)
			printBootPackUsage(os.Stderr)
			return exitErr
		}
		manifests = []string{"lift.json"}
	}
	for _, manifestPath := range manifests {
		loaded, err := loadManifest(manifestPath)
		if err != nil {
			return renderError(err)
		}
		outPath, err := pack.Pack(loaded, jump, jumpPath, ".", parsed.singleLine)
		if err != nil {
			return renderError(err)
		}
		fmt.Printf("%s: %s\n", loaded.ManifestPath, outPath)
	}
	return exitOK
}

// loadManifest reads a lift manifest argument: a lift.json path, a directory
// holding one, or - for a manifest piped on stdin with payload files resolved
// against the current directory.
func loadManifest(manifestPath string) (*lift.Loaded, error) {
	if manifestPath != "-" {
		return lift.Load(manifestPath)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read lift manifest from stdin: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve the current directory: %w", err)
	}
	return lift.LoadBytes(data, "<stdin>", cwd)
}

func printBootPackUsage(writer io.Writer) {
	fmt.Fprintf(writer, `Usage: scie-jump [options] [lift manifests...]

Packs each given lift manifest (a lift.json file, a directory holding one,
or - for stdin) into a single-file scie executable in the current directory.
With no arguments the lift.json in the current directory is packed.

Options:
 -h, --help                 Print this help and exit.
 -V, --version              Print the scie-jump version and exit.
 -1, --single-lift-line     Embed the lift manifest on a single line. This is
                            the default.
     --no-single-lift-line  Embed the lift manifest pretty-printed.
 -sj, --jump, --scie-jump   Path of the scie-jump binary to pack into the
                            scies instead of this executable.
`)
}
