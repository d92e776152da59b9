package boot

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/platform"
	"github.com/scietool/jump/core/scie"
	"github.com/scietool/jump/core/zipx"
)

// chosenFiles tracks an optional name restriction for split and which of the
// requested names actually matched something.
type chosenFiles struct {
	names map[string]bool
}

func (c *chosenFiles) add(name string) {
	if c.names == nil {
		c.names = map[string]bool{}
	}
	c.names[name] = false
}

func (c *chosenFiles) empty() bool {
	return len(c.names) == 0
}

// matches reports whether any of the given aliases was requested, marking it
// as found. An empty restriction matches everything.
func (c *chosenFiles) matches(aliases ...string) bool {
	if c.empty() {
		return true
	}
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if _, requested := c.names[alias]; requested {
			c.names[alias] = true
			return true
		}
	}
	return false
}

func (c *chosenFiles) unmatched() []string {
	var missing []string
	for name, found := range c.names {
		if !found {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Split writes the scie's constituent parts into a directory: the bare jump
// head, each payload file, and the canonicalized lift manifest. Scie-tote
// members are extracted from the tote rather than written as the tote. With
// dryRun the plan is printed instead. Names after -- restrict the output;
// requested names that match nothing are reported on stderr.
func Split(loaded *scie.Scie, args []string, stdout, stderr io.Writer) error {
	dryRun := false
	extraArgsSeen := false
	chosen := &chosenFiles{}
	dir := ""
	for _, arg := range args {
		switch {
		case (arg == "-n" || arg == "--dry-run") && !extraArgsSeen:
			dryRun = true
		case arg == "--":
			extraArgsSeen = true
		case extraArgsSeen:
			chosen.add(arg)
		default:
			if dir != "" {
				return fmt.Errorf("cannot split to %s in addition to %s; only one split dir is allowed", arg, dir)
			}
			dir = arg
		}
	}
	if dir == "" {
		dir = "."
	}
	if !dryRun {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create split directory %s: %w", dir, err)
		}
	}

	if chosen.matches("scie-jump") {
		jumpPath := filepath.Join(dir, "scie-jump"+platform.ExeExt())
		if dryRun {
			fmt.Fprintf(stdout, "%s %d executable\n", jumpPath, loaded.Jump.Size)
		} else if err := writeNew(jumpPath, loaded.Data[:loaded.Jump.Size], 0o755); err != nil {
			return err
		}
	}

	payload := loaded.Payload()
	files := loaded.Lift.Files
	var toteReader *zip.Reader
	toteIndex := -1
	if hasToteMembers(files) {
		toteIndex = len(files) - 1
	}

	location := 0
	for index := range files {
		file := &files[index]
		if file.Source != "" {
			continue
		}
		size := 0
		if file.Size != nil {
			size = int(*file.Size)
		}
		start := location
		location += size
		if size == 0 {
			continue
		}
		if index == toteIndex {
			reader, err := zip.NewReader(bytes.NewReader(payload[start:location]), int64(size))
			if err != nil {
				return fmt.Errorf("open the scie-tote of %s: %w", loaded.Path, err)
			}
			toteReader = reader
			continue
		}
		if !chosen.matches(file.Name, file.Key) {
			continue
		}
		if err := emitFile(dir, file, payload[start:location], dryRun, stdout); err != nil {
			return err
		}
	}

	if toteReader != nil {
		for index := range files {
			file := &files[index]
			if file.Source != "" || file.Size == nil || *file.Size != 0 {
				continue
			}
			if !chosen.matches(file.Name, file.Key) {
				continue
			}
			member, err := readToteMember(toteReader, file.Name)
			if err != nil {
				return err
			}
			if err := emitFile(dir, file, member, dryRun, stdout); err != nil {
				return err
			}
		}
	}

	if chosen.matches("lift.json") {
		rendered, err := renderSplitManifest(loaded, toteReader, toteIndex)
		if err != nil {
			return err
		}
		manifestPath := filepath.Join(dir, "lift.json")
		if dryRun {
			fmt.Fprintf(stdout, "%s %d blob\n", manifestPath, len(rendered))
		} else if err := writeNew(manifestPath, rendered, 0o644); err != nil {
			return err
		}
	}

	if missing := chosen.unmatched(); len(missing) > 0 {
		fmt.Fprintf(stderr, "\nThe following selected files could not be found in this scie:\n+ %s\n", strings.Join(missing, "\n+ "))
	}
	return nil
}

func hasToteMembers(files []config.File) bool {
	for _, file := range files {
		if file.Source == "" && file.Size != nil && *file.Size == 0 {
			return true
		}
	}
	return false
}

func readToteMember(tote *zip.Reader, name string) ([]byte, error) {
	entry, err := tote.Open(name)
	if err != nil {
		return nil, fmt.Errorf("expected to find %s in the scie-tote: %w", name, err)
	}
	defer func() {
		_ = entry.Close()
	}()
	return io.ReadAll(entry)
}

func emitFile(dir string, file *config.File, data []byte, dryRun bool, stdout io.Writer) error {
	dst := filepath.Join(dir, file.Name)
	if dryRun {
		size := len(data)
		if file.Type == config.TypeDirectory {
			// A directory is stored zipped; the split extracts it loose, so
			// the fair warning is the uncompressed size.
			if unpacked, err := uncompressedSize(data); err == nil {
				size = unpacked
			}
		}
		fmt.Fprintf(stdout, "%s %d %s", dst, size, roleOf(file))
		if file.Key != "" {
			fmt.Fprintf(stdout, " (%s)", file.Key)
		}
		fmt.Fprintln(stdout)
		return nil
	}
	if file.Type == config.TypeDirectory {
		reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("open zipped directory %s: %w", file.Name, err)
		}
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dst, err)
		}
		return zipx.Extract(reader, dst)
	}
	mode := os.FileMode(0o644)
	if file.Executable {
		mode = 0o755
	}
	return writeNew(dst, data, mode)
}

func uncompressedSize(zipData []byte) (int, error) {
	reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, entry := range reader.File {
		total += int(entry.UncompressedSize64)
	}
	return total, nil
}

func roleOf(file *config.File) string {
	switch {
	case file.Type == config.TypeDirectory:
		return "directory"
	case file.Type == config.TypeBlob || file.Type == "":
		if file.Executable {
			return "executable"
		}
		return "blob"
	default:
		return "archive"
	}
}

// renderSplitManifest canonicalizes the manifest for a loose checkout: the
// synthesized scie-tote disappears and its members get their real sizes back,
// so re-packing the split directory reproduces the original scie.
func renderSplitManifest(loaded *scie.Scie, tote *zip.Reader, toteIndex int) ([]byte, error) {
	output := *loaded.Config
	lift := output.Scie.Lift
	if tote != nil && toteIndex >= 0 {
		members := make([]config.File, 0, len(lift.Files)-1)
		for index, file := range lift.Files {
			if index == toteIndex {
				continue
			}
			if file.Source == "" && file.Size != nil && *file.Size == 0 {
				entry, err := tote.Open(file.Name)
				if err != nil {
					return nil, fmt.Errorf("expected to find %s in the scie-tote: %w", file.Name, err)
				}
				info, err := entry.Stat()
				_ = entry.Close()
				if err != nil {
					return nil, fmt.Errorf("stat %s in the scie-tote: %w", file.Name, err)
				}
				restored := uint64(info.Size())
				file.Size = &restored
			}
			members = append(members, file)
		}
		lift.Files = members
	}
	output.Scie.Lift = lift
	return output.Render(config.Fmt{Pretty: true, TrailingNewline: true})
}

func writeNew(path string, data []byte, mode os.FileMode) error {
	// #nosec G304 -- the destination is derived from the user-chosen split dir.
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("open %s for extraction: %w", path, err)
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract to %s: %w", path, err)
	}
	return out.Close()
}
