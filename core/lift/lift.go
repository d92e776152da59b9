// Package lift loads lift manifests in the two modes the launcher needs:
// permissive for boot-pack inputs, where missing file metadata is computed,
// and strict for manifests read from a scie tip, where everything must be
// present and consistent.
package lift

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/fingerprint"
	"github.com/scietool/jump/core/fsx"
	"github.com/scietool/jump/core/scie"
	"github.com/scietool/jump/core/zipx"
)

// InferFileType picks a file type from the entry name's extension when the
// manifest does not declare one.
func InferFileType(name string) config.FileType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return config.TypeZip
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return config.TypeTarGz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return config.TypeTarBz2
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"),
		strings.HasSuffix(lower, ".tar.lzma"), strings.HasSuffix(lower, ".tlz"):
		return config.TypeTarXz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return config.TypeTarZst
	case strings.HasSuffix(lower, ".tar"):
		return config.TypeTar
	default:
		return config.TypeBlob
	}
}

// Validate checks the manifest invariants shared by both load modes: unique
// names, unique non-colliding keys, known file types, and sourced files that
// name real bindings and carry explicit metadata.
func Validate(lift *config.Lift) error {
	names := map[string]struct{}{}
	for _, file := range lift.Files {
		if _, exists := names[file.Name]; exists {
			return fmt.Errorf("duplicate file name %q in lift manifest", file.Name)
		}
		names[file.Name] = struct{}{}
	}
	keys := map[string]struct{}{}
	for _, file := range lift.Files {
		if file.Key == "" {
			continue
		}
		if _, exists := keys[file.Key]; exists {
			return fmt.Errorf("duplicate file key %q in lift manifest", file.Key)
		}
		if _, collides := names[file.Key]; collides {
			return fmt.Errorf("file key %q collides with a file name", file.Key)
		}
		keys[file.Key] = struct{}{}
	}
	for index := range lift.Files {
		file := &lift.Files[index]
		if file.Type != "" {
			normalized, err := config.NormalizeFileType(string(file.Type))
			if err != nil {
				return fmt.Errorf("file %q: %w", file.Name, err)
			}
			file.Type = normalized
		}
		if file.Source == "" {
			continue
		}
		if _, exists := lift.Boot.Bindings[file.Source]; !exists {
			return fmt.Errorf("file %q is sourced from unknown binding %q", file.Name, file.Source)
		}
		if file.Size == nil || file.Hash == "" || file.Type == "" {
			return fmt.Errorf("file %q is sourced from binding %q and must declare explicit size, hash and type", file.Name, file.Source)
		}
	}
	for name, command := range lift.Boot.Commands {
		if command.Exe == "" {
			return fmt.Errorf("boot command %q has no exe", name)
		}
	}
	for name, binding := range lift.Boot.Bindings {
		if name == "" {
			return fmt.Errorf("boot bindings must be named")
		}
		if binding.Exe == "" {
			return fmt.Errorf("boot binding %q has no exe", name)
		}
	}
	return nil
}

// ValidateTip enforces the strict invariants of a manifest read from a scie
// tail: complete file metadata, a structurally valid scie object, and payload
// sizes that exactly tile the region between the jump head and the trailing
// zip's end.
func ValidateTip(loaded *scie.Scie) error {
	if err := validateScieShape(loaded.Config.RawScie); err != nil {
		return err
	}
	lift := &loaded.Config.Scie.Lift
	if err := Validate(lift); err != nil {
		return err
	}
	var payloadSize uint64
	for _, file := range lift.Files {
		if file.Size == nil || file.Hash == "" || file.Type == "" {
			return fmt.Errorf("file %q in the scie tip must declare size, hash and type", file.Name)
		}
		if !fingerprint.IsHexDigest(file.Hash) {
			return fmt.Errorf("file %q hash %q is not a lowercase hex sha256 digest", file.Name, file.Hash)
		}
		if file.Source == "" {
			payloadSize += *file.Size
		}
	}
	expected := uint64(loaded.PayloadEnd) - loaded.Jump.Size
	if payloadSize != expected {
		return fmt.Errorf("the lift manifest declares %d payload bytes but the scie holds %d", payloadSize, expected)
	}
	return nil
}

// Loaded is a permissively loaded boot-pack input manifest.
type Loaded struct {
	Config       *config.Config
	ManifestPath string
	ResolveDir   string
}

// Lift returns the manifest's lift for mutation by the packer.
func (l *Loaded) Lift() *config.Lift {
	return &l.Config.Scie.Lift
}

// PayloadSourcePath returns the on-disk file whose bytes represent the entry:
// the packed zip for directory entries, the named file otherwise.
func PayloadSourcePath(resolveDir string, file config.File) string {
	if file.Type == config.TypeDirectory {
		return filepath.Join(resolveDir, file.Name+".zip")
	}
	return filepath.Join(resolveDir, file.Name)
}

// Load reads a manifest path (a lift.json file, or a directory holding one)
// permissively: missing sizes, hashes and types are computed from the files
// next to the manifest, declared values are verified, and directory entries
// are packed into deterministic zips.
func Load(path string) (*Loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat manifest path %s: %w", path, err)
	}
	manifestPath := path
	if info.IsDir() {
		manifestPath = filepath.Join(path, "lift.json")
	}
	// #nosec G304 -- the manifest path is explicit caller input.
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("the given path does not contain a lift manifest: %s", path)
	}
	return LoadBytes(data, manifestPath, filepath.Dir(manifestPath))
}

// LoadBytes permissively loads manifest bytes that did not come from a file,
// resolving payload entries relative to resolveDir. source names the input in
// errors and in boot-pack output.
func LoadBytes(data []byte, source, resolveDir string) (*Loaded, error) {
	parsed, err := config.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse lift manifest %s: %w", source, err)
	}
	if err := validateScieShape(parsed.RawScie); err != nil {
		return nil, fmt.Errorf("lift manifest %s: %w", source, err)
	}

	lift := &parsed.Scie.Lift
	if err := Validate(lift); err != nil {
		return nil, fmt.Errorf("lift manifest %s: %w", source, err)
	}
	for index := range lift.Files {
		if err := elaborateFile(resolveDir, &lift.Files[index]); err != nil {
			return nil, fmt.Errorf("lift manifest %s: %w", source, err)
		}
	}
	return &Loaded{Config: parsed, ManifestPath: source, ResolveDir: resolveDir}, nil
}

func elaborateFile(resolveDir string, file *config.File) error {
	if file.Source != "" {
		return nil
	}
	fullPath := filepath.Join(resolveDir, file.Name)
	info, err := os.Stat(fullPath)
	if err != nil {
		return fmt.Errorf("file %q does not exist beside the manifest: %w", file.Name, err)
	}

	var size uint64
	var digest string
	if info.IsDir() {
		if file.Type == "" {
			file.Type = config.TypeDirectory
		}
		if file.Type != config.TypeDirectory {
			return fmt.Errorf("file %q is a directory but declares type %q", file.Name, file.Type)
		}
		packed := &bytes.Buffer{}
		if err := zipx.ZipDirectory(packed, fullPath); err != nil {
			return fmt.Errorf("pack directory %q: %w", file.Name, err)
		}
		if err := fsx.WriteFileAtomic(fullPath+".zip", packed.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write packed directory %q: %w", file.Name, err)
		}
		size = uint64(packed.Len())
		digest = fingerprint.DigestBytes(packed.Bytes())
	} else {
		if file.Type == "" {
			file.Type = InferFileType(file.Name)
		}
		fileSize, fileDigest, err := fingerprint.DigestFile(fullPath)
		if err != nil {
			return err
		}
		size = uint64(fileSize)
		digest = fileDigest
	}

	if file.Size != nil && *file.Size != size {
		return fmt.Errorf("file %q declares size %d but its bytes have size %d", file.Name, *file.Size, size)
	}
	file.Size = &size
	if file.Hash != "" && file.Hash != digest {
		return fmt.Errorf("file %q declares hash %s but its bytes hash to %s", file.Name, file.Hash, digest)
	}
	file.Hash = digest
	return nil
}
