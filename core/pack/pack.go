// Package pack assembles scies: a scie-jump head, the payload files declared
// by a lift manifest, and the manifest itself as a JSON tail. When the last
// payload file is not itself a zip, the payload files are gathered into a
// synthesized scie-tote so the assembled binary still ends in a zip and the
// manifest can be found by scanning back from EOF.
package pack

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/fingerprint"
	"github.com/scietool/jump/core/jmp"
	"github.com/scietool/jump/core/lift"
	"github.com/scietool/jump/core/platform"
	"github.com/scietool/jump/core/zipx"
)

// ToteName is the reserved file name of a synthesized payload tote.
const ToteName = "scie-tote"

// Pack assembles the scie described by loaded into outDir using the scie-jump
// launcher at jumpPath, whose parsed trailer is jump. The manifest is embedded
// in packed format, pretty-printed unless singleLine is set. The assembled
// binary is named after the lift and never overwrites an existing file. The
// path of the written scie is returned.
func Pack(loaded *lift.Loaded, jump config.Jump, jumpPath, outDir string, singleLine bool) (string, error) {
	manifest := loaded.Lift()
	if declared := loaded.Config.Scie.Jump; declared != nil {
		if declared.Size != 0 && declared.Size != jump.Size {
			return "", fmt.Errorf(
				"the lift manifest %s declares a scie-jump of size %d but the scie-jump at %s has size %d",
				loaded.ManifestPath, declared.Size, jumpPath, jump.Size,
			)
		}
		if declared.Version != "" && declared.Version != jump.Version {
			return "", fmt.Errorf(
				"the lift manifest %s declares scie-jump version %s but the scie-jump at %s has version %s",
				loaded.ManifestPath, declared.Version, jumpPath, jump.Version,
			)
		}
	}

	head, err := readHead(jumpPath, jump.Size)
	if err != nil {
		return "", err
	}
	hash, err := jmp.HashHead(&jump, jumpPath)
	if err != nil {
		return "", err
	}
	jump.Hash = hash
	loaded.Config.Scie.Jump = &jump

	payload, err := assemblePayload(loaded, manifest)
	if err != nil {
		return "", err
	}
	rendered, err := loaded.Config.Render(config.PackedFmt(singleLine))
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, manifest.Name+platform.ExeExt())
	// #nosec G304 -- the destination is derived from the caller-chosen output dir.
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("create scie %s: %w", outPath, err)
	}
	for _, chunk := range [][]byte{head, payload, rendered} {
		if _, err := out.Write(chunk); err != nil {
			_ = out.Close()
			return "", fmt.Errorf("write scie %s: %w", outPath, err)
		}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("finalize scie %s: %w", outPath, err)
	}
	return outPath, nil
}

// readHead reads the launcher's first size bytes. A prefix read works for
// both a bare jump and the tip of an existing scie used as the launcher
// donor.
func readHead(jumpPath string, size uint64) ([]byte, error) {
	// #nosec G304 -- the launcher path is explicit caller input.
	file, err := os.Open(jumpPath)
	if err != nil {
		return nil, fmt.Errorf("open scie-jump %s: %w", jumpPath, err)
	}
	defer func() {
		_ = file.Close()
	}()
	head := make([]byte, size)
	if _, err := io.ReadFull(file, head); err != nil {
		return nil, fmt.Errorf("read the %d byte scie-jump head of %s: %w", size, jumpPath, err)
	}
	return head, nil
}

// assemblePayload returns the payload bytes and rewrites the manifest's file
// entries to match. When the trailing embedded file is already a zip the files
// are concatenated as-is; otherwise every embedded file moves into a stored
// scie-tote, its manifest size dropping to zero, and the tote becomes the sole
// payload.
func assemblePayload(loaded *lift.Loaded, manifest *config.Lift) ([]byte, error) {
	lastEmbedded := -1
	for index, file := range manifest.Files {
		if file.Source == "" {
			lastEmbedded = index
		}
	}
	if lastEmbedded >= 0 && endsInZip(manifest.Files[lastEmbedded]) {
		return concatenatePayload(loaded, manifest)
	}
	return synthesizeTote(loaded, manifest)
}

func endsInZip(file config.File) bool {
	return file.Type == config.TypeZip || file.Type == config.TypeDirectory
}

func concatenatePayload(loaded *lift.Loaded, manifest *config.Lift) ([]byte, error) {
	payload := &bytes.Buffer{}
	for _, file := range manifest.Files {
		if file.Source != "" {
			continue
		}
		data, err := readPayloadSource(loaded, file)
		if err != nil {
			return nil, err
		}
		payload.Write(data)
	}
	return payload.Bytes(), nil
}

func synthesizeTote(loaded *lift.Loaded, manifest *config.Lift) ([]byte, error) {
	var members []zipx.File
	for index := range manifest.Files {
		file := &manifest.Files[index]
		if file.Source != "" {
			continue
		}
		data, err := readPayloadSource(loaded, *file)
		if err != nil {
			return nil, err
		}
		mode := os.FileMode(0o644)
		if file.Executable {
			mode = 0o755
		}
		members = append(members, zipx.File{
			Path:   file.Name,
			Data:   data,
			Mode:   mode,
			Method: zip.Store,
		})
		// The bytes live in the tote now; the zero size marks the entry as a
		// tote member while its hash still identifies the real content.
		var zero uint64
		file.Size = &zero
	}

	tote := &bytes.Buffer{}
	if err := zipx.WriteDeterministicZip(tote, members); err != nil {
		return nil, fmt.Errorf("assemble the scie-tote: %w", err)
	}
	toteSize := uint64(tote.Len())
	manifest.Files = append(manifest.Files, config.File{
		Name: ToteName,
		Size: &toteSize,
		Hash: fingerprint.DigestBytes(tote.Bytes()),
		Type: config.TypeZip,
	})
	return tote.Bytes(), nil
}

func readPayloadSource(loaded *lift.Loaded, file config.File) ([]byte, error) {
	path := lift.PayloadSourcePath(loaded.ResolveDir, file)
	// #nosec G304 -- payload paths are resolved beside the caller's manifest.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload file %q: %w", file.Name, err)
	}
	if file.Size != nil && uint64(len(data)) != *file.Size {
		return nil, fmt.Errorf("payload file %q changed size from %d to %d during packing", file.Name, *file.Size, len(data))
	}
	return data, nil
}
