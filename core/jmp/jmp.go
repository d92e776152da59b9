// Package jmp reads and writes the 8-byte magic trailer that marks a bare
// scie-jump launcher, and resolves the path of the currently executing scie.
package jmp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/fingerprint"
)

const (
	// Legacy trailer: size u32 LE at EOF-8, magic u32 LE at EOF-4. The jump
	// version is not recorded and must be queried by running the binary.
	eofMagicV1 uint32 = 0x534a7219
	// Current trailer: version bytes, version length u8, size u32 LE, magic
	// u32 LE, reading toward EOF.
	eofMagicV2 uint32 = 0x4a532520
)

// Versions at or above this stamp a hash of the jump head into packed
// manifests.
var versionIntroducingHash = semver.MustParse("1.11.0")

// Trailer returns the V2 magic trailer for a bare jump whose total size,
// trailer included, will be totalSize.
func Trailer(version string, totalSize uint64) ([]byte, error) {
	if _, err := semver.NewVersion(version); err != nil {
		return nil, fmt.Errorf("invalid scie-jump version %q: %w", version, err)
	}
	if len(version) > 255 {
		return nil, fmt.Errorf("scie-jump version %q exceeds 255 bytes", version)
	}
	if totalSize > uint64(^uint32(0)) {
		return nil, fmt.Errorf("scie-jump size %d exceeds the u32 trailer field", totalSize)
	}
	trailer := &bytes.Buffer{}
	trailer.WriteString(version)
	trailer.WriteByte(byte(len(version)))
	_ = binary.Write(trailer, binary.LittleEndian, uint32(totalSize))
	_ = binary.Write(trailer, binary.LittleEndian, eofMagicV2)
	return trailer.Bytes(), nil
}

// TrailerSize returns the byte length Trailer will produce for version.
func TrailerSize(version string) int {
	return len(version) + 1 + 4 + 4
}

// Stamp appends a V2 magic trailer to the launcher binary at path, making it
// a recognizable bare jump.
func Stamp(path, version string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat launcher %s: %w", path, err)
	}
	trailer, err := Trailer(version, uint64(info.Size())+uint64(TrailerSize(version)))
	if err != nil {
		return err
	}
	// #nosec G304 -- the stamp target is an explicit caller-provided launcher path.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open launcher %s for stamping: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	if _, err := file.Write(trailer); err != nil {
		return fmt.Errorf("append magic trailer to %s: %w", path, err)
	}
	return nil
}

// Load inspects the file at path for a bare jump magic trailer. It returns
// nil when the file is not a bare jump. currentVersion is the running jump's
// version, used as a fallback when a legacy trailer's version cannot be
// queried.
func Load(path, currentVersion string) (*config.Jump, error) {
	// #nosec G304 -- the candidate jump path is explicit caller input.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scie-jump candidate %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat scie-jump candidate %s: %w", path, err)
	}
	if info.Size() < 8 {
		return nil, nil
	}

	var footer [8]byte
	if _, err := file.ReadAt(footer[:], info.Size()-8); err != nil {
		return nil, fmt.Errorf("read magic trailer of %s: %w", path, err)
	}
	size := binary.LittleEndian.Uint32(footer[0:4])
	magic := binary.LittleEndian.Uint32(footer[4:8])

	switch magic {
	case eofMagicV1:
		if int64(size) != info.Size() {
			return nil, fmt.Errorf("the scie-jump at %s has size %d but its trailer declares %d", path, info.Size(), size)
		}
		version, err := queryVersion(path)
		if err != nil {
			slog.Warn("failed to determine the version of the custom scie-jump", "path", path, "error", err)
			slog.Warn("reporting the current scie-jump version in its place, which is misleading but harmless; use a custom scie-jump with a modern trailer to avoid this", "version", currentVersion)
			version = currentVersion
		}
		return &config.Jump{Size: uint64(size), Version: version}, nil
	case eofMagicV2:
		if int64(size) != info.Size() {
			return nil, fmt.Errorf("the scie-jump at %s has size %d but its trailer declares %d", path, info.Size(), size)
		}
		version, err := readVersion(file, info.Size())
		if err != nil {
			return nil, fmt.Errorf("read version trailer of %s: %w", path, err)
		}
		return &config.Jump{Size: uint64(size), Version: version}, nil
	default:
		return nil, nil
	}
}

// IsBare reports whether data ends in a recognizable bare jump trailer.
func IsBare(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	size := binary.LittleEndian.Uint32(data[len(data)-8 : len(data)-4])
	magic := binary.LittleEndian.Uint32(data[len(data)-4:])
	if magic != eofMagicV1 && magic != eofMagicV2 {
		return false
	}
	return uint64(size) == uint64(len(data))
}

// HashHead digests the first jump.Size bytes of the binary at path for
// versions that record the jump hash in packed manifests.
func HashHead(jump *config.Jump, path string) (string, error) {
	version, err := semver.NewVersion(jump.Version)
	if err != nil {
		return "", fmt.Errorf("parse scie-jump version %q: %w", jump.Version, err)
	}
	if version.LessThan(versionIntroducingHash) {
		return "", nil
	}
	// #nosec G304 -- the hash target is an explicit caller-provided launcher path.
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s to hash scie-jump head: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	_, digest, err := fingerprint.DigestReader(io.LimitReader(file, int64(jump.Size)))
	if err != nil {
		return "", err
	}
	return digest, nil
}

func readVersion(file *os.File, fileSize int64) (string, error) {
	var lengthByte [1]byte
	if _, err := file.ReadAt(lengthByte[:], fileSize-9); err != nil {
		return "", fmt.Errorf("read version length: %w", err)
	}
	versionSize := int64(lengthByte[0])
	if fileSize < 9+versionSize {
		return "", fmt.Errorf("trailer declares a %d byte version but the file is too short", versionSize)
	}
	versionBytes := make([]byte, versionSize)
	if _, err := file.ReadAt(versionBytes, fileSize-9-versionSize); err != nil {
		return "", fmt.Errorf("read version bytes: %w", err)
	}
	if _, err := semver.NewVersion(string(versionBytes)); err != nil {
		return "", fmt.Errorf("parse version %q: %w", versionBytes, err)
	}
	return string(versionBytes), nil
}

func queryVersion(path string) (string, error) {
	// #nosec G204 -- the queried binary is the user-selected custom scie-jump.
	output, err := exec.Command(path, "-V").Output()
	if err != nil {
		return "", fmt.Errorf("query version via `%s -V`: %w", path, err)
	}
	version := string(bytes.TrimSpace(output))
	if _, err := semver.NewVersion(version); err != nil {
		return "", fmt.Errorf("parse queried version %q: %w", version, err)
	}
	return version, nil
}

// CurrentExe resolves the path of the executing binary. argv[0] alone can
// name the wrong file when the shell found the binary on PATH while a
// same-named file sits in CWD, so the OS primitive is consulted first.
func CurrentExe() (string, error) {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			return resolved, nil
		}
		return exe, nil
	}
	if len(os.Args) == 0 {
		return "", fmt.Errorf("cannot determine the current executable: empty argv")
	}
	found, err := exec.LookPath(os.Args[0])
	if err != nil {
		return "", fmt.Errorf("cannot determine the current executable from argv[0] %q: %w", os.Args[0], err)
	}
	return filepath.Abs(found)
}
