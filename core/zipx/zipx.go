// Package zipx provides deterministic zip writing and safe extraction.
// Timestamps are pinned and entries are ordered so identical inputs always
// produce identical archives.
package zipx

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type File struct {
	Path   string
	Data   []byte
	Mode   os.FileMode
	Method uint16
}

// WriteDeterministicZip writes files in path order with zeroed timestamps.
// A File with Method zero is stored without compression.
func WriteDeterministicZip(writer io.Writer, files []File) error {
	ordered := append([]File{}, files...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	zipWriter := zip.NewWriter(writer)
	for _, file := range ordered {
		header := &zip.FileHeader{
			Name:   file.Path,
			Method: file.Method,
		}
		header.SetMode(file.Mode)
		entry, err := zipWriter.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", file.Path, err)
		}
		if _, err := entry.Write(file.Data); err != nil {
			return fmt.Errorf("write zip entry %s: %w", file.Path, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// ZipDirectory packs the directory rooted at dir into a deterministic
// deflate-compressed zip with entry paths relative to dir.
func ZipDirectory(writer io.Writer, dir string) error {
	var files []File
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		// #nosec G304 -- path comes from walking the caller-selected directory.
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, File{
			Path:   filepath.ToSlash(relative),
			Data:   data,
			Mode:   info.Mode().Perm(),
			Method: zip.Deflate,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk directory %s: %w", dir, err)
	}
	return WriteDeterministicZip(writer, files)
}

// Extract unpacks reader into dst, preserving executable bits and rejecting
// entries that would escape dst.
func Extract(reader *zip.Reader, dst string) error {
	for _, entry := range reader.File {
		target, err := entryDestination(dst, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", target, err)
		}
		mode := entry.Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
		if err := extractEntry(entry, target, mode); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, target string, mode os.FileMode) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer func() {
		_ = source.Close()
	}()
	// #nosec G304 -- target is validated to stay under the extraction root.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer func() {
		_ = out.Close()
	}()
	// #nosec G110 -- payload sizes are bounded by the scie the user chose to run.
	if _, err := io.Copy(out, source); err != nil {
		return fmt.Errorf("extract zip entry %s: %w", entry.Name, err)
	}
	return nil
}

func entryDestination(dst, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || cleaned == ".." {
		return "", fmt.Errorf("zip entry %q escapes the extraction root", name)
	}
	return filepath.Join(dst, cleaned), nil
}
