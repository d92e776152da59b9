package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic writes content to path via a sibling temp file and rename so
// concurrent readers never observe a partial write.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := renameOverwriting(tempPath, path); err != nil {
		return err
	}
	cleanup = false

	syncDirectory(parent)
	return nil
}

// PromoteDir renames a fully staged directory into its final location. A loser
// of a promotion race finds the destination already present and removes its
// own staging directory instead.
func PromoteDir(stagedPath, finalPath string) error {
	if err := os.Rename(stagedPath, finalPath); err != nil {
		if _, statErr := os.Stat(finalPath); statErr == nil {
			_ = os.RemoveAll(stagedPath)
			return nil
		}
		return fmt.Errorf("promote staged directory: %w", err)
	}
	syncDirectory(filepath.Dir(finalPath))
	return nil
}

func renameOverwriting(fromPath, toPath string) error {
	if err := os.Rename(fromPath, toPath); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(toPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(fromPath, toPath); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	return nil
}

func syncDirectory(path string) {
	// #nosec G304 -- directory path is derived from explicit caller-provided destination path.
	if dirHandle, err := os.Open(path); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
}
