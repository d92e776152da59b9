package zipx

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDeterministicZipIsStable(t *testing.T) {
	files := []File{
		{Path: "b.txt", Data: []byte("bee"), Mode: 0o644, Method: zip.Deflate},
		{Path: "a.txt", Data: []byte("ay"), Mode: 0o755, Method: zip.Deflate},
	}

	first := &bytes.Buffer{}
	if err := WriteDeterministicZip(first, files); err != nil {
		t.Fatalf("first write: %v", err)
	}
	reversed := []File{files[1], files[0]}
	second := &bytes.Buffer{}
	if err := WriteDeterministicZip(second, reversed); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("expected identical archives regardless of input order")
	}
}

func TestZipDirectoryAndExtractRoundTrip(t *testing.T) {
	source := t.TempDir()
	if err := os.MkdirAll(filepath.Join(source, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(source, "bin", "tool"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	if err := os.WriteFile(filepath.Join(source, "readme"), []byte("docs"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	archive := &bytes.Buffer{}
	if err := ZipDirectory(archive, source); err != nil {
		t.Fatalf("zip directory: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	dst := t.TempDir()
	if err := Extract(reader, dst); err != nil {
		t.Fatalf("extract: %v", err)
	}

	tool, err := os.Stat(filepath.Join(dst, "bin", "tool"))
	if err != nil {
		t.Fatalf("stat extracted tool: %v", err)
	}
	if tool.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit preserved, got %#o", tool.Mode().Perm())
	}
	content, err := os.ReadFile(filepath.Join(dst, "readme"))
	if err != nil {
		t.Fatalf("read extracted readme: %v", err)
	}
	if string(content) != "docs" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := &bytes.Buffer{}
	zipWriter := zip.NewWriter(archive)
	entry, err := zipWriter.Create("../escape")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := entry.Write([]byte("nope")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if err := Extract(reader, t.TempDir()); err == nil {
		t.Fatal("expected traversal rejection")
	}
}

func TestZipDirectoryIsReproducible(t *testing.T) {
	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "file"), []byte("same"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	first := &bytes.Buffer{}
	if err := ZipDirectory(first, source); err != nil {
		t.Fatalf("first zip: %v", err)
	}
	second := &bytes.Buffer{}
	if err := ZipDirectory(second, source); err != nil {
		t.Fatalf("second zip: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("expected reproducible archives")
	}
}
