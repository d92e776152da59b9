package boot

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/fingerprint"
	"github.com/scietool/jump/core/lift"
	"github.com/scietool/jump/core/scie"
	"github.com/scietool/jump/core/zipx"
)

const testJumpHead = "JUMP"

type payloadPart struct {
	file config.File
	data []byte
}

func blobPart(name string, data []byte) payloadPart {
	size := uint64(len(data))
	return payloadPart{
		file: config.File{Name: name, Size: &size, Hash: fingerprint.DigestBytes(data), Type: config.TypeBlob},
		data: data,
	}
}

func zipPart(t *testing.T, name string, entries []zipx.File, fileType config.FileType) payloadPart {
	t.Helper()
	packed := &bytes.Buffer{}
	if err := zipx.WriteDeterministicZip(packed, entries); err != nil {
		t.Fatal(err)
	}
	size := uint64(packed.Len())
	return payloadPart{
		file: config.File{Name: name, Size: &size, Hash: fingerprint.DigestBytes(packed.Bytes()), Type: fileType},
		data: packed.Bytes(),
	}
}

func buildScie(t *testing.T, parts ...payloadPart) *scie.Scie {
	t.Helper()
	manifest := config.Lift{
		Name: "test",
		Boot: config.Boot{Commands: map[string]config.Command{"": {Exe: "/bin/true"}}},
	}
	data := []byte(testJumpHead)
	for _, part := range parts {
		manifest.Files = append(manifest.Files, part.file)
		data = append(data, part.data...)
	}
	document := &config.Config{Scie: config.Scie{
		Jump: &config.Jump{Size: uint64(len(testJumpHead)), Version: "1.6.0"},
		Lift: manifest,
	}}
	rendered, err := document.Render(config.PackedFmt(false))
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := scie.LoadData("test-scie", append(data, rendered...))
	if err != nil {
		t.Fatal(err)
	}
	return loaded
}

func basicParts(t *testing.T) []payloadPart {
	t.Helper()
	return []payloadPart{
		blobPart("greeting", []byte("hello\n")),
		zipPart(t, "app.zip", []zipx.File{
			{Path: "lib/app.txt", Data: []byte("app\n"), Mode: 0o644, Method: zip.Deflate},
		}, config.TypeZip),
	}
}

func TestSplitWritesParts(t *testing.T) {
	loaded := buildScie(t, basicParts(t)...)
	dir := t.TempDir()
	stderr := &bytes.Buffer{}
	if err := Split(loaded, []string{dir}, &bytes.Buffer{}, stderr); err != nil {
		t.Fatal(err)
	}
	if stderr.Len() != 0 {
		t.Fatalf("unexpected stderr output: %q", stderr.String())
	}

	jump, err := os.ReadFile(filepath.Join(dir, "scie-jump"))
	if err != nil {
		t.Fatal(err)
	}
	if string(jump) != testJumpHead {
		t.Fatalf("split scie-jump holds %q", jump)
	}
	greeting, err := os.ReadFile(filepath.Join(dir, "greeting"))
	if err != nil {
		t.Fatal(err)
	}
	if string(greeting) != "hello\n" {
		t.Fatalf("split greeting holds %q", greeting)
	}

	// The emitted manifest and files must round-trip through the boot-pack
	// loader with their recorded sizes and hashes intact.
	reloaded, err := lift.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Lift().Files) != 2 {
		t.Fatalf("unexpected files in the split manifest: %+v", reloaded.Lift().Files)
	}
}

func TestSplitExtractsDirectoryEntriesLoose(t *testing.T) {
	parts := []payloadPart{
		zipPart(t, "nested", []zipx.File{
			{Path: "bin/tool", Data: []byte("#!/bin/sh\n"), Mode: 0o755, Method: zip.Deflate},
		}, config.TypeDirectory),
		basicParts(t)[1],
	}
	loaded := buildScie(t, parts...)
	dir := t.TempDir()
	if err := Split(loaded, []string{dir}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	tool, err := os.ReadFile(filepath.Join(dir, "nested", "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}
	if string(tool) != "#!/bin/sh\n" {
		t.Fatalf("extracted directory member holds %q", tool)
	}
}

func TestSplitExtractsToteMembers(t *testing.T) {
	content := []byte("alpha\n")
	tote := zipPart(t, "scie-tote", []zipx.File{
		{Path: "a.txt", Data: content, Mode: 0o644, Method: zip.Store},
	}, config.TypeZip)
	var zero uint64
	member := payloadPart{
		file: config.File{Name: "a.txt", Size: &zero, Hash: fingerprint.DigestBytes(content), Type: config.TypeBlob},
	}
	loaded := buildScie(t, member, tote)

	dir := t.TempDir()
	if err := Split(loaded, []string{dir}, &bytes.Buffer{}, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	extracted, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(extracted, content) {
		t.Fatalf("tote member holds %q", extracted)
	}
	if _, err := os.Stat(filepath.Join(dir, "scie-tote")); err == nil {
		t.Fatal("the synthesized tote should not be written by split")
	}

	reloaded, err := lift.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	files := reloaded.Lift().Files
	if len(files) != 1 || files[0].Name != "a.txt" {
		t.Fatalf("split manifest should hold only the tote member, got %+v", files)
	}
	if files[0].Size == nil || *files[0].Size != uint64(len(content)) {
		t.Fatalf("tote member size was not restored, got %v", files[0].Size)
	}
}

func TestSplitDryRunWritesNothing(t *testing.T) {
	loaded := buildScie(t, basicParts(t)...)
	dir := filepath.Join(t.TempDir(), "out")
	stdout := &bytes.Buffer{}
	if err := Split(loaded, []string{"-n", dir}, stdout, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err == nil {
		t.Fatal("dry run should not create the split directory")
	}
	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 planned parts, got %q", stdout.String())
	}
	if lines[0] != filepath.Join(dir, "scie-jump")+" 4 executable" {
		t.Fatalf("unexpected plan line: %q", lines[0])
	}
	if lines[1] != filepath.Join(dir, "greeting")+" 6 blob" {
		t.Fatalf("unexpected plan line: %q", lines[1])
	}
}

func TestSplitSelectsNamesAndWarnsOnMisses(t *testing.T) {
	loaded := buildScie(t, basicParts(t)...)
	dir := t.TempDir()
	stderr := &bytes.Buffer{}
	if err := Split(loaded, []string{dir, "--", "greeting", "nope"}, &bytes.Buffer{}, stderr); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "greeting")); err != nil {
		t.Fatal("the requested greeting file was not written")
	}
	for _, unrequested := range []string{"scie-jump", "app.zip", "lift.json"} {
		if _, err := os.Stat(filepath.Join(dir, unrequested)); err == nil {
			t.Fatalf("%s was written despite not being requested", unrequested)
		}
	}
	if !strings.Contains(stderr.String(), "+ nope") {
		t.Fatalf("missing-name warning not printed, got %q", stderr.String())
	}
}

func TestSplitRejectsMultipleDirectories(t *testing.T) {
	loaded := buildScie(t, basicParts(t)...)
	if err := Split(loaded, []string{"one", "two"}, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected two positional directories to be rejected")
	}
}
