package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return path
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	expected := writeEnvFile(t, root, "A=1\n")
	nested := filepath.Join(root, "work", "deeper")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != expected {
		t.Fatalf("expected %s, found %s", expected, found)
	}
}

func TestFindPrefersNearest(t *testing.T) {
	root := t.TempDir()
	writeEnvFile(t, root, "A=outer\n")
	nested := filepath.Join(root, "work")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	expected := writeEnvFile(t, nested, "A=inner\n")

	found, err := Find(nested)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != expected {
		t.Fatalf("expected nearest %s, found %s", expected, found)
	}
}

func TestLoadAmbientWins(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, "DOTENV_AMBIENT=file\nDOTENV_FRESH=1/137\n")
	t.Setenv("DOTENV_AMBIENT", "ambient")
	os.Unsetenv("DOTENV_FRESH")
	t.Cleanup(func() { os.Unsetenv("DOTENV_FRESH") })

	path, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path == "" {
		t.Fatal("expected a .env to load")
	}
	if value := os.Getenv("DOTENV_AMBIENT"); value != "ambient" {
		t.Fatalf("ambient value clobbered: %q", value)
	}
	if value := os.Getenv("DOTENV_FRESH"); value != "1/137" {
		t.Fatalf("expected injected value, got %q", value)
	}
}

func TestLoadNoFileIsNotAnError(t *testing.T) {
	path, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no .env, found %s", path)
	}
}

func TestParseRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeEnvFile(t, dir, "B=\"notenough\n")
	if _, _, err := Parse(path); err == nil {
		t.Fatal("expected a parse error for an unterminated quote")
	}
}

func TestParseExpandsVariables(t *testing.T) {
	dir := t.TempDir()
	path := writeEnvFile(t, dir, "BASE=/opt\nTOOL=\"${BASE}/tool\"\n")
	_, values, err := Parse(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if values["TOOL"] != "/opt/tool" {
		t.Fatalf("expected expansion, got %q", values["TOOL"])
	}
}
