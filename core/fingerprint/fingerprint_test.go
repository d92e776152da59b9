package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// sha256("hello world")
const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestDigestBytes(t *testing.T) {
	if got := DigestBytes([]byte("hello world")); got != helloDigest {
		t.Fatalf("unexpected digest: %s", got)
	}
}

func TestDigestReader(t *testing.T) {
	size, digest, err := DigestReader(bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("digest reader: %v", err)
	}
	if size != 11 {
		t.Fatalf("unexpected size: %d", size)
	}
	if digest != helloDigest {
		t.Fatalf("unexpected digest: %s", digest)
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	size, digest, err := DigestFile(path)
	if err != nil {
		t.Fatalf("digest file: %v", err)
	}
	if size != 11 || digest != helloDigest {
		t.Fatalf("unexpected result: size=%d digest=%s", size, digest)
	}
}

func TestIsHexDigest(t *testing.T) {
	if !IsHexDigest(helloDigest) {
		t.Fatalf("expected %s to be accepted", helloDigest)
	}
	if IsHexDigest("abc") {
		t.Fatal("short value accepted")
	}
	if IsHexDigest(string(bytes.Repeat([]byte("G"), 64))) {
		t.Fatal("non-hex value accepted")
	}
	upper := bytes.ToUpper([]byte(helloDigest))
	if IsHexDigest(string(upper)) {
		t.Fatal("uppercase digest accepted")
	}
}

func TestVerifierCheck(t *testing.T) {
	verifier := NewVerifier()
	if _, err := verifier.Write([]byte("hello ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := verifier.Write([]byte("world")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := verifier.Check(11, helloDigest); err != nil {
		t.Fatalf("expected check to pass: %v", err)
	}
	if err := verifier.Check(12, helloDigest); err == nil {
		t.Fatal("expected size mismatch")
	}
	if err := verifier.Check(-1, helloDigest); err != nil {
		t.Fatalf("expected size check skipped: %v", err)
	}
	if err := verifier.Check(11, "00"+helloDigest[2:]); err == nil {
		t.Fatal("expected digest mismatch")
	}
}
