package jcs

import (
	"regexp"
	"testing"
)

func TestIdentityDigestIgnoresEnvInsertionOrder(t *testing.T) {
	first := ProcessIdentity{
		Exe:  "/bin/run",
		Args: []string{"-v"},
		Env:  map[string]string{},
	}
	first.Env["A"] = "1"
	first.Env["B"] = "2"
	second := ProcessIdentity{
		Exe:  "/bin/run",
		Args: []string{"-v"},
		Env:  map[string]string{},
	}
	second.Env["B"] = "2"
	second.Env["A"] = "1"

	firstDigest, err := IdentityDigest(first)
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	secondDigest, err := IdentityDigest(second)
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	if firstDigest != secondDigest {
		t.Fatal("expected equal digests for logically equal identities")
	}
}

func TestIdentityDigestIsHexSha256(t *testing.T) {
	digest, err := IdentityDigest(ProcessIdentity{Exe: "/bin/run"})
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(digest) {
		t.Fatalf("digest is not a lowercase hex sha256: %q", digest)
	}
}

func TestIdentityDigestSensitiveToEachField(t *testing.T) {
	base := ProcessIdentity{
		Exe:  "/bin/run",
		Args: []string{"-v"},
		Env:  map[string]string{"A": "1"},
	}
	baseDigest, err := IdentityDigest(base)
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}

	variants := []ProcessIdentity{
		{Exe: "/bin/other", Args: []string{"-v"}, Env: map[string]string{"A": "1"}},
		{Exe: "/bin/run", Args: []string{"-vv"}, Env: map[string]string{"A": "1"}},
		{Exe: "/bin/run", Args: []string{"-v"}, Env: map[string]string{"A": "2"}},
	}
	for _, variant := range variants {
		digest, err := IdentityDigest(variant)
		if err != nil {
			t.Fatalf("digest error: %v", err)
		}
		if digest == baseDigest {
			t.Fatalf("expected %+v to digest differently from the base", variant)
		}
	}
}

func TestIdentityDigestRejectsUnencodableDocuments(t *testing.T) {
	if _, err := IdentityDigest(make(chan int)); err == nil {
		t.Fatal("expected an encoding error")
	}
}
