// Package jcs derives stable identity digests from JSON-shaped documents.
// Documents are canonicalized per RFC 8785 before hashing, so two logically
// equal documents digest identically regardless of field order or encoding
// whitespace. Binding identities depend on this: a re-run of the same scie
// must compute the same identity for the same fully expanded process.
package jcs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ProcessIdentity is the document hashed to identify a fully expanded
// process: the executable, the arguments, and the environment values the
// process sets, after placeholder expansion.
type ProcessIdentity struct {
	Exe  string            `json:"exe"`
	Args []string          `json:"args"`
	Env  map[string]string `json:"env"`
}

// IdentityDigest encodes the document as JSON, canonicalizes it, and returns
// the sha256 hex digest of the canonical bytes.
func IdentityDigest(document any) (string, error) {
	encoded, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("encode identity document: %w", err)
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return "", fmt.Errorf("canonicalize identity document: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
