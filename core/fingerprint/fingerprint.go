package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// DigestBytes returns the lowercase hex sha256 of data.
func DigestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader consumes reader to EOF and returns the byte count and
// lowercase hex sha256 of everything read.
func DigestReader(reader io.Reader) (int64, string, error) {
	hasher := sha256.New()
	size, err := io.Copy(hasher, reader)
	if err != nil {
		return 0, "", fmt.Errorf("digest stream: %w", err)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DigestFile returns the size and lowercase hex sha256 of the file at path.
func DigestFile(path string) (int64, string, error) {
	// #nosec G304 -- path comes from a lift manifest the user chose to pack or run.
	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open %s for digest: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()
	return DigestReader(file)
}

// IsHexDigest reports whether value looks like a lowercase hex sha256 digest.
func IsHexDigest(value string) bool {
	if len(value) != 64 {
		return false
	}
	for _, char := range value {
		switch {
		case char >= '0' && char <= '9':
		case char >= 'a' && char <= 'f':
		default:
			return false
		}
	}
	return true
}

// Verifier tees a stream through a sha256 hasher so the caller can check the
// observed digest and size after copying.
type Verifier struct {
	hasher hash.Hash
	size   int64
}

func NewVerifier() *Verifier {
	return &Verifier{hasher: sha256.New()}
}

func (v *Verifier) Write(data []byte) (int, error) {
	written, err := v.hasher.Write(data)
	v.size += int64(written)
	return written, err
}

func (v *Verifier) Size() int64 {
	return v.size
}

func (v *Verifier) Digest() string {
	return hex.EncodeToString(v.hasher.Sum(nil))
}

// Check compares the observed stream against the expected size and digest.
// A negative expectedSize skips the size comparison.
func (v *Verifier) Check(expectedSize int64, expectedDigest string) error {
	if expectedSize >= 0 && v.size != expectedSize {
		return fmt.Errorf("expected %d bytes but streamed %d", expectedSize, v.size)
	}
	if digest := v.Digest(); digest != expectedDigest {
		return fmt.Errorf("expected sha256 %s but streamed %s", expectedDigest, digest)
	}
	return nil
}
