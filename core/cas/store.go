// Package cas is the content-addressed store under the scie base directory.
// Artifacts live at <base>/<hash>/<name>, lock files at <base>/locks/<hash>,
// and binding state under <base>/bindings. Writers stage into a sibling
// temporary directory and promote by atomic rename; a completion marker is
// the only thing readers trust.
package cas

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/fingerprint"
	"github.com/scietool/jump/core/fsx"
)

const completeMarker = ".complete"

type Store struct {
	Base string
}

func NewStore(base string) *Store {
	return &Store{Base: base}
}

func (s *Store) artifactDir(hash string) string {
	return filepath.Join(s.Base, hash)
}

func (s *Store) lockPath(hash string) string {
	return filepath.Join(s.Base, "locks", hash)
}

// BindingsDir is the root of per-scie binding working directories.
func (s *Store) BindingsDir() string {
	return filepath.Join(s.Base, "bindings")
}

// BindingDir is the working directory owned by the binding with the given
// identity hash.
func (s *Store) BindingDir(identity string) string {
	return filepath.Join(s.BindingsDir(), identity)
}

// BindingOutputsPath is where a completed binding's captured k=v output lines
// persist.
func (s *Store) BindingOutputsPath(identity string) string {
	return filepath.Join(s.BindingDir(identity), ".outputs")
}

// BindingLockPath serializes execution of the binding with the given
// identity hash.
func (s *Store) BindingLockPath(identity string) string {
	return filepath.Join(s.BindingsDir(), "locks", identity)
}

// ArtifactPath is the materialized location of a file entry: the file itself
// for blobs, the unpacked directory for everything else.
func (s *Store) ArtifactPath(file config.File) string {
	return filepath.Join(s.artifactDir(file.Hash), file.Name)
}

// IsMaterialized reports whether the artifact for hash has been fully
// extracted and promoted.
func (s *Store) IsMaterialized(hash string) bool {
	_, err := os.Stat(filepath.Join(s.artifactDir(hash), completeMarker))
	return err == nil
}

// Materialize extracts a payload into the store unless it is already present,
// verifying the bytes against the entry's hash and size first. Concurrent
// invocations serialize on an advisory lock; later arrivals take the marker
// fast path.
func (s *Store) Materialize(file config.File, payload []byte) (string, error) {
	if file.Hash == "" {
		return "", fmt.Errorf("file %q has no hash to materialize under", file.Name)
	}
	target := s.ArtifactPath(file)
	if s.IsMaterialized(file.Hash) {
		return target, nil
	}

	err := fsx.WithExclusiveLock(s.lockPath(file.Hash), func() error {
		if s.IsMaterialized(file.Hash) {
			return nil
		}
		verifier := fingerprint.NewVerifier()
		_, _ = verifier.Write(payload)
		expectedSize := int64(-1)
		if file.Size != nil {
			expectedSize = int64(*file.Size)
		}
		if err := verifier.Check(expectedSize, file.Hash); err != nil {
			return fmt.Errorf("payload for %q did not verify: %w", file.Name, err)
		}

		staging := s.artifactDir(file.Hash) + ".tmp-" + uuid.NewString()
		if err := os.MkdirAll(staging, 0o755); err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}
		cleanup := true
		defer func() {
			if cleanup {
				_ = os.RemoveAll(staging)
			}
		}()
		if err := unpack(file, payload, filepath.Join(staging, file.Name)); err != nil {
			return err
		}
		if err := fsx.PromoteDir(staging, s.artifactDir(file.Hash)); err != nil {
			return err
		}
		cleanup = false
		return fsx.WriteFileAtomic(filepath.Join(s.artifactDir(file.Hash), completeMarker), nil, 0o644)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}
