package cas

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/zipx"
)

// unpack writes one payload under dst: a single file for blobs, an unpacked
// tree for archives. Directory entries were packed as zips, so they use the
// zip decoder.
func unpack(file config.File, payload []byte, dst string) error {
	switch file.Type {
	case config.TypeBlob, "":
		mode := os.FileMode(0o644)
		if file.Executable {
			mode = 0o755
		}
		if err := os.WriteFile(dst, payload, mode); err != nil {
			return fmt.Errorf("write blob %q: %w", file.Name, err)
		}
		return nil
	case config.TypeZip, config.TypeDirectory:
		reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			return fmt.Errorf("open zip payload %q: %w", file.Name, err)
		}
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("create extraction root for %q: %w", file.Name, err)
		}
		return zipx.Extract(reader, dst)
	case config.TypeTar, config.TypeTarGz, config.TypeTarBz2, config.TypeTarXz, config.TypeTarZst:
		stream, closeStream, err := decompress(file.Type, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("open %s payload %q: %w", file.Type, file.Name, err)
		}
		defer closeStream()
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return fmt.Errorf("create extraction root for %q: %w", file.Name, err)
		}
		if err := untar(stream, dst); err != nil {
			return fmt.Errorf("unpack %s payload %q: %w", file.Type, file.Name, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported archive type %q for file %q", file.Type, file.Name)
	}
}

func decompress(fileType config.FileType, reader io.Reader) (io.Reader, func(), error) {
	switch fileType {
	case config.TypeTar:
		return reader, func() {}, nil
	case config.TypeTarGz:
		gzReader, err := gzip.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return gzReader, func() { _ = gzReader.Close() }, nil
	case config.TypeTarBz2:
		bz2Reader, err := bzip2.NewReader(reader, nil)
		if err != nil {
			return nil, nil, err
		}
		return bz2Reader, func() { _ = bz2Reader.Close() }, nil
	case config.TypeTarXz:
		xzReader, err := xz.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return xzReader, func() {}, nil
	case config.TypeTarZst:
		zstReader, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, err
		}
		return zstReader.IOReadCloser(), func() { zstReader.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("no decoder for %q", fileType)
	}
}

func untar(stream io.Reader, dst string) error {
	tarReader := tar.NewReader(stream)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		target, err := tarDestination(dst, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent of %s: %w", target, err)
			}
			mode := os.FileMode(header.Mode).Perm()
			if mode == 0 {
				mode = 0o644
			}
			if err := writeTarFile(tarReader, target, mode); err != nil {
				return err
			}
		}
	}
}

func writeTarFile(tarReader *tar.Reader, target string, mode os.FileMode) error {
	// #nosec G304 -- target is validated to stay under the extraction root.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer func() {
		_ = out.Close()
	}()
	// #nosec G110 -- payload sizes are bounded by the scie the user chose to run.
	if _, err := io.Copy(out, tarReader); err != nil {
		return fmt.Errorf("extract tar entry to %s: %w", target, err)
	}
	return nil
}

func tarDestination(dst, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || cleaned == ".." {
		return "", fmt.Errorf("tar entry %q escapes the extraction root", name)
	}
	return filepath.Join(dst, cleaned), nil
}
