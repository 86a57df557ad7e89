package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Open opens a .pgn file, or a .pgn.zst file with transparent decompression.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// IsPGNFile reports whether name looks like a .pgn or .pgn.zst file.
func IsPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		return filepath.Ext(strings.TrimSuffix(name, ext)) == ".pgn"
	}
	return false
}

// InputName identifies the file at path for resuming an interrupted run:
// its base name and size. A file moved back into place after a failed run
// keeps its name.
func InputName(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", filepath.Base(path), fi.Size()), nil
}
