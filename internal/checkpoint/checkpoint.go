// Package checkpoint persists the pending accumulator between a flush
// attempt and its commit, so a failed interval can be replayed on the next
// run without re-reading input.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/gamestats/internal/aggregate"
)

// FileName is the checkpoint file inside the scratch directory.
const FileName = "pending.ckpt"

// Store reads and writes the checkpoint file. A nil *Store is valid and
// disables checkpointing.
type Store struct {
	dir string
}

// New returns a Store under dir, or nil when dir is empty.
func New(dir string) *Store {
	if dir == "" {
		return nil
	}
	return &Store{dir: dir}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return filepath.Join(s.dir, FileName)
}

// Save atomically replaces the checkpoint with snap.
func (s *Store) Save(snap aggregate.Snapshot) error {
	if s == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encode(tmp, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// Load reads the checkpoint. ok is false when none exists.
func (s *Store) Load() (snap aggregate.Snapshot, ok bool, err error) {
	if s == nil {
		return aggregate.Snapshot{}, false, nil
	}
	f, err := os.Open(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return aggregate.Snapshot{}, false, nil
	}
	if err != nil {
		return aggregate.Snapshot{}, false, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return aggregate.Snapshot{}, false, fmt.Errorf("checkpoint: zstd reader: %w", err)
	}
	defer dec.Close()

	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return aggregate.Snapshot{}, false, fmt.Errorf("checkpoint: decode %s: %w", s.Path(), err)
	}
	return snap, true, nil
}

// Clear removes the checkpoint. A missing file is not an error.
func (s *Store) Clear() error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: remove: %w", err)
	}
	return nil
}

func encode(w io.Writer, snap aggregate.Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
