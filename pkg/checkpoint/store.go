package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Store loads and saves the whole-job Checkpoint as a single JSON file.
// Saves are not re-entrant: the caller is responsible for serializing
// concurrent calls to Save.
type Store struct {
	path string
}

// NewStore creates a Store rooted at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load parses the checkpoint file at path, or returns (nil, nil) if it does
// not exist yet.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: reading %s: %w", s.path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("checkpoint: parsing %s: %w", s.path, err)
	}
	return &c, nil
}

// Save writes the complete checkpoint to path with crash-safe semantics: it
// encodes to a sibling temp file, fsyncs it, then renames over the
// destination, so an observer never sees partial JSON. Renames within the
// same directory are atomic on POSIX filesystems.
func (s *Store) Save(c *Checkpoint) error {
	if c == nil {
		return fmt.Errorf("checkpoint: cannot save nil checkpoint")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: creating directory %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// Always clean up the temp file on any early return; a successful
	// rename makes the Remove a harmless no-op (file already gone).
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("checkpoint: renaming into place: %w", err)
	}
	return nil
}

// Path returns the checkpoint file path this Store was created with.
func (s *Store) Path() string { return s.path }
