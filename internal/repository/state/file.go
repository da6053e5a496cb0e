package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jorgeroden/plc-alarm-watcher/internal/config"
	domain "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
)

// Repository defines persistence operations for the seen set.
type Repository interface {
	Load(ctx context.Context) (domain.SeenSet, error)
	Save(ctx context.Context, seen domain.SeenSet) error
}

// FileRepository persists the seen set to a small JSON file on disk.
// Saves go through a temp file in the same directory followed by a rename,
// so a crash mid-save leaves either the old or the new state, never a torn one.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the state file does not exist yet.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt is returned when the state file exists but cannot be decoded.
	// Callers degrade to an empty seen set rather than crashing.
	ErrCorrupt = errors.New("state file is corrupt")
)

// fileFormatVersion guards against reading a file written by an
// incompatible build.
const fileFormatVersion = 1

// fileEntry is the on-disk shape of one seen-set entry.
type fileEntry struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// fileState is the on-disk shape of the whole seen set.
type fileState struct {
	Version int                  `json:"version"`
	SavedAt time.Time            `json:"saved_at"`
	Entries map[string]fileEntry `json:"entries"`
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the seen set from disk.
func (r *FileRepository) Load(_ context.Context) (domain.SeenSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var stored fileState
	if err = json.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode state file: %w", ErrCorrupt)
	}

	if stored.Version != fileFormatVersion {
		return nil, fmt.Errorf("state file version %d: %w", stored.Version, ErrCorrupt)
	}

	seen := make(domain.SeenSet, len(stored.Entries))
	for key, entry := range stored.Entries {
		seen[key] = domain.SeenEntry{
			FirstSeen: entry.FirstSeen,
			LastSeen:  entry.LastSeen,
		}
	}

	return seen, nil
}

// Save writes the seen set to disk atomically.
func (r *FileRepository) Save(_ context.Context, seen domain.SeenSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[string]fileEntry, len(seen))
	for key, entry := range seen {
		entries[key] = fileEntry{
			FirstSeen: entry.FirstSeen,
			LastSeen:  entry.LastSeen,
		}
	}

	data, err := json.MarshalIndent(fileState{
		Version: fileFormatVersion,
		SavedAt: time.Now().UTC(),
		Entries: entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	// Temp file in the target directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write temp state file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close temp state file: %w", err)
	}

	if err = os.Chmod(tmpName, config.DefaultFilePermissions); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod temp state file: %w", err)
	}

	if err = os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
