package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/jorgeroden/plc-alarm-watcher/internal/domain/alarm"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.json"))

	seen, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, seen)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns an equal set.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(file)

	now := time.Now().UTC().Truncate(time.Second)
	want := domain.SeenSet{
		"A1|10:00:00|Ocurrido|1|Fallo quemador": {
			FirstSeen: now.Add(-time.Hour),
			LastSeen:  now,
		},
		"B2|10:05:00|Ocurrido|1|Temperatura alta": {
			FirstSeen: now,
			LastSeen:  now,
		},
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestFileRepository_SaveEmpty persists and restores an empty set.
func TestFileRepository_SaveEmpty(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(file)

	require.NoError(t, repo.Save(context.Background(), domain.NewSeenSet()))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestFileRepository_Corrupt verifies undecodable content surfaces ErrCorrupt.
func TestFileRepository_Corrupt(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{ truncated"), 0o600))

	repo := NewFileRepository(file)

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}

// TestFileRepository_VersionMismatch treats an unknown format version as corrupt.
func TestFileRepository_VersionMismatch(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"version":99,"entries":{}}`), 0o600))

	repo := NewFileRepository(file)

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}

// TestFileRepository_SaveReplacesAtomically overwrites prior state and leaves
// no temp files behind.
func TestFileRepository_SaveReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "state.json")
	repo := NewFileRepository(file)

	now := time.Now().UTC().Truncate(time.Second)

	first := domain.NewSeenSet()
	first.Mark("old", now)
	require.NoError(t, repo.Save(context.Background(), first))

	second := domain.NewSeenSet()
	second.Mark("new", now)
	require.NoError(t, repo.Save(context.Background(), second))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.True(t, got.Contains("new"))
	require.False(t, got.Contains("old"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
