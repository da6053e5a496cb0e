package alarmlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jorgeroden/plc-alarm-watcher/internal/source"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)

	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	require.NoError(t, err)

	return rows
}

// TestCSVJournal_HeaderOnce writes the header only on file creation,
// including across journal reopen.
func TestCSVJournal_HeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarms.csv")
	detected := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

	entry := Entry{
		DetectedAt:  detected,
		Key:         "A1|10:00:00|Ocurrido|1|Fallo quemador",
		PLCTime:     "10:00:00",
		Description: "Fallo quemador",
		RawFields:   []string{"A1", "Digital", "1", "Ocurrido", "Activa"},
	}

	journal := NewCSVJournal(path)
	require.NoError(t, journal.Append(entry))

	// Fresh journal instance, as after a restart.
	entry.Key = "B2|10:05:00|Ocurrido|1|Temperatura alta"
	require.NoError(t, NewCSVJournal(path).Append(entry))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, journalHeader, rows[0])
	require.Equal(t, detected.Format(time.RFC3339), rows[1][0])
	require.Equal(t, "Fallo quemador", rows[1][3])
	require.Equal(t, "Activa", rows[1][8])
	require.Equal(t, "B2|10:05:00|Ocurrido|1|Temperatura alta", rows[2][1])
}

func sampleSignals() []source.Signal {
	return []source.Signal{
		{Code: "S1", Label: "Temp caldera", Value: "72.5", Unit: "C"},
		{Code: "S2", Label: "Presion", Value: "1.4", Unit: "bar"},
	}
}

// TestSignalsJournal_AppendAndHeader writes a header derived from the sensor
// set and one value row per snapshot.
func TestSignalsJournal_AppendAndHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.csv")
	journal := NewSignalsJournal(path)

	at := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, journal.Append(at, "http://plc/S.htm", sampleSignals()))
	require.NoError(t, journal.Append(at.Add(time.Minute), "http://plc/S.htm", sampleSignals()))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"timestamp_local", "source_url", "S1 Temp caldera [C]", "S2 Presion [bar]"}, rows[0])
	require.Equal(t, []string{at.Format(time.RFC3339), "http://plc/S.htm", "72.5", "1.4"}, rows[1])
}

// TestSignalsJournal_RotatesOnHeaderChange archives the old file when the
// sensor column set changes.
func TestSignalsJournal_RotatesOnHeaderChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "signals.csv")

	journal := NewSignalsJournal(path)
	journal.now = func() time.Time { return time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC) }

	at := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, journal.Append(at, "http://plc/S.htm", sampleSignals()))

	changed := append(sampleSignals(), source.Signal{Code: "S3", Label: "Nivel pellet", Value: "80", Unit: "%"})
	require.NoError(t, journal.Append(at.Add(time.Minute), "http://plc/S.htm", changed))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	require.Len(t, rows[0], 5)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var archived string

	for _, e := range entries {
		if e.Name() != "signals.csv" {
			archived = e.Name()
		}
	}

	require.True(t, strings.HasPrefix(archived, "signals_20260210_093000"))
}

// TestSignalsJournal_EmptySnapshot is a no-op.
func TestSignalsJournal_EmptySnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signals.csv")
	require.NoError(t, NewSignalsJournal(path).Append(time.Now(), "http://plc/S.htm", nil))

	_, err := os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}
