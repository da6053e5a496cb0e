package alarmlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jorgeroden/plc-alarm-watcher/internal/source"
)

// SignalsJournal appends one wide row per cycle with the value of every
// sensor on the PLC signals page. When the sensor column set changes, the
// existing file is archived under a timestamped name and a fresh file with
// the new header is started.
type SignalsJournal struct {
	// path is the filesystem location of the snapshot CSV.
	path string
	// mu serializes appends within the process.
	mu sync.Mutex
	// now is overridable for tests.
	now func() time.Time
}

// NewSignalsJournal creates a signals journal writing to the provided path.
func NewSignalsJournal(path string) *SignalsJournal {
	return &SignalsJournal{
		path: filepath.Clean(path),
		now:  time.Now,
	}
}

// Append writes one snapshot row. An empty snapshot is skipped.
func (j *SignalsJournal) Append(at time.Time, sourceURL string, signals []source.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	header := snapshotHeader(signals)

	exists, err := fileExists(j.path)
	if err != nil {
		return fmt.Errorf("stat signals journal: %w", err)
	}

	if exists {
		matches, err := headerMatches(j.path, header)
		if err != nil {
			return fmt.Errorf("check signals header: %w", err)
		}

		if !matches {
			if err = j.archive(); err != nil {
				return err
			}

			exists = false
		}
	}

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open signals journal: %w", err)
	}

	writer := csv.NewWriter(file)

	if !exists {
		if err = writer.Write(header); err != nil {
			_ = file.Close()

			return fmt.Errorf("write signals header: %w", err)
		}
	}

	row := make([]string, 0, 2+len(signals))
	row = append(row, at.Format(time.RFC3339), sourceURL)

	for _, signal := range signals {
		row = append(row, signal.Value)
	}

	if err = writer.Write(row); err != nil {
		_ = file.Close()

		return fmt.Errorf("write signals row: %w", err)
	}

	writer.Flush()

	if err = writer.Error(); err != nil {
		_ = file.Close()

		return fmt.Errorf("flush signals journal: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close signals journal: %w", err)
	}

	return nil
}

// archive renames the current file to a timestamped sibling.
func (j *SignalsJournal) archive() error {
	stamp := j.now().Format("20060102_150405")
	ext := filepath.Ext(j.path)
	archived := strings.TrimSuffix(j.path, ext) + "_" + stamp + ext

	if err := os.Rename(j.path, archived); err != nil {
		return fmt.Errorf("archive signals journal: %w", err)
	}

	return nil
}

// snapshotHeader derives the column set from the current signals.
func snapshotHeader(signals []source.Signal) []string {
	header := make([]string, 0, 2+len(signals))
	header = append(header, "timestamp_local", "source_url")

	for _, signal := range signals {
		column := strings.TrimSpace(signal.Code + " " + signal.Label)
		if signal.Unit != "" {
			column += " [" + signal.Unit + "]"
		}

		header = append(header, column)
	}

	return header
}

// headerMatches compares the file's first line against the expected header.
func headerMatches(path string, header []string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}

	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	existing, err := reader.Read()
	if err != nil {
		// Unreadable first line: treat as a header change and rotate.
		return false, nil
	}

	if len(existing) != len(header) {
		return false, nil
	}

	for i := range header {
		if existing[i] != header[i] {
			return false, nil
		}
	}

	return true, nil
}
