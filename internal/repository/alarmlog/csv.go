package alarmlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one detected alarm to journal. Entries are write-once: the journal
// is never read back by the watcher.
type Entry struct {
	// DetectedAt is when this watcher first saw the alarm.
	DetectedAt time.Time
	// Key is the stable alarm identity.
	Key string
	// PLCTime is the time column as reported by the PLC, verbatim.
	PLCTime string
	// Description is the alarm label.
	Description string
	// RawFields are the remaining scraped columns, verbatim.
	RawFields []string
}

// journalHeader is the fixed column prefix; raw fields follow in table order.
var journalHeader = []string{"detected_at", "key", "plc_time", "description", "ref", "type", "value", "transition", "state"}

// CSVJournal appends detected alarms to a CSV file. The header is written
// once when the file is created; appends survive process restarts.
type CSVJournal struct {
	// path is the filesystem location of the journal.
	path string
	// mu serializes appends within the process.
	mu sync.Mutex
}

// NewCSVJournal creates a journal writing to the provided path.
func NewCSVJournal(path string) *CSVJournal {
	return &CSVJournal{
		path: filepath.Clean(path),
	}
}

// Append writes one row, creating the file with a header when absent.
func (j *CSVJournal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	exists, err := fileExists(j.path)
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	writer := csv.NewWriter(file)

	if !exists {
		if err = writer.Write(journalHeader); err != nil {
			_ = file.Close()

			return fmt.Errorf("write journal header: %w", err)
		}
	}

	row := make([]string, 0, 4+len(entry.RawFields))
	row = append(row,
		entry.DetectedAt.Format(time.RFC3339),
		entry.Key,
		entry.PLCTime,
		entry.Description,
	)
	row = append(row, entry.RawFields...)

	if err = writer.Write(row); err != nil {
		_ = file.Close()

		return fmt.Errorf("write journal row: %w", err)
	}

	writer.Flush()

	if err = writer.Error(); err != nil {
		_ = file.Close()

		return fmt.Errorf("flush journal: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	return nil
}

// fileExists reports whether path exists as a regular file.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}
