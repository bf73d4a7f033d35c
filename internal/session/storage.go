package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// logFileName is the on-disk file within the state directory.
const logFileName = "executions.json"

// Save persists the log to dir atomically (temp file + rename), newest
// first, already truncated to the cap.
func (l *Log) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	data, err := json.MarshalIndent(l.List(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}

	path := filepath.Join(dir, logFileName)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write execution log: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save execution log: %w", err)
	}

	return nil
}

// Load reads a previously saved log from dir. A missing file is not an
// error; a corrupt file is, so callers can decide to start fresh.
func Load(dir string, max int) (*Log, error) {
	l := NewLog(max)

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution log: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse execution log: %w", err)
	}

	// Stored newest-first; append oldest-first so eviction keeps the
	// newest entries.
	for i := len(records) - 1; i >= 0; i-- {
		l.Append(records[i])
	}
	return l, nil
}
