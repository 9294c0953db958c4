// Package runlog keeps a bounded JSON history of sync runs on disk.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sipeed/ordersync/pkg/logger"
)

// MaxEntries bounds the history; the oldest entries are evicted first.
const MaxEntries = 100

// Failure records one row that could not be resolved or transformed.
type Failure struct {
	Row   int    `json:"row"`
	Order string `json:"order"`
	Error string `json:"error"`
}

// Entry is one run. Failures keep sheet order.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"run_id,omitempty"`
	Trigger     string    `json:"trigger,omitempty"`
	OrdersSeen  int       `json:"orders_seen"`
	RowsWritten int       `json:"rows_written"`
	WriteError  string    `json:"write_error,omitempty"`
	Failures    []Failure `json:"failures"`
}

// Log appends entries to a JSON array file. Concurrent appenders are not
// coordinated: each publishes its own read-modify-write result atomically
// and the last rename wins.
type Log struct {
	path string
}

var (
	readFile = os.ReadFile
	// renameFile is swapped in tests to simulate a crash before publish.
	renameFile = os.Rename
)

func New(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// Entries returns the stored history, oldest first. A missing or corrupt
// file reads as an empty history.
func (l *Log) Entries() []Entry {
	entries, err := load(l.path)
	if err != nil {
		logger.WarnCF("runlog", "Ignoring unreadable run log", map[string]any{
			"path":  l.path,
			"error": err.Error(),
		})
		return nil
	}
	return entries
}

// Append adds entry, trims the history to MaxEntries and replaces the file
// atomically.
func (l *Log) Append(entry Entry) error {
	entries := l.Entries()
	if entry.Failures == nil {
		entry.Failures = []Failure{}
	}
	entries = append(entries, entry)
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}
	return l.saveAtomic(entries)
}

// saveAtomic writes to a uniquely named temp file next to the target and
// renames it into place, so readers see either the old or the new file.
func (l *Log) saveAtomic(entries []Entry) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create run log dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}
	data = append(data, '\n')

	tempFile := filepath.Join(dir, "."+filepath.Base(l.path)+"."+uuid.NewString()+".tmp")
	if err := writeSynced(tempFile, data); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := renameFile(tempFile, l.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func load(path string) ([]Entry, error) {
	data, err := readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run log %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run log %s: %w", path, err)
	}
	return entries, nil
}
