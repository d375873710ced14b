// Package capturelog appends one CSV line per exposure to a daily log
// file and exports it to removable storage at the end of a run.
package capturelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/passcam/internal/schedule"
)

// Header is written when the log file is created.
const Header = "File Name, Target, Time, Number in Sequence"

// Entry is one exposure.
type Entry struct {
	File   string
	Target string
	Time   time.Time
	Index  int
}

// Log is an open daily capture log. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// FileName returns the log name for the UTC day of t, e.g. 20261019.csv.
func FileName(t time.Time) string {
	return t.UTC().Format("20060102") + ".csv"
}

// Open opens (or creates, writing the header) the log for the UTC day of
// now inside dir.
func Open(dir string, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	created := err == nil
	if errors.Is(err, fs.ErrExist) {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	if created {
		if _, err := f.WriteString(Header + "\n"); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write capture log header: %w", err)
		}
	}
	return &Log{path: path, f: f, w: csv.NewWriter(f)}, nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Record appends e and flushes it to disk.
func (l *Log) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Write([]string{e.File, e.Target, e.Time.UTC().Format("15:04:05"), strconv.Itoa(e.Index)}); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// Export copies the log file into dir.
func (l *Log) Export(dir string) error {
	dst := filepath.Join(dir, filepath.Base(l.path))
	if err := schedule.CopyFile(l.path, dst); err != nil {
		return fmt.Errorf("export capture log to %s: %w", dir, err)
	}
	return nil
}
