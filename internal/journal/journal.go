// Package journal persists pass outcomes and exposures to SQLite so a
// night's run can be reviewed afterwards.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS passes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	name TEXT NOT NULL,
	catalog_id TEXT NOT NULL,
	culmination INTEGER NOT NULL,
	state TEXT NOT NULL,
	pan_rotation_deg REAL NOT NULL,
	tilt_rotation_deg REAL NOT NULL,
	reason TEXT NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS captures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id),
	target TEXT NOT NULL,
	seq_index INTEGER NOT NULL,
	taken_at INTEGER NOT NULL,
	file TEXT NOT NULL,
	error TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS passes_run ON passes(run_id);
CREATE INDEX IF NOT EXISTS captures_run ON captures(run_id);
`

// PassRecord is the final state of one pass.
type PassRecord struct {
	RunID           string
	Name            string
	CatalogID       string
	Culmination     time.Time
	State           string
	PanRotationDeg  float64
	TiltRotationDeg float64
	Reason          string
	RecordedAt      time.Time
}

// CaptureRecord is one exposure attempt. Error is empty on success.
type CaptureRecord struct {
	RunID  string
	Target string
	Index  int
	At     time.Time
	File   string
	Error  string
}

// Store is a SQLite-backed journal. Every record is tagged with the run id
// generated when the store is opened.
type Store struct {
	db    *sql.DB
	runID string
}

// Open opens (creating if needed) the journal at path and starts a new run.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db, runID: uuid.NewString()}
	if _, err := db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		s.runID, time.Now().UTC().UnixMilli()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("start run: %w", err)
	}
	return s, nil
}

// RunID identifies this process run.
func (s *Store) RunID() string { return s.runID }

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPass stores a pass outcome under the current run.
func (s *Store) RecordPass(ctx context.Context, p PassRecord) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO passes (
	run_id, name, catalog_id, culmination, state,
	pan_rotation_deg, tilt_rotation_deg, reason, recorded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		s.runID, p.Name, p.CatalogID, p.Culmination.UTC().UnixMilli(), p.State,
		p.PanRotationDeg, p.TiltRotationDeg, p.Reason, p.RecordedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// RecordCapture stores an exposure attempt under the current run.
func (s *Store) RecordCapture(ctx context.Context, c CaptureRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO captures (run_id, target, seq_index, taken_at, file, error)
VALUES (?, ?, ?, ?, ?, ?)
`,
		s.runID, c.Target, c.Index, c.At.UTC().UnixMilli(), c.File, c.Error,
	)
	if err != nil {
		return fmt.Errorf("record capture: %w", err)
	}
	return nil
}

// ListPasses returns the passes of runID in insertion order.
func (s *Store) ListPasses(ctx context.Context, runID string) ([]PassRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, name, catalog_id, culmination, state,
	pan_rotation_deg, tilt_rotation_deg, reason, recorded_at
FROM passes
WHERE run_id = ?
ORDER BY id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var (
			p                PassRecord
			culm, recordedAt int64
		)
		if err := rows.Scan(&p.RunID, &p.Name, &p.CatalogID, &culm, &p.State,
			&p.PanRotationDeg, &p.TiltRotationDeg, &p.Reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.Culmination = time.UnixMilli(culm).UTC()
		p.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListCaptures returns the exposures of runID in insertion order.
func (s *Store) ListCaptures(ctx context.Context, runID string) ([]CaptureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, target, seq_index, taken_at, file, error
FROM captures
WHERE run_id = ?
ORDER BY id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var (
			c  CaptureRecord
			at int64
		)
		if err := rows.Scan(&c.RunID, &c.Target, &c.Index, &at, &c.File, &c.Error); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		c.At = time.UnixMilli(at).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
