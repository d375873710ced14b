package calibration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when no calibration has been persisted.
var ErrNotFound = errors.New("calibration not found")

// Record is the measured travel of both axes, in pulses.
type Record struct {
	PanTotalSteps  int
	TiltTotalSteps int
}

// Load reads rows "pan,<steps>" and "tilt,<steps>". Both must be present.
func Load(path string) (Record, error) {
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("open calibration: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	var rec Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Record{}, fmt.Errorf("read calibration: %w", err)
		}
		if len(row) < 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return Record{}, fmt.Errorf("calibration %s: %w", row[0], err)
		}
		switch strings.TrimSpace(row[0]) {
		case "pan":
			rec.PanTotalSteps = n
		case "tilt":
			rec.TiltTotalSteps = n
		}
	}
	if rec.PanTotalSteps <= 0 || rec.TiltTotalSteps <= 0 {
		return Record{}, fmt.Errorf("calibration %s: missing or non-positive axis travel", path)
	}
	return rec, nil
}

// Save writes rec, replacing any previous calibration.
func Save(path string, rec Record) error {
	data := fmt.Sprintf("pan,%d\ntilt,%d\n", rec.PanTotalSteps, rec.TiltTotalSteps)
	if err := os.WriteFile(filepath.Clean(path), []byte(data), 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	return nil
}
