package stepper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RampTable is a precomputed acceleration curve: per-step half-period
// delays in seconds, non-increasing from a slow start delay down to the
// minimum delay (maximum pulse frequency). Immutable after construction.
type RampTable struct {
	delays []float64
}

var errEmptyRamp = errors.New("ramp table is empty")

// NewRampTable validates delays and returns a table owning a copy of them.
func NewRampTable(delays []float64) (*RampTable, error) {
	if len(delays) == 0 {
		return nil, errEmptyRamp
	}
	d := make([]float64, len(delays))
	for i, v := range delays {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return nil, fmt.Errorf("ramp delay %d must be positive, got %g", i, v)
		}
		if i > 0 && v > d[i-1] {
			return nil, fmt.Errorf("ramp delay %d (%g) increases over previous (%g)", i, v, d[i-1])
		}
		d[i] = v
	}
	return &RampTable{delays: d}, nil
}

// LoadRampTable reads delays from the first column of a CSV stream.
// Blank lines are ignored.
func LoadRampTable(r io.Reader) (*RampTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var delays []float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ramp line %d: %w", line, err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse ramp line %d: %w", line, err)
		}
		delays = append(delays, v)
	}
	return NewRampTable(delays)
}

// LoadRampFile opens path and parses it with LoadRampTable.
func LoadRampFile(path string) (*RampTable, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open ramp file: %w", err)
	}
	defer f.Close()
	return LoadRampTable(f)
}

// NewConstantAccelRamp synthesizes a table for a constant acceleration
// (pulses/s²) from startHz up to maxHz. The last entry is exactly the
// half-period of maxHz.
func NewConstantAccelRamp(startHz, maxHz, accel float64) (*RampTable, error) {
	if startHz <= 0 || maxHz <= 0 || accel <= 0 {
		return nil, fmt.Errorf("ramp parameters must be positive (start=%g max=%g accel=%g)", startHz, maxHz, accel)
	}
	if startHz > maxHz {
		startHz = maxHz
	}
	var delays []float64
	for n := 0; ; n++ {
		f := math.Sqrt(startHz*startHz + 2*accel*float64(n))
		if f >= maxHz {
			break
		}
		delays = append(delays, 1/(2*f))
	}
	delays = append(delays, 1/(2*maxHz))
	return NewRampTable(delays)
}

// Len returns the number of entries.
func (t *RampTable) Len() int { return len(t.delays) }

// At returns the delay at index i.
func (t *RampTable) At(i int) float64 { return t.delays[i] }

// MinDelay is the shortest half-period the table reaches.
func (t *RampTable) MinDelay() float64 { return t.delays[len(t.delays)-1] }

// StopIndex returns the smallest index whose delay is <= target, i.e. the
// number of steps needed to accelerate from rest to that speed. Targets
// faster than the table allows are clamped to MinDelay first.
func (t *RampTable) StopIndex(target float64) int {
	if target < t.MinDelay() {
		target = t.MinDelay()
	}
	for i, d := range t.delays {
		if d <= target {
			return i
		}
	}
	return len(t.delays) - 1
}
