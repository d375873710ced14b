// Package schedule loads the pass schedule: a CSV table exported by a pass
// prediction tool, of which only five columns are used.
package schedule

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
	"time"

	"github.com/cjeanneret/passcam/internal/debug"
)

// TimeLayout is the culmination timestamp format, in UTC.
const TimeLayout = "2006-01-02 15:04:05"

// Column positions of the fields read from the source table.
const (
	ColName        = 0
	ColCatalog     = 1
	ColAzimuth     = 10
	ColElevation   = 11
	ColCulmination = 13
	NumColumns     = 14
)

// Columns present in the source table but not read by the mount.
const (
	ColRiseAz    = 2
	ColRiseEl    = 3
	ColRiseDate  = 4
	ColSetAz     = 5
	ColSetEl     = 6
	ColSetDate   = 7
	ColDuration  = 8
	ColMaxRange  = 9
	ColCulmRange = 12
)

// Header is the full source table header.
var Header = [NumColumns]string{
	"Sat Name",
	"Catalog No",
	"Rise AZ (deg)",
	"Rise EL (deg)",
	"Rise Date",
	"Set AZ (deg)",
	"Set EL (deg)",
	"Set Date",
	"Duration (s)",
	"Max Range (km)",
	"Culmination AZ (deg)",
	"Culmination EL (deg)",
	"Culmination Range (km)",
	"Culmination Date",
}

var (
	// ErrInvalidFormat is returned for a wrong header or malformed row.
	ErrInvalidFormat = errors.New("invalid schedule format")
	// ErrNotFound is returned when the schedule file does not exist.
	ErrNotFound = errors.New("schedule not found")
)

// Pass is one culmination event to photograph.
type Pass struct {
	Name         string
	CatalogID    string
	AzimuthDeg   float64
	ElevationDeg float64
	Culmination  time.Time
}

// Row is one full line of the source table.
type Row [NumColumns]string

// Row returns a source table line carrying the pass' columns.
func (p Pass) Row() Row {
	var r Row
	r[ColName] = p.Name
	r[ColCatalog] = p.CatalogID
	r[ColAzimuth] = strconv.FormatFloat(p.AzimuthDeg, 'f', 2, 64)
	r[ColElevation] = strconv.FormatFloat(p.ElevationDeg, 'f', 2, 64)
	r[ColCulmination] = p.Culmination.UTC().Format(TimeLayout)
	return r
}

// Parse reads the source table. The header must carry the expected names
// in the used columns; every row must be complete and parseable.
// Passes are returned in file order.
func Parse(r io.Reader) ([]Pass, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var passes []Pass
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidFormat, line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		p, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidFormat, line, err)
		}
		passes = append(passes, p)
	}
	return passes, nil
}

func checkHeader(h []string) error {
	if len(h) < NumColumns {
		return fmt.Errorf("%w: header has %d columns, want %d", ErrInvalidFormat, len(h), NumColumns)
	}
	for _, col := range []int{ColName, ColCatalog, ColAzimuth, ColElevation, ColCulmination} {
		if got := strings.TrimSpace(h[col]); got != Header[col] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidFormat, col, got, Header[col])
		}
	}
	return nil
}

func parseRow(rec []string) (Pass, error) {
	if len(rec) < NumColumns {
		return Pass{}, fmt.Errorf("%d columns, want %d", len(rec), NumColumns)
	}
	az, err := strconv.ParseFloat(strings.TrimSpace(rec[ColAzimuth]), 64)
	if err != nil {
		return Pass{}, fmt.Errorf("azimuth: %w", err)
	}
	el, err := strconv.ParseFloat(strings.TrimSpace(rec[ColElevation]), 64)
	if err != nil {
		return Pass{}, fmt.Errorf("elevation: %w", err)
	}
	at, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(rec[ColCulmination]), time.UTC)
	if err != nil {
		return Pass{}, fmt.Errorf("culmination: %w", err)
	}
	return Pass{
		Name:         strings.TrimSpace(rec[ColName]),
		CatalogID:    strings.TrimSpace(rec[ColCatalog]),
		AzimuthDeg:   az,
		ElevationDeg: el,
		Culmination:  at,
	}, nil
}

// Load opens and parses a schedule file.
func Load(path string) ([]Pass, error) {
	debug.Info("Opening schedule %s", path)
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	passes, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	debug.InfoKV("schedule loaded", "path", path, "passes", len(passes))
	return passes, nil
}

// CopyFile copies src to dst, replacing dst. The data is written to a
// temporary file beside dst and renamed over it, so a failed copy leaves
// dst untouched.
func CopyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if err != nil {
		return err
	}
	defer in.Close()

	dst = filepath.Clean(dst)
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Fetch loads the schedule, first refreshing localPath from usbPath when
// one is given. A failed copy falls back to the existing local file.
func Fetch(usbPath, localPath string) ([]Pass, error) {
	if usbPath != "" {
		if err := CopyFile(usbPath, localPath); err != nil {
			debug.WarnKV("could not copy schedule, using local file", "source", usbPath, "error", err)
		} else {
			debug.Info("Copied schedule from %s", usbPath)
		}
	}
	return Load(localPath)
}

// WriteCSV writes the header and rows in the source table format.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header[:]); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r[:]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
