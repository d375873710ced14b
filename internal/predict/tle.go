// Package predict finds satellite culminations over an observing site from
// two-line element sets and renders them as a pass schedule.
package predict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidTLE is returned for element sets that fail format checks.
var ErrInvalidTLE = errors.New("invalid TLE")

const tleLineLen = 69

// TLE is one named two-line element set.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// CatalogID is the NORAD catalog number from line 1.
func (t TLE) CatalogID() string {
	return strings.TrimSpace(t.Line1[2:7])
}

// ParseTLE reads element sets in two- or three-line form. A set without
// a title line is named after its catalog number.
func ParseTLE(r io.Reader) ([]TLE, error) {
	var (
		out  []TLE
		name string
		l1   string
		n    int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), " \r")
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "1 ") && l1 == "":
			if err := checkLine(line, '1'); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			l1 = line
		case strings.HasPrefix(line, "2 ") && l1 != "":
			if err := checkLine(line, '2'); err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			if line[2:7] != l1[2:7] {
				return nil, fmt.Errorf("line %d: %w: catalog number mismatch", n, ErrInvalidTLE)
			}
			t := TLE{Name: strings.TrimSpace(name), Line1: l1, Line2: line}
			if t.Name == "" {
				t.Name = t.CatalogID()
			}
			out = append(out, t)
			name, l1 = "", ""
		case l1 == "":
			name = strings.TrimPrefix(line, "0 ")
		default:
			return nil, fmt.Errorf("line %d: %w: expected line 2", n, ErrInvalidTLE)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if l1 != "" {
		return nil, fmt.Errorf("%w: truncated element set", ErrInvalidTLE)
	}
	return out, nil
}

// LoadTLE reads element sets from a file.
func LoadTLE(path string) ([]TLE, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTLE(f)
}

func checkLine(line string, num byte) error {
	if len(line) != tleLineLen {
		return fmt.Errorf("%w: line %c has %d characters", ErrInvalidTLE, num, len(line))
	}
	if line[0] != num {
		return fmt.Errorf("%w: expected line %c", ErrInvalidTLE, num)
	}
	want := int(line[tleLineLen-1] - '0')
	if got := checksum(line[:tleLineLen-1]); got != want {
		return fmt.Errorf("%w: line %c checksum %d, want %d", ErrInvalidTLE, num, got, want)
	}
	return nil
}

// checksum is the modulo-10 sum of digits, minus signs counting as one.
func checksum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}
