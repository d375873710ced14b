package predict

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/schedule"
)

// Defaults for Options fields left zero.
const (
	DefaultWindow = 24 * time.Hour
	DefaultStep   = 30 * time.Second
)

const deg = 180 / math.Pi

// Site is the observer position.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// Look is the topocentric direction to a satellite at one instant.
type Look struct {
	Time         time.Time
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
}

// Tracker propagates one element set with SGP4.
type Tracker struct {
	tle TLE
	sat satellite.Satellite
}

// NewTracker initialises SGP4 for t.
func NewTracker(t TLE) (tr *Tracker, err error) {
	defer func() {
		// the element parser panics on unparseable fields
		if r := recover(); r != nil {
			tr, err = nil, fmt.Errorf("%w: %s: %v", ErrInvalidTLE, t.Name, r)
		}
	}()
	sat := satellite.TLEToSat(t.Line1, t.Line2, satellite.GravityWGS72)
	return &Tracker{tle: t, sat: sat}, nil
}

// Look returns the satellite direction from site at the given second.
func (tr *Tracker) Look(site Site, at time.Time) (Look, error) {
	at = at.UTC().Truncate(time.Second)
	year, month, day := at.Date()
	hour, minute, sec := at.Clock()

	pos, _ := satellite.Propagate(tr.sat, year, int(month), day, hour, minute, sec)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return Look{}, fmt.Errorf("propagate %s at %s: no solution", tr.tle.Name, at.Format(time.RFC3339))
	}
	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	obs := satellite.LatLong{Latitude: site.LatitudeDeg / deg, Longitude: site.LongitudeDeg / deg}
	la := satellite.ECIToLookAngles(pos, obs, site.AltitudeM/1000, jd)

	az := math.Mod(la.Az*deg+360, 360)
	return Look{Time: at, AzimuthDeg: az, ElevationDeg: la.El * deg, RangeKm: la.Rg}, nil
}

// Pass is one horizon-to-horizon pass.
type Pass struct {
	Name        string
	CatalogID   string
	Rise        Look
	Set         Look
	Culmination Look
}

// Duration is the time above the horizon.
func (p Pass) Duration() time.Duration { return p.Set.Time.Sub(p.Rise.Time) }

// MaxRangeKm is the larger of the rise and set ranges.
func (p Pass) MaxRangeKm() float64 { return math.Max(p.Rise.RangeKm, p.Set.RangeKm) }

// Schedule projects the pass to the fields the mount needs.
func (p Pass) Schedule() schedule.Pass {
	return schedule.Pass{
		Name:         p.Name,
		CatalogID:    p.CatalogID,
		AzimuthDeg:   p.Culmination.AzimuthDeg,
		ElevationDeg: p.Culmination.ElevationDeg,
		Culmination:  p.Culmination.Time,
	}
}

// Row renders the full source table line.
func (p Pass) Row() schedule.Row {
	r := p.Schedule().Row()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	r[schedule.ColRiseAz] = f(p.Rise.AzimuthDeg)
	r[schedule.ColRiseEl] = f(p.Rise.ElevationDeg)
	r[schedule.ColRiseDate] = p.Rise.Time.Format(schedule.TimeLayout)
	r[schedule.ColSetAz] = f(p.Set.AzimuthDeg)
	r[schedule.ColSetEl] = f(p.Set.ElevationDeg)
	r[schedule.ColSetDate] = p.Set.Time.Format(schedule.TimeLayout)
	r[schedule.ColDuration] = strconv.Itoa(int(p.Duration() / time.Second))
	r[schedule.ColMaxRange] = f(p.MaxRangeKm())
	r[schedule.ColCulmRange] = f(p.Culmination.RangeKm)
	return r
}

// Options bounds a prediction run.
type Options struct {
	From            time.Time
	Window          time.Duration
	Step            time.Duration
	MinElevationDeg float64
}

// Passes returns every complete pass inside the window whose culmination
// reaches MinElevationDeg, sorted by culmination. Passes already above the
// horizon at the window edges are dropped.
func Passes(tles []TLE, site Site, opts Options) ([]Pass, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	from := opts.From.UTC().Truncate(time.Second)

	var out []Pass
	for _, t := range tles {
		tr, err := NewTracker(t)
		if err != nil {
			return nil, err
		}
		found, err := tr.passes(site, from, from.Add(opts.Window), opts.Step, opts.MinElevationDeg)
		if err != nil {
			return nil, err
		}
		debug.Verbose("%s: %d passes", t.Name, len(found))
		out = append(out, found...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Culmination.Time.Before(out[j].Culmination.Time)
	})
	return out, nil
}

func (tr *Tracker) passes(site Site, from, to time.Time, step time.Duration, minEl float64) ([]Pass, error) {
	el := func(at time.Time) (float64, error) {
		l, err := tr.Look(site, at)
		return l.ElevationDeg, err
	}

	var out []Pass
	prevT := from
	prevEl, err := el(from)
	if err != nil {
		return nil, err
	}
	var rise time.Time
	inPass := false

	for t := from.Add(step); !t.After(to); t = t.Add(step) {
		e, err := el(t)
		if err != nil {
			return nil, err
		}
		switch {
		case prevEl <= 0 && e > 0:
			if rise, err = tr.crossing(site, prevT, t, true); err != nil {
				return nil, err
			}
			inPass = true
		case prevEl > 0 && e <= 0 && inPass:
			set, err := tr.crossing(site, prevT, t, false)
			if err != nil {
				return nil, err
			}
			p, err := tr.pass(site, rise, set)
			if err != nil {
				return nil, err
			}
			if p.Culmination.ElevationDeg >= minEl {
				out = append(out, p)
			}
			inPass = false
		}
		prevT, prevEl = t, e
	}
	return out, nil
}

// crossing bisects to the second the horizon is crossed between lo and
// hi. For a rise it returns the first second above, for a set the last.
func (tr *Tracker) crossing(site Site, lo, hi time.Time, rising bool) (time.Time, error) {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		l, err := tr.Look(site, mid)
		if err != nil {
			return time.Time{}, err
		}
		if (l.ElevationDeg > 0) == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	if rising {
		return hi, nil
	}
	return lo, nil
}

// pass locates the culmination between rise and set by ternary search on
// whole seconds.
func (tr *Tracker) pass(site Site, rise, set time.Time) (Pass, error) {
	lo, hi := rise.Unix(), set.Unix()
	el := func(s int64) (float64, error) {
		l, err := tr.Look(site, time.Unix(s, 0))
		return l.ElevationDeg, err
	}
	for hi-lo > 2 {
		m1 := lo + (hi-lo)/3
		m2 := hi - (hi-lo)/3
		e1, err := el(m1)
		if err != nil {
			return Pass{}, err
		}
		e2, err := el(m2)
		if err != nil {
			return Pass{}, err
		}
		if e1 < e2 {
			lo = m1
		} else {
			hi = m2
		}
	}

	best := Look{ElevationDeg: math.Inf(-1)}
	for s := lo; s <= hi; s++ {
		l, err := tr.Look(site, time.Unix(s, 0))
		if err != nil {
			return Pass{}, err
		}
		if l.ElevationDeg > best.ElevationDeg {
			best = l
		}
	}

	r, err := tr.Look(site, rise)
	if err != nil {
		return Pass{}, err
	}
	st, err := tr.Look(site, set)
	if err != nil {
		return Pass{}, err
	}
	return Pass{
		Name:        tr.tle.Name,
		CatalogID:   tr.tle.CatalogID(),
		Rise:        r,
		Set:         st,
		Culmination: best,
	}, nil
}

// WriteSchedule writes passes as a schedule table.
func WriteSchedule(w io.Writer, passes []Pass) error {
	rows := make([]schedule.Row, len(passes))
	for i, p := range passes {
		rows[i] = p.Row()
	}
	return schedule.WriteCSV(w, rows)
}
