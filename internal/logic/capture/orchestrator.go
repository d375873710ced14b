// Package capture sequences the scheduled passes: it slews the mount ahead
// of each culmination, fires the camera around it and parks the mount when
// the schedule is exhausted.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/passcam/internal/capturelog"
	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/camera"
	"github.com/cjeanneret/passcam/internal/hw/stepper"
	"github.com/cjeanneret/passcam/internal/journal"
	"github.com/cjeanneret/passcam/internal/logic/geometry"
	"github.com/cjeanneret/passcam/internal/logic/motion"
	"github.com/cjeanneret/passcam/internal/schedule"
)

// Defaults for Options fields left zero.
const (
	DefaultSlewLead   = 120 * time.Second
	DefaultPoll       = 5 * time.Millisecond
	DefaultFaultFlash = 500 * time.Millisecond
)

// Skip reasons.
const (
	ReasonUnreachable = "unreachable"
	ReasonExpired     = "expired"
	ReasonCancelled   = "cancelled"
)

// ErrEpochMissed marks a capture whose epoch had already passed when the
// pass was reached.
var ErrEpochMissed = errors.New("capture epoch already passed")

const offsetSpread = 10 * time.Second

// DefaultOffsets are the capture epochs relative to culmination.
var DefaultOffsets = []time.Duration{
	-2 * offsetSpread, -offsetSpread, 0, offsetSpread, 2 * offsetSpread,
}

// State is the lifecycle of one pass.
type State int

const (
	Waiting State = iota
	Slewing
	ImagingWindow
	Done
	Skipped
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Slewing:
		return "slewing"
	case ImagingWindow:
		return "imaging"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Positioner exposes an axis' live state. *stepper.Stepper implements it.
type Positioner interface {
	Snapshot() stepper.AxisState
}

// Slewer moves both axes together. *motion.Controller implements it.
type Slewer interface {
	Slew(panRotationDeg, tiltRotationDeg float64) (motion.SlewResult, error)
}

// Indicator is the status LED pair. *indicator.LEDs implements it.
type Indicator interface {
	StartBlink()
	StopBlink()
	SetYellow(on bool)
	FlashRed(d time.Duration)
}

// CaptureLog appends one line per successful exposure.
type CaptureLog interface {
	Record(e capturelog.Entry) error
}

// Journal persists pass outcomes and capture attempts.
type Journal interface {
	RecordPass(ctx context.Context, p journal.PassRecord) error
	RecordCapture(ctx context.Context, c journal.CaptureRecord) error
}

// Metrics counts pass outcomes and capture results.
type Metrics interface {
	RecordPass(outcome string)
	RecordCapture(err error)
}

// Observer is told about every pass state change.
type Observer interface {
	ObservePass(p schedule.Pass, st State, reason string)
}

// Options configures an Orchestrator. Every collaborator is optional.
type Options struct {
	Mount geometry.Mount
	// Park pointing in the sky frame, reached after the last pass.
	HomeAzDeg float64
	HomeElDeg float64

	SlewLead   time.Duration
	Offsets    []time.Duration
	Poll       time.Duration
	FaultFlash time.Duration
	Clock      Clock

	Indicator Indicator
	Log       CaptureLog
	Journal   Journal
	Metrics   Metrics
	Observer  Observer
}

// CaptureEvent is one exposure attempt.
type CaptureEvent struct {
	Target string
	Index  int
	Time   time.Time
	File   string
	Err    error
}

// Outcome is what happened to one pass.
type Outcome struct {
	Pass     schedule.Pass
	State    State
	Reason   string
	Solution geometry.Solution
	Captures []CaptureEvent
}

// Orchestrator runs a schedule against the two axes and the camera.
type Orchestrator struct {
	pan    Positioner
	tilt   Positioner
	slewer Slewer
	camera camera.Camera
	opts   Options
}

// New creates an orchestrator. A nil camera makes every capture a fault.
func New(pan, tilt Positioner, slewer Slewer, cam camera.Camera, opts Options) *Orchestrator {
	if opts.SlewLead <= 0 {
		opts.SlewLead = DefaultSlewLead
	}
	if len(opts.Offsets) == 0 {
		opts.Offsets = DefaultOffsets
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.FaultFlash <= 0 {
		opts.FaultFlash = DefaultFaultFlash
	}
	if opts.Clock == nil {
		opts.Clock = WallClock()
	}
	if cam == nil {
		cam = camera.Unavailable{}
	}
	return &Orchestrator{pan: pan, tilt: tilt, slewer: slewer, camera: cam, opts: opts}
}

// SequenceIndex maps the i-th of n capture offsets to its tag, centred on
// zero: five offsets give -2..2.
func SequenceIndex(i, n int) int {
	return i - n/2
}

// Run processes passes in order, then returns the mount home. Passes must
// be sorted by culmination. Faults on one pass never stop the schedule;
// only ctx cancellation ends it early. The home return runs in every case.
func (o *Orchestrator) Run(ctx context.Context, passes []schedule.Pass) ([]Outcome, error) {
	debug.Section("Pass schedule")
	debug.InfoKV("schedule loaded", "passes", len(passes))

	outcomes := make([]Outcome, 0, len(passes))
	var runErr error
	for i, p := range passes {
		debug.Step(i+1, fmt.Sprintf("%s (%s) at %s", p.Name, p.CatalogID, p.Culmination.UTC().Format(schedule.TimeLayout)))
		out, err := o.runPass(ctx, p)
		outcomes = append(outcomes, out)
		if err != nil {
			runErr = err
			break
		}
	}

	if err := o.Home(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return outcomes, runErr
}

// Home slews both axes to the park pointing.
func (o *Orchestrator) Home() error {
	debug.Live("Returning to home az=%.1f el=%.1f", o.opts.HomeAzDeg, o.opts.HomeElDeg)
	sol := o.solve(o.opts.HomeAzDeg, o.opts.HomeElDeg)
	if !sol.Reachable {
		debug.WarnKV("home pointing unreachable", "pan_deg", sol.PanDeg, "tilt_deg", sol.TiltDeg)
		return fmt.Errorf("home az=%.1f el=%.1f unreachable", o.opts.HomeAzDeg, o.opts.HomeElDeg)
	}
	o.startBlink()
	_, err := o.slewer.Slew(sol.PanRotationDeg, sol.TiltRotationDeg)
	o.stopBlink()
	if err != nil {
		debug.Error(err)
		return fmt.Errorf("home slew: %w", err)
	}
	return nil
}

func (o *Orchestrator) solve(azDeg, elDeg float64) geometry.Solution {
	return o.opts.Mount.Solve(azDeg, elDeg,
		geometry.AxisFromState(o.pan.Snapshot()),
		geometry.AxisFromState(o.tilt.Snapshot()))
}

func (o *Orchestrator) runPass(ctx context.Context, p schedule.Pass) (Outcome, error) {
	out := Outcome{Pass: p, State: Waiting}
	o.observe(p, Waiting, "")

	if o.opts.Clock.Now().After(p.Culmination.Add(o.lastOffset())) {
		debug.WarnKV("pass expired", "target", p.Name, "culmination", p.Culmination.UTC())
		o.skip(ctx, &out, ReasonExpired)
		return out, nil
	}

	out.Solution = o.solve(p.AzimuthDeg, p.ElevationDeg)
	if !out.Solution.Reachable {
		debug.WarnKV("target unreachable", "target", p.Name,
			"az", p.AzimuthDeg, "el", p.ElevationDeg,
			"mount_pan", out.Solution.PanDeg, "mount_tilt", out.Solution.TiltDeg)
		o.skip(ctx, &out, ReasonUnreachable)
		o.flashRed()
		return out, nil
	}

	if err := waitUntil(ctx, o.opts.Clock, p.Culmination.Add(-o.opts.SlewLead), o.opts.Poll); err != nil {
		o.skip(ctx, &out, ReasonCancelled)
		return out, err
	}

	out.State = Slewing
	o.observe(p, Slewing, "")
	debug.Live("Slewing to %s: pan %.2f°, tilt %.2f°", p.Name, out.Solution.PanRotationDeg, out.Solution.TiltRotationDeg)
	o.startBlink()
	if _, err := o.slewer.Slew(out.Solution.PanRotationDeg, out.Solution.TiltRotationDeg); err != nil {
		debug.Error(fmt.Errorf("slew to %s: %w", p.Name, err))
	}
	o.stopBlink()

	out.State = ImagingWindow
	o.observe(p, ImagingWindow, "")
	o.setYellow(true)
	var waitErr error
	for i, off := range o.opts.Offsets {
		epoch := p.Culmination.Add(off)
		index := SequenceIndex(i, len(o.opts.Offsets))
		if o.opts.Clock.Now().Sub(epoch) > o.opts.Poll {
			out.Captures = append(out.Captures, o.missed(ctx, p.Name, index, epoch))
			continue
		}
		if waitErr = waitUntil(ctx, o.opts.Clock, epoch, o.opts.Poll); waitErr != nil {
			break
		}
		out.Captures = append(out.Captures, o.capture(ctx, p.Name, index))
	}
	o.setYellow(false)

	if waitErr != nil {
		o.skip(ctx, &out, ReasonCancelled)
		return out, waitErr
	}

	out.State = Done
	o.observe(p, Done, "")
	o.metricsPass(Done, "")
	o.journalPass(ctx, out)
	debug.InfoKV("pass done", "target", p.Name, "captures", len(out.Captures))
	return out, nil
}

func (o *Orchestrator) capture(ctx context.Context, target string, index int) CaptureEvent {
	o.setYellow(false)
	file, err := o.camera.Capture(ctx)
	o.setYellow(true)

	ev := CaptureEvent{Target: target, Index: index, Time: o.opts.Clock.Now().UTC(), File: file, Err: err}
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordCapture(err)
	}
	if o.opts.Journal != nil {
		rec := journal.CaptureRecord{Target: target, Index: index, At: ev.Time, File: file}
		if err != nil {
			rec.Error = err.Error()
		}
		if jerr := o.opts.Journal.RecordCapture(context.WithoutCancel(ctx), rec); jerr != nil {
			debug.Error(jerr)
		}
	}

	if err != nil {
		debug.Error(fmt.Errorf("capture %s #%d: %w", target, index, err))
		o.flashRed()
		return ev
	}

	debug.Shot(target, index, file)
	if o.opts.Log != nil {
		if lerr := o.opts.Log.Record(capturelog.Entry{File: file, Target: target, Time: ev.Time, Index: index}); lerr != nil {
			debug.Error(lerr)
		}
	}
	return ev
}

// missed records an epoch that had already passed when the pass reached
// it. The camera is not fired.
func (o *Orchestrator) missed(ctx context.Context, target string, index int, epoch time.Time) CaptureEvent {
	late := o.opts.Clock.Now().Sub(epoch)
	debug.WarnKV("capture epoch missed", "target", target, "index", index, "late", late)
	ev := CaptureEvent{Target: target, Index: index, Time: epoch.UTC(), Err: ErrEpochMissed}
	if o.opts.Journal != nil {
		rec := journal.CaptureRecord{Target: target, Index: index, At: ev.Time, Error: ErrEpochMissed.Error()}
		if jerr := o.opts.Journal.RecordCapture(context.WithoutCancel(ctx), rec); jerr != nil {
			debug.Error(jerr)
		}
	}
	return ev
}

func (o *Orchestrator) skip(ctx context.Context, out *Outcome, reason string) {
	out.State = Skipped
	out.Reason = reason
	o.observe(out.Pass, Skipped, reason)
	o.metricsPass(Skipped, reason)
	o.journalPass(ctx, *out)
}

func (o *Orchestrator) lastOffset() time.Duration {
	last := o.opts.Offsets[0]
	for _, off := range o.opts.Offsets[1:] {
		if off > last {
			last = off
		}
	}
	return last
}

func (o *Orchestrator) observe(p schedule.Pass, st State, reason string) {
	debug.Verbose("Pass %s: %s %s", p.Name, st, reason)
	if o.opts.Observer != nil {
		o.opts.Observer.ObservePass(p, st, reason)
	}
}

func (o *Orchestrator) metricsPass(st State, reason string) {
	if o.opts.Metrics == nil {
		return
	}
	switch {
	case st == Done:
		o.opts.Metrics.RecordPass("done")
	case reason == ReasonExpired:
		o.opts.Metrics.RecordPass("expired")
	default:
		o.opts.Metrics.RecordPass("skipped")
	}
}

func (o *Orchestrator) journalPass(ctx context.Context, out Outcome) {
	if o.opts.Journal == nil {
		return
	}
	rec := journal.PassRecord{
		Name:            out.Pass.Name,
		CatalogID:       out.Pass.CatalogID,
		Culmination:     out.Pass.Culmination,
		State:           out.State.String(),
		PanRotationDeg:  out.Solution.PanRotationDeg,
		TiltRotationDeg: out.Solution.TiltRotationDeg,
		Reason:          out.Reason,
		RecordedAt:      o.opts.Clock.Now().UTC(),
	}
	if err := o.opts.Journal.RecordPass(context.WithoutCancel(ctx), rec); err != nil {
		debug.Error(err)
	}
}

func (o *Orchestrator) startBlink() {
	if o.opts.Indicator != nil {
		o.opts.Indicator.StartBlink()
	}
}

func (o *Orchestrator) stopBlink() {
	if o.opts.Indicator != nil {
		o.opts.Indicator.StopBlink()
	}
}

func (o *Orchestrator) setYellow(on bool) {
	if o.opts.Indicator != nil {
		o.opts.Indicator.SetYellow(on)
	}
}

func (o *Orchestrator) flashRed() {
	if o.opts.Indicator != nil {
		o.opts.Indicator.FlashRed(o.opts.FaultFlash)
	}
}
