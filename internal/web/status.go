package web

import (
	"sync"
	"time"

	"github.com/cjeanneret/passcam/internal/hw/stepper"
	"github.com/cjeanneret/passcam/internal/logic/capture"
	"github.com/cjeanneret/passcam/internal/schedule"
)

// AxisSource exposes one axis' live state. *stepper.Stepper implements it.
type AxisSource interface {
	Snapshot() stepper.AxisState
}

// AxisView is the JSON form of an axis.
type AxisView struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Calibrated bool   `json:"calibrated"`
	Position   int    `json:"position"`
	MinStep    int    `json:"min_step"`
	MaxStep    int    `json:"max_step"`
}

// Snapshot is the GET /status body.
type Snapshot struct {
	Started string         `json:"started"`
	Current *PassEvent     `json:"current,omitempty"`
	Counts  map[string]int `json:"counts"`
	Axes    []AxisView     `json:"axes"`
}

// Status tracks the pass in progress and outcome counts. It implements
// capture.Observer and republishes every change on the stream.
type Status struct {
	b    *StatusBroadcaster
	axes []AxisSource

	mu      sync.Mutex
	started time.Time
	current *PassEvent
	counts  map[string]int
}

// NewStatus creates a tracker publishing to b. b may be nil.
func NewStatus(b *StatusBroadcaster, axes ...AxisSource) *Status {
	return &Status{
		b:       b,
		axes:    axes,
		started: time.Now().UTC(),
		counts:  make(map[string]int),
	}
}

// ObservePass records a pass state change.
func (s *Status) ObservePass(p schedule.Pass, st capture.State, reason string) {
	evt := PassEvent{
		Name:        p.Name,
		CatalogID:   p.CatalogID,
		Culmination: p.Culmination.UTC().Format(time.RFC3339),
		State:       st.String(),
		Reason:      reason,
	}

	s.mu.Lock()
	switch st {
	case capture.Done, capture.Skipped:
		s.counts[evt.State]++
		s.current = nil
	default:
		cur := evt
		s.current = &cur
	}
	s.mu.Unlock()

	if s.b != nil {
		s.b.BroadcastPass(evt)
	}
}

// Snapshot returns the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Started: s.started.Format(time.RFC3339),
		Counts:  make(map[string]int, len(s.counts)),
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	for k, v := range s.counts {
		snap.Counts[k] = v
	}
	s.mu.Unlock()

	snap.Axes = make([]AxisView, 0, len(s.axes))
	for _, a := range s.axes {
		st := a.Snapshot()
		snap.Axes = append(snap.Axes, AxisView{
			Name:       st.Name,
			State:      st.State.String(),
			Calibrated: st.Calibrated,
			Position:   st.Position,
			MinStep:    st.Limits.MinStep,
			MaxStep:    st.Limits.MaxStep,
		})
	}
	return snap
}
