package stepper

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// Config holds the hardware configuration for one stepper axis.
type Config struct {
	Name       string
	StepPin    int
	DirPin     int
	EnablePin  int // nENBL pin. 0 = not used. Active LOW (LOW=enabled).
	M0Pin      int // microstep mode pins. 0 = not wired.
	M1Pin      int
	Switch1Pin int // end-of-travel switches, active LOW
	Switch2Pin int

	StepAngleDeg  float64 // full-step angle of the motor
	Microstepping MicrostepMode
	BeltRatio     float64 // motor shaft degrees per mount axis degree

	MaxFrequencyHz         float64 // driver pulse frequency ceiling
	CalibrationFrequencyHz float64 // constant sweep frequency while homing
	DebounceSteps          int     // pulses before the far switch is trusted
	RecoveryAngleDeg       float64 // back-off after a limit switch trips
	RecoverySpeedRPM       float64
	SettleDelay            time.Duration // pause between a limit trip and the back-off
	CalibrationPause       time.Duration // pause after each homing sweep

	// Sleep waits for one half-period. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Defaults for Config fields left zero.
const (
	DefaultStepAngleDeg           = 1.8
	DefaultMaxFrequencyHz         = 9600
	DefaultCalibrationFrequencyHz = 2000
	DefaultDebounceSteps          = 100
	DefaultRecoveryAngleDeg       = 90
	DefaultRecoverySpeedRPM       = 60
	DefaultSettleDelay            = 500 * time.Millisecond
	DefaultCalibrationPause       = 200 * time.Millisecond
)

// Direction selects the DIR line level. Forward increments position.
type Direction bool

const (
	Reverse Direction = false
	Forward Direction = true
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "reverse"
}

// MotionCommand describes one trapezoidal move.
type MotionCommand struct {
	Direction            Direction
	AngleDeg             float64 // motor shaft degrees, >= 0
	SpeedRPM             float64
	AllowReverseRecovery bool // skip limit checks (used for the back-off move)
}

// MoveResult reports what a Run actually did.
type MoveResult struct {
	Requested      int  // pulses the command asked for
	Emitted        int  // pulses sent before completion or a limit trip
	LimitTriggered bool // a switch asserted and the move was aborted
	Recovered      int  // pulses of the back-off move
}

// State is the axis lifecycle state.
type State int

const (
	StateDisabled State = iota
	StateIdle
	StateCalibrating
	StateMoving
	StateLimitTriggered
	StateRecovering
)

var stateNames = map[State]string{
	StateDisabled:       "disabled",
	StateIdle:           "idle",
	StateCalibrating:    "calibrating",
	StateMoving:         "moving",
	StateLimitTriggered: "limit_triggered",
	StateRecovering:     "recovering",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Limits are the calibrated travel bounds in steps.
type Limits struct {
	TotalSteps int
	MinStep    int
	MaxStep    int
}

// AxisState is a point-in-time copy of an axis.
type AxisState struct {
	Name           string
	State          State
	Position       int
	Limits         Limits
	Calibrated     bool
	Microstepping  MicrostepMode
	DegreesPerStep float64
	BeltRatio      float64
}

// Recorder receives motion statistics. Implementations must be safe for
// concurrent use by both axes.
type Recorder interface {
	RecordMove(axis string, emitted, position int)
	RecordRecovery(axis string)
}

var (
	// ErrNotCalibrated is returned when moving an axis without travel limits.
	ErrNotCalibrated = errors.New("axis is not calibrated")
	// ErrBusy is returned when an axis is asked to do two things at once.
	ErrBusy = errors.New("axis is busy")
)

// Stepper owns one motor's pins, dead-reckoned position and travel limits.
// Position is only mutated by the goroutine running a move or calibration.
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	ramp     *RampTable
	recorder Recorder

	mu         sync.Mutex
	state      State
	position   int
	limits     Limits
	calibrated bool
}

// NewStepper creates a stepper axis controller. Call Initialize before use.
func NewStepper(g gpio.Driver, cfg Config, ramp *RampTable) *Stepper {
	if cfg.StepAngleDeg <= 0 {
		cfg.StepAngleDeg = DefaultStepAngleDeg
	}
	if cfg.Microstepping == 0 {
		cfg.Microstepping = SixteenthStep
	}
	if cfg.BeltRatio <= 0 {
		cfg.BeltRatio = 1
	}
	if cfg.MaxFrequencyHz <= 0 {
		cfg.MaxFrequencyHz = DefaultMaxFrequencyHz
	}
	if cfg.CalibrationFrequencyHz <= 0 {
		cfg.CalibrationFrequencyHz = DefaultCalibrationFrequencyHz
	}
	if cfg.DebounceSteps <= 0 {
		cfg.DebounceSteps = DefaultDebounceSteps
	}
	if cfg.RecoveryAngleDeg <= 0 {
		cfg.RecoveryAngleDeg = DefaultRecoveryAngleDeg
	}
	if cfg.RecoverySpeedRPM <= 0 {
		cfg.RecoverySpeedRPM = DefaultRecoverySpeedRPM
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("stepper-%d", cfg.StepPin)
	}
	return &Stepper{
		gpio:  g,
		cfg:   cfg,
		ramp:  ramp,
		state: StateDisabled,
	}
}

// SetRecorder attaches a statistics sink.
func (s *Stepper) SetRecorder(r Recorder) {
	s.recorder = r
}

// Initialize configures pin directions, fixes the microstep resolution and
// leaves the driver disabled at position 0.
func (s *Stepper) Initialize() error {
	for _, pin := range []int{s.cfg.StepPin, s.cfg.DirPin} {
		if err := s.gpio.SetupPin(pin, gpio.Output); err != nil {
			return fmt.Errorf("%s: setup pin %d: %w", s.cfg.Name, pin, err)
		}
	}
	for _, pin := range []int{s.cfg.Switch1Pin, s.cfg.Switch2Pin} {
		if pin <= 0 {
			continue
		}
		if err := s.gpio.SetupPin(pin, gpio.InputPullUp); err != nil {
			return fmt.Errorf("%s: setup switch pin %d: %w", s.cfg.Name, pin, err)
		}
	}
	if s.cfg.EnablePin > 0 {
		if err := s.gpio.SetupPin(s.cfg.EnablePin, gpio.Output); err != nil {
			return fmt.Errorf("%s: setup enable pin: %w", s.cfg.Name, err)
		}
	}
	if err := s.Disable(); err != nil {
		return fmt.Errorf("%s: disable: %w", s.cfg.Name, err)
	}
	if err := applyMicrostep(s.gpio, s.cfg.M0Pin, s.cfg.M1Pin, s.cfg.Microstepping); err != nil {
		return fmt.Errorf("%s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.state = StateDisabled
	s.position = 0
	s.mu.Unlock()

	debug.Verbose("Stepper %s initialized (1/%d microstepping, belt %.2f)", s.cfg.Name, s.cfg.Microstepping, s.cfg.BeltRatio)
	return nil
}

// Name returns the axis name.
func (s *Stepper) Name() string { return s.cfg.Name }

// DegreesPerStep is the motor shaft angle of one pulse.
func (s *Stepper) DegreesPerStep() float64 {
	return s.cfg.StepAngleDeg / float64(s.cfg.Microstepping)
}

// AngleForSteps returns a motor angle that Run converts to exactly steps
// pulses.
func (s *Stepper) AngleForSteps(steps int) float64 {
	if steps <= 0 {
		return 0
	}
	return (float64(steps) + 0.5) * s.DegreesPerStep()
}

// BeltRatio returns the motor-to-mount reduction.
func (s *Stepper) BeltRatio() float64 { return s.cfg.BeltRatio }

// Position returns the dead-reckoned position in steps.
func (s *Stepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Limits returns the calibrated travel bounds.
func (s *Stepper) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Snapshot returns a copy of the axis state.
func (s *Stepper) Snapshot() AxisState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AxisState{
		Name:           s.cfg.Name,
		State:          s.state,
		Position:       s.position,
		Limits:         s.limits,
		Calibrated:     s.calibrated,
		Microstepping:  s.cfg.Microstepping,
		DegreesPerStep: s.DegreesPerStep(),
		BeltRatio:      s.cfg.BeltRatio,
	}
}

// SetCalibration installs known limits and position without moving,
// e.g. when running without motors attached.
func (s *Stepper) SetCalibration(position int, limits Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.limits = limits
	s.calibrated = true
	s.state = StateIdle
}

// Rebase redefines the current physical position as position, with
// maxStep = position and minStep = position - totalSteps. Used when the
// home switch is a known angle away from the axis origin.
func (s *Stepper) Rebase(position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.limits.MaxStep = position
	s.limits.MinStep = position - s.limits.TotalSteps
}

// Run executes a trapezoidal move. If a limit switch asserts and the
// command allows it, the move is aborted and a single bounded back-off of
// RecoveryAngleDeg is run in the opposite direction with limit checks off.
// Zero-step moves are a no-op.
func (s *Stepper) Run(cmd MotionCommand) (MoveResult, error) {
	if cmd.AngleDeg < 0 || math.IsNaN(cmd.AngleDeg) || math.IsInf(cmd.AngleDeg, 0) {
		return MoveResult{}, fmt.Errorf("%s: invalid angle %g", s.cfg.Name, cmd.AngleDeg)
	}
	if cmd.SpeedRPM <= 0 || math.IsNaN(cmd.SpeedRPM) {
		return MoveResult{}, fmt.Errorf("%s: invalid speed %g rpm", s.cfg.Name, cmd.SpeedRPM)
	}
	steps := int(cmd.AngleDeg / s.DegreesPerStep())
	if steps == 0 {
		return MoveResult{}, nil
	}

	s.mu.Lock()
	switch {
	case !s.calibrated:
		s.mu.Unlock()
		return MoveResult{}, fmt.Errorf("%s: %w", s.cfg.Name, ErrNotCalibrated)
	case s.state != StateIdle:
		st := s.state
		s.mu.Unlock()
		return MoveResult{}, fmt.Errorf("%s: %w (%s)", s.cfg.Name, ErrBusy, st)
	}
	s.state = StateMoving
	s.mu.Unlock()
	defer s.setState(StateIdle)

	debug.Move(s.cfg.Name, steps, cmd.Direction.String())

	res := MoveResult{Requested: steps}
	emitted, tripped, err := s.pulseProfile(cmd, steps)
	res.Emitted = emitted
	if err != nil {
		return res, err
	}
	if !tripped {
		s.record(emitted)
		return res, nil
	}

	// Moving -> LimitTriggered -> Recovering -> Idle. The back-off runs with
	// AllowReverseRecovery set, so it cannot trip again.
	res.LimitTriggered = true
	s.setState(StateLimitTriggered)
	debug.WarnKV("limit switch asserted, backing off",
		"axis", s.cfg.Name, "emitted", emitted, "requested", steps, "position", s.Position())
	s.cfg.Sleep(s.cfg.SettleDelay)

	s.setState(StateRecovering)
	if s.recorder != nil {
		s.recorder.RecordRecovery(s.cfg.Name)
	}
	back := MotionCommand{
		Direction:            !cmd.Direction,
		AngleDeg:             s.cfg.RecoveryAngleDeg,
		SpeedRPM:             s.cfg.RecoverySpeedRPM,
		AllowReverseRecovery: true,
	}
	backSteps := int(back.AngleDeg / s.DegreesPerStep())
	recovered, _, err := s.pulseProfile(back, backSteps)
	res.Recovered = recovered
	s.record(emitted + recovered)
	return res, err
}

// halfPeriodFor converts a speed to a STEP half-period in seconds, capped
// at the driver's maximum pulse frequency.
func (s *Stepper) halfPeriodFor(rpm float64) float64 {
	freq := (360 / s.DegreesPerStep()) * rpm / 60
	if freq > s.cfg.MaxFrequencyHz {
		freq = s.cfg.MaxFrequencyHz
	}
	return 1 / (2 * freq)
}

// pulseProfile emits steps pulses following the ramp profile. The driver is
// enabled only while pulsing. It reports the pulses emitted and whether a
// limit switch stopped the move.
func (s *Stepper) pulseProfile(cmd MotionCommand, steps int) (int, bool, error) {
	if steps <= 0 {
		return 0, false, nil
	}
	delays := BuildProfile(s.ramp, steps, s.halfPeriodFor(cmd.SpeedRPM))
	debug.Verbose("Stepper %s: profile %d steps, cruise %d", s.cfg.Name, steps,
		CruiseSteps(s.ramp, steps, s.halfPeriodFor(cmd.SpeedRPM)))

	if err := s.gpio.WritePin(s.cfg.DirPin, gpio.Level(cmd.Direction)); err != nil {
		return 0, false, err
	}
	if err := s.Enable(); err != nil {
		return 0, false, err
	}
	defer func() { _ = s.Disable() }()

	delta := -1
	if cmd.Direction == Forward {
		delta = 1
	}
	for i, d := range delays {
		if !cmd.AllowReverseRecovery {
			pressed, err := s.limitPressed()
			if err != nil {
				return i, false, err
			}
			if pressed {
				return i, true, nil
			}
		}
		s.mu.Lock()
		s.position += delta
		s.mu.Unlock()
		if err := s.stepPulse(time.Duration(d * float64(time.Second))); err != nil {
			return i + 1, false, err
		}
	}
	return steps, false, nil
}

func (s *Stepper) stepPulse(halfPeriod time.Duration) error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	s.cfg.Sleep(halfPeriod)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	s.cfg.Sleep(halfPeriod)
	return nil
}

// limitPressed reports whether either end switch is asserted (active LOW).
func (s *Stepper) limitPressed() (bool, error) {
	for _, pin := range []int{s.cfg.Switch1Pin, s.cfg.Switch2Pin} {
		if pin <= 0 {
			continue
		}
		l, err := s.gpio.ReadPin(pin)
		if err != nil {
			return false, fmt.Errorf("%s: read switch %d: %w", s.cfg.Name, pin, err)
		}
		if l == gpio.Low {
			return true, nil
		}
	}
	return false, nil
}

func (s *Stepper) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Stepper) record(emitted int) {
	if s.recorder != nil {
		s.recorder.RecordMove(s.cfg.Name, emitted, s.Position())
	}
}

// Enable turns on the motor driver (nENBL=LOW).
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (nENBL=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
