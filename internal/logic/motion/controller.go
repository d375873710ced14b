package motion

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/stepper"
)

// Defaults for Options fields left zero.
const (
	DefaultSpeedRPM = 60
	DefaultStagger  = 200 * time.Millisecond
)

// Axis is one motor the controller can drive. *stepper.Stepper implements it.
type Axis interface {
	Name() string
	Run(cmd stepper.MotionCommand) (stepper.MoveResult, error)
}

// SlewObserver receives the wall time of each completed slew.
type SlewObserver interface {
	ObserveSlew(d time.Duration)
}

// Options tunes a Controller.
type Options struct {
	SpeedRPM float64
	// Stagger delays the tilt worker after the start gate opens so both
	// motors do not draw peak current at once.
	Stagger  time.Duration
	Sleep    func(time.Duration)
	Observer SlewObserver
}

// Controller drives the pan and tilt axes together. It sits between the
// pass logic and the stepper drivers.
type Controller struct {
	pan  Axis
	tilt Axis
	opts Options
}

// NewController creates a controller for the two axes.
func NewController(pan, tilt Axis, opts Options) *Controller {
	if opts.SpeedRPM <= 0 {
		opts.SpeedRPM = DefaultSpeedRPM
	}
	if opts.Stagger < 0 {
		opts.Stagger = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Controller{pan: pan, tilt: tilt, opts: opts}
}

// SlewResult reports what each axis did during a slew.
type SlewResult struct {
	Pan      stepper.MoveResult
	Tilt     stepper.MoveResult
	Duration time.Duration
}

// Command converts a signed rotation into a move at speedRPM. Negative
// rotations run in reverse.
func Command(rotationDeg, speedRPM float64) stepper.MotionCommand {
	cmd := stepper.MotionCommand{Direction: stepper.Forward, AngleDeg: rotationDeg, SpeedRPM: speedRPM}
	if rotationDeg < 0 {
		cmd.Direction = stepper.Reverse
		cmd.AngleDeg = -rotationDeg
	}
	return cmd
}

// Slew rotates both axes by the given signed motor-shaft angles. One worker
// per axis is started; both wait on a start gate that opens once both
// exist, then pan pulses immediately and tilt after the stagger. Slew
// returns when both workers have finished. A failing axis does not stop
// the other.
func (c *Controller) Slew(panRotationDeg, tiltRotationDeg float64) (SlewResult, error) {
	var (
		res   SlewResult
		g     errgroup.Group
		ready sync.WaitGroup
		gate  = make(chan struct{})
	)
	panCmd := Command(panRotationDeg, c.opts.SpeedRPM)
	tiltCmd := Command(tiltRotationDeg, c.opts.SpeedRPM)
	debug.Verbose("Slew: pan %s %.2f°, tilt %s %.2f°", panCmd.Direction, panCmd.AngleDeg, tiltCmd.Direction, tiltCmd.AngleDeg)

	ready.Add(2)
	g.Go(func() error {
		ready.Done()
		<-gate
		r, err := c.pan.Run(panCmd)
		res.Pan = r
		return err
	})
	g.Go(func() error {
		ready.Done()
		<-gate
		c.opts.Sleep(c.opts.Stagger)
		r, err := c.tilt.Run(tiltCmd)
		res.Tilt = r
		return err
	})

	ready.Wait()
	start := time.Now()
	close(gate)
	err := g.Wait()
	res.Duration = time.Since(start)

	if c.opts.Observer != nil {
		c.opts.Observer.ObserveSlew(res.Duration)
	}
	if res.Pan.LimitTriggered || res.Tilt.LimitTriggered {
		debug.WarnKV("slew ended on a limit switch", "pan_recovered", res.Pan.Recovered, "tilt_recovered", res.Tilt.Recovered)
	}
	return res, err
}
