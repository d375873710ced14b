package motion

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/passcam/internal/hw/gpio"
	"github.com/cjeanneret/passcam/internal/hw/stepper"
)

// fakeAxis records commands and the order in which axes started.
type fakeAxis struct {
	name  string
	log   *startLog
	err   error
	block chan struct{}

	mu   sync.Mutex
	cmds []stepper.MotionCommand
}

type startLog struct {
	mu    sync.Mutex
	order []string
}

func (l *startLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (a *fakeAxis) Name() string { return a.name }

func (a *fakeAxis) Run(cmd stepper.MotionCommand) (stepper.MoveResult, error) {
	a.log.add(a.name)
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	a.cmds = append(a.cmds, cmd)
	a.mu.Unlock()
	return stepper.MoveResult{Requested: int(cmd.AngleDeg), Emitted: int(cmd.AngleDeg)}, a.err
}

type countingObserver struct{ n int }

func (o *countingObserver) ObserveSlew(time.Duration) { o.n++ }

func TestCommand_SignSelectsDirection(t *testing.T) {
	cmd := Command(-12.5, 60)
	assert.Equal(t, stepper.Reverse, cmd.Direction)
	assert.Equal(t, 12.5, cmd.AngleDeg)
	assert.False(t, cmd.AllowReverseRecovery)

	cmd = Command(30, 60)
	assert.Equal(t, stepper.Forward, cmd.Direction)
	assert.Equal(t, 30.0, cmd.AngleDeg)
	assert.Equal(t, 60.0, cmd.SpeedRPM)
}

func TestController_SlewRunsBothAxes(t *testing.T) {
	log := &startLog{}
	pan := &fakeAxis{name: "pan", log: log}
	tilt := &fakeAxis{name: "tilt", log: log}
	obs := &countingObserver{}

	var staggers []time.Duration
	ctrl := NewController(pan, tilt, Options{
		Sleep:    func(d time.Duration) { staggers = append(staggers, d) },
		Observer: obs,
	})

	res, err := ctrl.Slew(-90, 45)
	require.NoError(t, err)
	assert.Equal(t, 90, res.Pan.Emitted)
	assert.Equal(t, 45, res.Tilt.Emitted)

	require.Len(t, pan.cmds, 1)
	require.Len(t, tilt.cmds, 1)
	assert.Equal(t, stepper.MotionCommand{Direction: stepper.Reverse, AngleDeg: 90, SpeedRPM: DefaultSpeedRPM}, pan.cmds[0])
	assert.Equal(t, stepper.MotionCommand{Direction: stepper.Forward, AngleDeg: 45, SpeedRPM: DefaultSpeedRPM}, tilt.cmds[0])
	assert.Equal(t, []time.Duration{DefaultStagger}, staggers, "only tilt waits for the stagger")
	assert.Equal(t, 1, obs.n)
}

func TestController_SlewAxesOverlap(t *testing.T) {
	// Pan blocks until tilt has started: a serialized slew would deadlock.
	log := &startLog{}
	release := make(chan struct{})
	pan := &fakeAxis{name: "pan", log: log, block: release}
	tilt := &fakeAxis{name: "tilt", log: log}

	ctrl := NewController(pan, tilt, Options{Stagger: time.Millisecond})
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Slew(10, 10)
		done <- err
	}()

	require.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.order) == 2
	}, time.Second, time.Millisecond)
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("slew did not return")
	}
	assert.Equal(t, []string{"pan", "tilt"}, log.order)
}

func TestController_SlewJoinsOnError(t *testing.T) {
	log := &startLog{}
	boom := errors.New("driver fault")
	pan := &fakeAxis{name: "pan", log: log, err: boom}
	tilt := &fakeAxis{name: "tilt", log: log}

	ctrl := NewController(pan, tilt, Options{Sleep: func(time.Duration) {}})
	_, err := ctrl.Slew(5, 5)
	require.ErrorIs(t, err, boom)
	assert.Len(t, tilt.cmds, 1, "tilt still runs when pan fails")
}

func TestController_SlewWithSteppers(t *testing.T) {
	drv := gpio.NewMockDriver()
	table, err := stepper.NewConstantAccelRamp(500, stepper.DefaultMaxFrequencyHz, 20000)
	require.NoError(t, err)

	newAxis := func(name string, base int, belt float64) *stepper.Stepper {
		s := stepper.NewStepper(drv, stepper.Config{
			Name: name, StepPin: base, DirPin: base + 1, EnablePin: base + 2,
			BeltRatio: belt, Sleep: func(time.Duration) {},
		}, table)
		require.NoError(t, s.Initialize())
		s.SetCalibration(0, stepper.Limits{TotalSteps: 20000, MinStep: -10000, MaxStep: 10000})
		return s
	}
	pan := newAxis("pan", 10, 35.27)
	tilt := newAxis("tilt", 20, 17.5)

	ctrl := NewController(pan, tilt, Options{Sleep: func(time.Duration) {}})
	res, err := ctrl.Slew(-45, 90)
	require.NoError(t, err)
	assert.Equal(t, 400, res.Pan.Emitted)
	assert.Equal(t, 800, res.Tilt.Emitted)
	assert.Equal(t, -400, pan.Position())
	assert.Equal(t, 800, tilt.Position())
}
