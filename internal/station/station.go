// Package station owns the hardware context of one mount: it builds every
// component from the configuration and runs the full observing flow.
package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cjeanneret/passcam/internal/calibration"
	"github.com/cjeanneret/passcam/internal/capturelog"
	"github.com/cjeanneret/passcam/internal/config"
	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/camera"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
	"github.com/cjeanneret/passcam/internal/hw/indicator"
	"github.com/cjeanneret/passcam/internal/hw/stepper"
	"github.com/cjeanneret/passcam/internal/journal"
	"github.com/cjeanneret/passcam/internal/logic/capture"
	"github.com/cjeanneret/passcam/internal/logic/geometry"
	"github.com/cjeanneret/passcam/internal/logic/motion"
	"github.com/cjeanneret/passcam/internal/observability"
	"github.com/cjeanneret/passcam/internal/schedule"
	"github.com/cjeanneret/passcam/internal/web"
)

// Options replaces parts of the hardware context. Zero values build the
// real thing from the configuration.
type Options struct {
	Registerer prometheus.Registerer
	GPIO       gpio.Driver
	Camera     camera.Camera
	Clock      capture.Clock

	// Sleep is used for pulse timing and the slew stagger.
	Sleep func(time.Duration)
}

// Station is the explicit hardware context: one GPIO driver, two axes,
// the status LEDs and the camera, plus the metrics and status sinks fed
// by them.
type Station struct {
	cfg  *config.Config
	opts Options

	GPIO        gpio.Driver
	Pan         *stepper.Stepper
	Tilt        *stepper.Stepper
	LEDs        *indicator.LEDs
	Motion      *motion.Controller
	Metrics     *observability.StationCollector
	Broadcaster *web.StatusBroadcaster
	Status      *web.Status

	camera camera.Camera
}

// New builds the hardware context and initializes both axes. They are
// left disabled and uncalibrated.
func New(cfg *config.Config, opts Options) (*Station, error) {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = capture.WallClock()
	}

	s := &Station{cfg: cfg, opts: opts, camera: opts.Camera}

	debug.Section("Initialization")
	debug.Step(1, "Initializing GPIO driver")
	g, err := newGPIO(cfg, opts.GPIO)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	s.GPIO = g

	if s.Metrics, err = observability.NewStationCollector(opts.Registerer); err != nil {
		_ = g.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	debug.Step(2, "Initializing stepper motors")
	ramp, err := loadRamp(cfg.Motion)
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	s.Pan = stepper.NewStepper(g, stepperConfig(cfg, "pan", cfg.PanStepper, opts.Sleep), ramp)
	s.Tilt = stepper.NewStepper(g, stepperConfig(cfg, "tilt", cfg.TiltStepper, opts.Sleep), ramp)
	for _, axis := range []*stepper.Stepper{s.Pan, s.Tilt} {
		axis.SetRecorder(s.Metrics)
		if err := axis.Initialize(); err != nil {
			_ = g.Close()
			return nil, err
		}
	}
	debug.PrintStruct("Pan stepper config", cfg.PanStepper)
	debug.PrintStruct("Tilt stepper config", cfg.TiltStepper)

	debug.Step(3, "Initializing indicators")
	if s.LEDs, err = indicator.New(g, cfg.Indicator.YellowPin, cfg.Indicator.RedPin, cfg.Indicator.BlinkHz); err != nil {
		_ = g.Close()
		return nil, err
	}

	s.Motion = motion.NewController(s.Pan, s.Tilt, motion.Options{
		SpeedRPM: cfg.Motion.SpeedRPM,
		Stagger:  cfg.Stagger(),
		Sleep:    opts.Sleep,
		Observer: s.Metrics,
	})
	s.Broadcaster = web.NewStatusBroadcaster()
	s.Status = web.NewStatus(s.Broadcaster, s.Pan, s.Tilt)
	return s, nil
}

// newGPIO returns override when set. The mock backend is a simulator whose
// limit switches follow the step lines, so homing completes without
// hardware.
func newGPIO(cfg *config.Config, override gpio.Driver) (gpio.Driver, error) {
	if override != nil {
		return override, nil
	}
	if cfg.Defaults.GPIOBackend != gpio.BackendMock {
		return gpio.NewDriver(cfg.Defaults.GPIOBackend, cfg.Defaults.GPIOChip)
	}
	debug.Info("Using simulated GPIO driver (development mode)")
	return gpio.NewSimDriver(
		simAxis(cfg.PanStepper, calibration.SkipPanLimits.TotalSteps),
		simAxis(cfg.TiltStepper, calibration.SkipTiltLimits.TotalSteps),
	), nil
}

func simAxis(sc config.StepperConfig, travel int) gpio.SimAxis {
	return gpio.SimAxis{
		StepPin:     sc.StepPin,
		DirPin:      sc.DirPin,
		Switch1Pin:  sc.Switch1Pin,
		Switch2Pin:  sc.Switch2Pin,
		TravelSteps: travel,
		Start:       travel / 3,
	}
}

func loadRamp(m config.MotionConfig) (*stepper.RampTable, error) {
	if m.RampFile != "" {
		t, err := stepper.LoadRampFile(m.RampFile)
		if err != nil {
			return nil, fmt.Errorf("load ramp: %w", err)
		}
		return t, nil
	}
	t, err := stepper.NewConstantAccelRamp(m.RampStartHz, m.MaxFrequencyHz, m.RampAccel)
	if err != nil {
		return nil, fmt.Errorf("build ramp: %w", err)
	}
	return t, nil
}

func stepperConfig(cfg *config.Config, name string, sc config.StepperConfig, sleep func(time.Duration)) stepper.Config {
	return stepper.Config{
		Name:                   name,
		StepPin:                sc.StepPin,
		DirPin:                 sc.DirPin,
		EnablePin:              sc.EnablePin,
		M0Pin:                  sc.M0Pin,
		M1Pin:                  sc.M1Pin,
		Switch1Pin:             sc.Switch1Pin,
		Switch2Pin:             sc.Switch2Pin,
		StepAngleDeg:           sc.StepAngleDeg,
		Microstepping:          stepper.MicrostepMode(sc.Microstepping),
		BeltRatio:              sc.BeltRatio,
		MaxFrequencyHz:         cfg.Motion.MaxFrequencyHz,
		CalibrationFrequencyHz: cfg.Motion.CalibrationFrequencyHz,
		DebounceSteps:          cfg.Motion.DebounceSteps,
		RecoveryAngleDeg:       cfg.Motion.RecoveryAngleDeg,
		RecoverySpeedRPM:       cfg.Motion.RecoverySpeedRPM,
		SettleDelay:            cfg.SettleDelay(),
		CalibrationPause:       cfg.CalibrationPause(),
		Sleep:                  sleep,
	}
}

// Close turns the LEDs off, releases the motors and the GPIO driver.
func (s *Station) Close() error {
	s.LEDs.Close()
	var errs []error
	for _, axis := range []*stepper.Stepper{s.Pan, s.Tilt} {
		if err := axis.Disable(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.GPIO.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// OpenCamera connects the camera and applies the exposure settings. When
// the camera is not required a failure leaves the station without one and
// every capture becomes a fault.
func (s *Station) OpenCamera(ctx context.Context) error {
	c := s.cfg.Camera
	if s.camera == nil {
		cam, err := camera.New(ctx, camera.Options{
			Type:         c.Type,
			Binary:       c.Binary,
			FocusPin:     c.FocusPin,
			ShutterPin:   c.ShutterPin,
			FocusDelay:   s.cfg.FocusDelay(),
			ShutterDelay: s.cfg.ShutterDelay(),
		}, s.GPIO)
		if err != nil {
			if c.Required {
				s.LEDs.SetRed(true)
				return fmt.Errorf("open camera: %w", err)
			}
			debug.WarnKV("camera unavailable, continuing without it", "type", c.Type, "error", err)
			s.camera = camera.Unavailable{}
			return nil
		}
		s.camera = cam
	}

	want := camera.Settings{ShutterSpeed: c.ShutterSpeed, Aperture: c.Aperture}
	if err := s.camera.Configure(ctx, want); err != nil {
		if errors.Is(err, camera.ErrUnavailable) {
			debug.WarnKV("camera settings not applied", "error", err)
		} else {
			debug.Error(fmt.Errorf("configure camera: %w", err))
			s.LEDs.FlashRed(s.cfg.FaultFlash())
		}
		return nil
	}
	if got, err := s.camera.Settings(ctx); err == nil {
		debug.InfoKV("camera configured", "shutter", got.ShutterSpeed, "aperture", got.Aperture)
	}
	return nil
}

// Calibrate homes both axes, blinking the busy LED meanwhile.
func (s *Station) Calibrate(ctx context.Context, forceFull bool) (calibration.Result, error) {
	s.LEDs.StartBlink()
	defer s.LEDs.StopBlink()

	res, err := calibration.Run(ctx,
		calibration.AxisPlan{Axis: s.Pan, LimitOffsetDeg: s.cfg.PanStepper.LimitOffsetDeg},
		calibration.AxisPlan{Axis: s.Tilt, LimitOffsetDeg: s.cfg.TiltStepper.LimitOffsetDeg},
		calibration.Options{
			StorePath: s.cfg.Storage.CalibrationFile,
			Skip:      s.cfg.Defaults.SkipCalibration,
			ForceFull: forceFull,
			SpeedRPM:  s.cfg.Motion.SpeedRPM,
		})
	if err != nil {
		return res, err
	}
	debug.InfoKV("calibration complete", "mode", res.Mode,
		"pan_total", res.Pan.TotalSteps, "tilt_total", res.Tilt.TotalSteps)
	return res, nil
}

// LoadSchedule reads the pass schedule, refreshing it from the USB path
// first. A malformed schedule lights the fault LED for good.
func (s *Station) LoadSchedule() ([]schedule.Pass, error) {
	passes, err := schedule.Fetch(s.cfg.Schedule.USBPath, s.cfg.Schedule.Path)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidFormat) {
			s.LEDs.SetRed(true)
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return passes, nil
}

// Orchestrator wires a pass orchestrator to this station. log and j may
// be nil.
func (s *Station) Orchestrator(log *capturelog.Log, j *journal.Store) *capture.Orchestrator {
	opts := capture.Options{
		Mount:      geometry.Mount{TiltDeg: s.cfg.Mount.TiltDeg},
		HomeAzDeg:  s.cfg.Mount.HomeAzimuthDeg,
		HomeElDeg:  s.cfg.Mount.HomeElevationDeg,
		SlewLead:   s.cfg.SlewLead(),
		Offsets:    s.cfg.CaptureOffsets(),
		Poll:       s.cfg.PollInterval(),
		FaultFlash: s.cfg.FaultFlash(),
		Clock:      s.opts.Clock,
		Indicator:  s.LEDs,
		Metrics:    s.Metrics,
		Observer:   s.Status,
	}
	if log != nil {
		opts.Log = log
	}
	if j != nil {
		opts.Journal = j
	}
	return capture.New(s.Pan, s.Tilt, s.Motion, s.camera, opts)
}

// Run is the whole observing session: camera, calibration, schedule,
// passes, home return and capture log export.
func (s *Station) Run(ctx context.Context) ([]capture.Outcome, error) {
	debug.Step(4, "Opening camera")
	if err := s.OpenCamera(ctx); err != nil {
		return nil, err
	}

	debug.Step(5, "Calibrating axes")
	if _, err := s.Calibrate(ctx, false); err != nil {
		return nil, err
	}

	debug.Step(6, "Loading schedule")
	passes, err := s.LoadSchedule()
	if err != nil {
		debug.Error(err)
		return nil, err
	}
	if len(passes) == 0 {
		debug.Warn("Schedule is empty, nothing to do")
		return nil, nil
	}

	log, err := capturelog.Open(s.cfg.Storage.LogDir, s.opts.Clock.Now())
	if err != nil {
		return nil, err
	}
	defer s.closeLog(log)

	var j *journal.Store
	if s.cfg.Storage.JournalPath != "" {
		if j, err = journal.Open(ctx, s.cfg.Storage.JournalPath); err != nil {
			debug.WarnKV("journal disabled", "error", err)
			j = nil
		} else {
			defer j.Close()
			debug.InfoKV("journal opened", "path", s.cfg.Storage.JournalPath, "run", j.RunID())
		}
	}

	debug.Step(7, "Running passes")
	outcomes, err := s.Orchestrator(log, j).Run(ctx, passes)
	s.summarize(outcomes)
	return outcomes, err
}

func (s *Station) closeLog(log *capturelog.Log) {
	if err := log.Close(); err != nil {
		debug.Error(err)
	}
	if s.cfg.Storage.USBDir == "" {
		return
	}
	if err := log.Export(s.cfg.Storage.USBDir); err != nil {
		debug.WarnKV("capture log not exported", "error", err)
		return
	}
	debug.Info("Capture log copied to %s", s.cfg.Storage.USBDir)
}

func (s *Station) summarize(outcomes []capture.Outcome) {
	counts := make(map[capture.State]int)
	shots := 0
	for _, o := range outcomes {
		counts[o.State]++
		for _, c := range o.Captures {
			if c.Err == nil {
				shots++
			}
		}
	}
	debug.Summary("Session complete")
	debug.InfoKV("passes", "done", counts[capture.Done], "skipped", counts[capture.Skipped], "images", shots)
}

// StatusServer returns the read-only status server, or nil when no
// address is configured.
func (s *Station) StatusServer() (*web.Server, error) {
	if s.cfg.Web.Addr == "" {
		return nil, nil
	}
	return web.NewServer(s.cfg.Web.Addr, s.Broadcaster, s.Status, s.Metrics.Handler())
}
