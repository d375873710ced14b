package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/passcam/internal/hw/stepper"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PASSCAM_"

// StepperConfig holds the wiring and mechanics of one axis.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // nENBL pin (BCM). 0 = not used. Active LOW.
	M0Pin         int     `yaml:"m0_pin"`
	M1Pin         int     `yaml:"m1_pin"`
	Switch1Pin    int     `yaml:"switch1_pin"` // end-of-travel switches, active LOW
	Switch2Pin    int     `yaml:"switch2_pin"`
	StepAngleDeg  float64 `yaml:"step_angle_deg"`
	Microstepping int     `yaml:"microstepping"`
	BeltRatio     float64 `yaml:"belt_ratio"` // motor degrees per axis degree
	// LimitOffsetDeg is the motor angle between the homing switch and the
	// axis origin. 0 means the origin is the centre of travel.
	LimitOffsetDeg float64 `yaml:"limit_offset_deg"`
}

// MotionConfig holds pulse timing shared by both axes.
type MotionConfig struct {
	MaxFrequencyHz         float64 `yaml:"max_frequency_hz"`
	CalibrationFrequencyHz float64 `yaml:"calibration_frequency_hz"`
	DebounceSteps          int     `yaml:"debounce_steps"`
	RecoveryAngleDeg       float64 `yaml:"recovery_angle_deg"`
	RecoverySpeedRPM       float64 `yaml:"recovery_speed_rpm"`
	SettleDelayMs          int     `yaml:"settle_delay_ms"`
	CalibrationPauseMs     int     `yaml:"calibration_pause_ms"`
	SpeedRPM               float64 `yaml:"speed_rpm"`  // slew speed
	StaggerMs              int     `yaml:"stagger_ms"` // tilt start delay after pan
	RampFile               string  `yaml:"ramp_file"`  // CSV of half-period delays; empty = synthesized
	RampStartHz            float64 `yaml:"ramp_start_hz"`
	RampAccel              float64 `yaml:"ramp_accel"` // pulses/s² for the synthesized ramp
}

// MountConfig describes the mount base and its parking orientation.
type MountConfig struct {
	TiltDeg          float64 `yaml:"tilt_deg"`
	HomeAzimuthDeg   float64 `yaml:"home_azimuth_deg"`
	HomeElevationDeg float64 `yaml:"home_elevation_deg"`
}

// PassConfig holds the timing of each pass.
type PassConfig struct {
	SlewLeadSec       int   `yaml:"slew_lead_sec"`       // slew starts this long before culmination
	CaptureOffsetsSec []int `yaml:"capture_offsets_sec"` // exposures relative to culmination
	PollIntervalMs    int   `yaml:"poll_interval_ms"`
}

// CameraConfig describes how to communicate with the camera.
type CameraConfig struct {
	Type           string `yaml:"type"` // gphoto2, gpio_trigger or none
	Binary         string `yaml:"binary"`
	FocusPin       int    `yaml:"focus_pin"`
	ShutterPin     int    `yaml:"shutter_pin"`
	FocusDelayMs   int    `yaml:"focus_delay_ms"`
	ShutterDelayMs int    `yaml:"shutter_delay_ms"`
	ShutterSpeed   string `yaml:"shutter_speed"`
	Aperture       string `yaml:"aperture"`
	// Required aborts the run when the camera cannot be opened.
	Required     bool `yaml:"required"`
	FaultFlashMs int  `yaml:"fault_flash_ms"`
}

// IndicatorConfig wires the status LEDs.
type IndicatorConfig struct {
	YellowPin int     `yaml:"yellow_pin"`
	RedPin    int     `yaml:"red_pin"`
	BlinkHz   float64 `yaml:"blink_hz"`
}

// ScheduleConfig locates the pass schedule.
type ScheduleConfig struct {
	Path    string `yaml:"path"`
	USBPath string `yaml:"usb_path"` // copied to Path first when set
}

// StorageConfig locates persisted files.
type StorageConfig struct {
	CalibrationFile string `yaml:"calibration_file"`
	LogDir          string `yaml:"log_dir"`
	USBDir          string `yaml:"usb_dir"` // capture log is exported here; empty = no export
	JournalPath     string `yaml:"journal_path"`
}

// WebConfig configures the read-only status server.
type WebConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// DefaultsConfig contains process-wide settings.
type DefaultsConfig struct {
	DebugLevel      int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend     string `yaml:"gpio_backend"` // mock, rpio or gpiocdev
	GPIOChip        string `yaml:"gpio_chip"`
	SkipCalibration bool   `yaml:"skip_calibration"` // install fixed limits, no homing
}

// Config aggregates all application configuration.
type Config struct {
	PanStepper  StepperConfig   `yaml:"pan_stepper"`
	TiltStepper StepperConfig   `yaml:"tilt_stepper"`
	Motion      MotionConfig    `yaml:"motion"`
	Mount       MountConfig     `yaml:"mount"`
	Pass        PassConfig      `yaml:"pass"`
	Camera      CameraConfig    `yaml:"camera"`
	Indicator   IndicatorConfig `yaml:"indicator"`
	Schedule    ScheduleConfig  `yaml:"schedule"`
	Storage     StorageConfig   `yaml:"storage"`
	Web         WebConfig       `yaml:"web"`
	Defaults    DefaultsConfig  `yaml:"defaults"`
}

// envOverrides are read from PASSCAM_* variables. Empty values leave the
// file setting untouched.
type envOverrides struct {
	DebugLevel      int    `env:"DEBUG_LEVEL" envDefault:"-1"`
	GPIOBackend     string `env:"GPIO_BACKEND"`
	SchedulePath    string `env:"SCHEDULE"`
	WebAddr         string `env:"WEB_ADDR"`
	CameraType      string `env:"CAMERA_TYPE"`
	JournalPath     string `env:"JOURNAL"`
	SkipCalibration bool   `env:"SKIP_CALIBRATION"`
}

var (
	errEmptyPath = errors.New("config path is empty")
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid configuration")
)

// ValidateConfigPath accepts only .yaml files located directly in a
// "configs" directory, with no ".." elements.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errEmptyPath
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q: traversal not allowed", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q: must be inside a configs directory", path)
	}
	return nil
}

// Load reads a YAML file, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and the mock
// GPIO backend, for running without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.DebugLevel >= 0 {
		c.Defaults.DebugLevel = o.DebugLevel
	}
	if o.GPIOBackend != "" {
		c.Defaults.GPIOBackend = o.GPIOBackend
	}
	if o.SchedulePath != "" {
		c.Schedule.Path = o.SchedulePath
	}
	if o.WebAddr != "" {
		c.Web.Addr = o.WebAddr
	}
	if o.CameraType != "" {
		c.Camera.Type = o.CameraType
	}
	if o.JournalPath != "" {
		c.Storage.JournalPath = o.JournalPath
	}
	if o.SkipCalibration {
		c.Defaults.SkipCalibration = true
	}
	return nil
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func (c *Config) applyDefaults() {
	for _, s := range []*StepperConfig{&c.PanStepper, &c.TiltStepper} {
		setDefault(&s.StepAngleDeg, stepper.DefaultStepAngleDeg)
		setDefault(&s.Microstepping, int(stepper.SixteenthStep))
	}
	setDefault(&c.PanStepper.BeltRatio, 35.27)
	setDefault(&c.TiltStepper.BeltRatio, 17.5)
	setDefault(&c.TiltStepper.LimitOffsetDeg, 468.79)

	m := &c.Motion
	setDefault(&m.MaxFrequencyHz, stepper.DefaultMaxFrequencyHz)
	setDefault(&m.CalibrationFrequencyHz, stepper.DefaultCalibrationFrequencyHz)
	setDefault(&m.DebounceSteps, stepper.DefaultDebounceSteps)
	setDefault(&m.RecoveryAngleDeg, stepper.DefaultRecoveryAngleDeg)
	setDefault(&m.RecoverySpeedRPM, stepper.DefaultRecoverySpeedRPM)
	setDefault(&m.SettleDelayMs, 500)
	setDefault(&m.CalibrationPauseMs, 200)
	setDefault(&m.SpeedRPM, 60)
	setDefault(&m.StaggerMs, 200)
	setDefault(&m.RampStartHz, 500)
	setDefault(&m.RampAccel, 20000)

	setDefault(&c.Mount.TiltDeg, -40)
	setDefault(&c.Mount.HomeElevationDeg, -40)

	setDefault(&c.Pass.SlewLeadSec, 120)
	if len(c.Pass.CaptureOffsetsSec) == 0 {
		c.Pass.CaptureOffsetsSec = []int{-20, -10, 0, 10, 20}
	}
	setDefault(&c.Pass.PollIntervalMs, 5)

	setDefault(&c.Camera.Type, "gphoto2")
	setDefault(&c.Camera.FocusDelayMs, 500)
	setDefault(&c.Camera.ShutterDelayMs, 200)
	setDefault(&c.Camera.ShutterSpeed, "8")
	setDefault(&c.Camera.Aperture, "4.5")
	setDefault(&c.Camera.FaultFlashMs, 500)

	setDefault(&c.Indicator.BlinkHz, 15)

	setDefault(&c.Schedule.Path, "schedule.csv")
	setDefault(&c.Storage.CalibrationFile, "calibration.csv")
	setDefault(&c.Storage.LogDir, ".")

	setDefault(&c.Defaults.GPIOBackend, "mock")
	setDefault(&c.Defaults.GPIOChip, "gpiochip0")
}

// Validate checks ranges and enumerations. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if !slices.Contains([]string{"mock", "rpio", "gpiocdev"}, c.Defaults.GPIOBackend) {
		return invalid("defaults.gpio_backend %q", c.Defaults.GPIOBackend)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return invalid("defaults.debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}
	if !slices.Contains([]string{"gphoto2", "gpio_trigger", "none"}, c.Camera.Type) {
		return invalid("camera.type %q", c.Camera.Type)
	}
	if c.Camera.Type == "gpio_trigger" && (c.Camera.FocusPin <= 0 || c.Camera.ShutterPin <= 0) {
		return invalid("camera.focus_pin and camera.shutter_pin are required for gpio_trigger")
	}
	for name, s := range map[string]StepperConfig{"pan_stepper": c.PanStepper, "tilt_stepper": c.TiltStepper} {
		if !stepper.MicrostepMode(s.Microstepping).Valid() {
			return invalid("%s.microstepping %d", name, s.Microstepping)
		}
		if s.StepAngleDeg <= 0 || s.BeltRatio <= 0 {
			return invalid("%s: step_angle_deg and belt_ratio must be > 0", name)
		}
		if s.LimitOffsetDeg < 0 {
			return invalid("%s.limit_offset_deg must be >= 0", name)
		}
	}
	if c.Motion.SpeedRPM <= 0 || c.Motion.MaxFrequencyHz <= 0 {
		return invalid("motion: speed_rpm and max_frequency_hz must be > 0")
	}
	if c.Motion.DebounceSteps < 0 {
		return invalid("motion.debounce_steps must be >= 0")
	}
	offsets := c.Pass.CaptureOffsetsSec
	if !slices.IsSorted(offsets) {
		return invalid("pass.capture_offsets_sec must be ascending, got %v", offsets)
	}
	if offsets[0] <= -c.Pass.SlewLeadSec {
		return invalid("pass.capture_offsets_sec: first exposure %ds precedes the slew lead %ds", offsets[0], c.Pass.SlewLeadSec)
	}
	return nil
}

// SettleDelay returns the pause between a limit trip and the back-off.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Motion.SettleDelayMs) * time.Millisecond
}

// CalibrationPause returns the pause after each homing sweep.
func (c *Config) CalibrationPause() time.Duration {
	return time.Duration(c.Motion.CalibrationPauseMs) * time.Millisecond
}

// Stagger returns the tilt start delay.
func (c *Config) Stagger() time.Duration {
	return time.Duration(c.Motion.StaggerMs) * time.Millisecond
}

// SlewLead returns how long before culmination the slew starts.
func (c *Config) SlewLead() time.Duration {
	return time.Duration(c.Pass.SlewLeadSec) * time.Second
}

// CaptureOffsets returns the exposure times relative to culmination.
func (c *Config) CaptureOffsets() []time.Duration {
	out := make([]time.Duration, len(c.Pass.CaptureOffsetsSec))
	for i, s := range c.Pass.CaptureOffsetsSec {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// PollInterval returns the deadline polling resolution.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pass.PollIntervalMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// FaultFlash returns how long the red LED stays on for a transient fault.
func (c *Config) FaultFlash() time.Duration {
	return time.Duration(c.Camera.FaultFlashMs) * time.Millisecond
}
