package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "passcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	assert.NoError(t, ValidateConfigPath(path))
	assert.NoError(t, ValidateConfigPath("configs/passcam.yaml"))
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"traversal":      "../../etc/passwd",
		"inner dotdot":   "configs/../../../etc/shadow.yaml",
		"json":           "configs/passcam.json",
		"yml":            "configs/passcam.yml",
		"no extension":   "configs/passcam",
		"other dir":      "other/passcam.yaml",
		"bare file":      "passcam.yaml",
		"absolute other": "/tmp/passcam.yaml",
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidateConfigPath(path))
		})
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	path := filepath.Join(cfgDir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
pan_stepper:
  step_pin: 17
  dir_pin: 27
  enable_pin: 5
  m0_pin: 6
  m1_pin: 13
  switch1_pin: 2
  switch2_pin: 3
  microstepping: 16
  belt_ratio: 35.27
tilt_stepper:
  step_pin: 22
  dir_pin: 23
  enable_pin: 12
  switch1_pin: 4
  switch2_pin: 14
  microstepping: 8
  belt_ratio: 17.5
  limit_offset_deg: 468.79
motion:
  speed_rpm: 30
  debounce_steps: 150
pass:
  slew_lead_sec: 90
  capture_offsets_sec: [-30, 0, 30]
camera:
  type: gpio_trigger
  focus_pin: 24
  shutter_pin: 25
indicator:
  yellow_pin: 21
  red_pin: 20
storage:
  journal_path: /var/lib/passcam/journal.db
defaults:
  debug_level: 2
  gpio_backend: gpiocdev
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 17, cfg.PanStepper.StepPin)
	assert.Equal(t, 8, cfg.TiltStepper.Microstepping)
	assert.Equal(t, 468.79, cfg.TiltStepper.LimitOffsetDeg)
	assert.Equal(t, 30.0, cfg.Motion.SpeedRPM)
	assert.Equal(t, 150, cfg.Motion.DebounceSteps)
	assert.Equal(t, 90*time.Second, cfg.SlewLead())
	assert.Equal(t, []time.Duration{-30 * time.Second, 0, 30 * time.Second}, cfg.CaptureOffsets())
	assert.Equal(t, "gpio_trigger", cfg.Camera.Type)
	assert.Equal(t, "gpiocdev", cfg.Defaults.GPIOBackend)
	assert.Equal(t, 2, cfg.Defaults.DebugLevel)
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, 1.8, cfg.PanStepper.StepAngleDeg)
	assert.Equal(t, 16, cfg.PanStepper.Microstepping)
	assert.Equal(t, 35.27, cfg.PanStepper.BeltRatio)
	assert.Equal(t, 17.5, cfg.TiltStepper.BeltRatio)
	assert.Equal(t, 468.79, cfg.TiltStepper.LimitOffsetDeg)
	assert.Zero(t, cfg.PanStepper.LimitOffsetDeg)

	assert.Equal(t, 9600.0, cfg.Motion.MaxFrequencyHz)
	assert.Equal(t, 2000.0, cfg.Motion.CalibrationFrequencyHz)
	assert.Equal(t, 100, cfg.Motion.DebounceSteps)
	assert.Equal(t, 90.0, cfg.Motion.RecoveryAngleDeg)
	assert.Equal(t, 60.0, cfg.Motion.SpeedRPM)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, 200*time.Millisecond, cfg.CalibrationPause())
	assert.Equal(t, 200*time.Millisecond, cfg.Stagger())

	assert.Equal(t, -40.0, cfg.Mount.TiltDeg)
	assert.Equal(t, 0.0, cfg.Mount.HomeAzimuthDeg)
	assert.Equal(t, -40.0, cfg.Mount.HomeElevationDeg)

	assert.Equal(t, 120*time.Second, cfg.SlewLead())
	assert.Equal(t, []int{-20, -10, 0, 10, 20}, cfg.Pass.CaptureOffsetsSec)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval())

	assert.Equal(t, "gphoto2", cfg.Camera.Type)
	assert.Equal(t, "8", cfg.Camera.ShutterSpeed)
	assert.Equal(t, "4.5", cfg.Camera.Aperture)
	assert.Equal(t, 500*time.Millisecond, cfg.FocusDelay())
	assert.Equal(t, 200*time.Millisecond, cfg.ShutterDelay())
	assert.Equal(t, 500*time.Millisecond, cfg.FaultFlash())
	assert.Equal(t, 15.0, cfg.Indicator.BlinkHz)

	assert.Equal(t, "schedule.csv", cfg.Schedule.Path)
	assert.Equal(t, "calibration.csv", cfg.Storage.CalibrationFile)
	assert.Equal(t, "mock", cfg.Defaults.GPIOBackend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PASSCAM_DEBUG_LEVEL", "4")
	t.Setenv("PASSCAM_GPIO_BACKEND", "rpio")
	t.Setenv("PASSCAM_SCHEDULE", "/data/schedule.csv")
	t.Setenv("PASSCAM_WEB_ADDR", ":9090")
	t.Setenv("PASSCAM_CAMERA_TYPE", "none")
	t.Setenv("PASSCAM_SKIP_CALIBRATION", "true")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Defaults.DebugLevel)
	assert.Equal(t, "rpio", cfg.Defaults.GPIOBackend)
	assert.Equal(t, "/data/schedule.csv", cfg.Schedule.Path)
	assert.Equal(t, ":9090", cfg.Web.Addr)
	assert.Equal(t, "none", cfg.Camera.Type)
	assert.True(t, cfg.Defaults.SkipCalibration)
}

func TestLoad_EnvBadValue(t *testing.T) {
	t.Setenv("PASSCAM_DEBUG_LEVEL", "loud")
	_, err := Load(writeConfig(t, "{}"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"camera type":     "camera:\n  type: polaroid\n",
		"trigger pins":    "camera:\n  type: gpio_trigger\n",
		"gpio backend":    "defaults:\n  gpio_backend: serial\n",
		"debug level":     "defaults:\n  debug_level: 9\n",
		"microstepping":   "pan_stepper:\n  microstepping: 3\n",
		"offset order":    "pass:\n  capture_offsets_sec: [10, -10]\n",
		"offset too soon": "pass:\n  slew_lead_sec: 10\n  capture_offsets_sec: [-20, 0]\n",
		"negative offset": "tilt_stepper:\n  limit_offset_deg: -1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	_, err := Load(writeConfig(t, data))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "{{{{invalid yaml!!!!"))
	require.Error(t, err)
}

func TestLoad_UnknownFieldsIgnored(t *testing.T) {
	_, err := Load(writeConfig(t, "unknown_section:\n  foo: bar\n"))
	require.NoError(t, err)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "configs")
	require.NoError(t, os.Mkdir(cfgDir, 0o755))
	_, err := Load(filepath.Join(cfgDir, "nonexistent.yaml"))
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mock", cfg.Defaults.GPIOBackend)
}
