package station

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/passcam/internal/calibration"
	"github.com/cjeanneret/passcam/internal/capturelog"
	"github.com/cjeanneret/passcam/internal/config"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
	"github.com/cjeanneret/passcam/internal/logic/capture"
	"github.com/cjeanneret/passcam/internal/schedule"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var start = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

// testConfig wires the bench pinout onto the simulated backend with a GPIO
// trigger camera and millisecond delays.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()

	cfg.PanStepper.StepPin, cfg.PanStepper.DirPin, cfg.PanStepper.EnablePin = 17, 27, 5
	cfg.PanStepper.Switch1Pin, cfg.PanStepper.Switch2Pin = 2, 3
	cfg.TiltStepper.StepPin, cfg.TiltStepper.DirPin, cfg.TiltStepper.EnablePin = 22, 23, 12
	cfg.TiltStepper.Switch1Pin, cfg.TiltStepper.Switch2Pin = 4, 14

	cfg.Motion.SettleDelayMs = 1
	cfg.Motion.CalibrationPauseMs = 1
	cfg.Pass.PollIntervalMs = 100

	cfg.Camera.Type = "gpio_trigger"
	cfg.Camera.FocusPin, cfg.Camera.ShutterPin = 24, 25
	cfg.Camera.FocusDelayMs, cfg.Camera.ShutterDelayMs = 1, 1
	cfg.Camera.FaultFlashMs = 1
	cfg.Indicator.YellowPin, cfg.Indicator.RedPin = 21, 20

	cfg.Schedule.Path = filepath.Join(dir, "schedule.csv")
	cfg.Storage.CalibrationFile = filepath.Join(dir, "calibration.csv")
	cfg.Storage.LogDir = filepath.Join(dir, "logs")
	cfg.Storage.USBDir = filepath.Join(dir, "usb")
	cfg.Storage.JournalPath = filepath.Join(dir, "journal.db")
	require.NoError(t, os.MkdirAll(cfg.Storage.USBDir, 0o755))
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeSchedule(t *testing.T, path string, passes ...schedule.Pass) {
	t.Helper()
	rows := make([]schedule.Row, len(passes))
	for i, p := range passes {
		rows[i] = p.Row()
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, schedule.WriteCSV(f, rows))
	require.NoError(t, f.Close())
}

func newStation(t *testing.T, cfg *config.Config) (*Station, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: start}
	s, err := New(cfg, Options{
		Registerer: prometheus.NewRegistry(),
		Clock:      clock,
		Sleep:      func(time.Duration) {},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestStation_RunFullSession(t *testing.T) {
	cfg := testConfig(t)
	visible := schedule.Pass{Name: "ISS", CatalogID: "25544", AzimuthDeg: 30, ElevationDeg: 30, Culmination: start.Add(150 * time.Second)}
	hidden := schedule.Pass{Name: "NOAA 19", CatalogID: "33591", AzimuthDeg: 180, ElevationDeg: -80, Culmination: start.Add(400 * time.Second)}
	writeSchedule(t, cfg.Schedule.Path, visible, hidden)

	s, _ := newStation(t, cfg)
	outcomes, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, capture.Done, outcomes[0].State)
	require.Len(t, outcomes[0].Captures, 5)
	for i, c := range outcomes[0].Captures {
		require.NoError(t, c.Err)
		assert.Equal(t, i-2, c.Index)
		assert.Equal(t, visible.Culmination.Add(time.Duration(i-2)*10*time.Second), c.Time)
	}
	assert.Equal(t, capture.Skipped, outcomes[1].State)
	assert.Equal(t, capture.ReasonUnreachable, outcomes[1].Reason)

	sim, ok := s.GPIO.(*gpio.SimDriver)
	require.True(t, ok, "mock backend is simulated")
	assert.InDelta(t, 30105, sim.PhysicalPosition(cfg.PanStepper.StepPin), 1, "pan back at mid-travel")
	assert.InDelta(t, 43324, sim.PhysicalPosition(cfg.TiltStepper.StepPin), 1, "tilt back at its origin")
	assert.True(t, s.Pan.Snapshot().Calibrated)

	rec, err := calibration.Load(cfg.Storage.CalibrationFile)
	require.NoError(t, err)
	assert.Equal(t, calibration.Record{PanTotalSteps: 60210, TiltTotalSteps: 47491}, rec)

	exported, err := os.ReadFile(filepath.Join(cfg.Storage.USBDir, capturelog.FileName(start)))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(exported)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, capturelog.Header, lines[0])
	assert.Equal(t, "trigger-0001,ISS,21:02:10,-2", lines[1])

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Passes.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics.Passes.WithLabelValues("skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(s.Metrics.Captures.WithLabelValues("ok")))

	snap := s.Status.Snapshot()
	assert.Nil(t, snap.Current)
	assert.Equal(t, 1, snap.Counts[capture.Done.String()])
	assert.Equal(t, 1, snap.Counts[capture.Skipped.String()])

	db, err := sql.Open("sqlite", cfg.Storage.JournalPath)
	require.NoError(t, err)
	defer db.Close()
	var passes, captures int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM passes`).Scan(&passes))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&captures))
	assert.Equal(t, 2, passes)
	assert.Equal(t, 5, captures)
}

func TestStation_SecondRunUsesPersistedCalibration(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, calibration.Save(cfg.Storage.CalibrationFile,
		calibration.Record{PanTotalSteps: 60210, TiltTotalSteps: 47491}))

	s, _ := newStation(t, cfg)
	res, err := s.Calibrate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, calibration.ModePersisted, res.Mode)
	assert.Equal(t, calibration.SkipPanLimits, res.Pan)
	assert.Equal(t, calibration.SkipTiltLimits, res.Tilt)
	assert.False(t, s.LEDs.Yellow(), "busy blink stopped")
}

func TestStation_SkipCalibration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Defaults.SkipCalibration = true

	s, _ := newStation(t, cfg)
	res, err := s.Calibrate(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, calibration.ModeSkipped, res.Mode)
	assert.Equal(t, 0, s.Tilt.Position())
	_, err = os.Stat(cfg.Storage.CalibrationFile)
	assert.True(t, os.IsNotExist(err), "nothing persisted when skipped")
}

func TestStation_MalformedScheduleLightsRed(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Schedule.Path, []byte("name,when\nISS,now\n"), 0o644))

	s, _ := newStation(t, cfg)
	_, err := s.LoadSchedule()
	require.ErrorIs(t, err, schedule.ErrInvalidFormat)

	red, _ := s.GPIO.(*gpio.SimDriver).Output(cfg.Indicator.RedPin)
	assert.Equal(t, gpio.High, red)
}

func TestStation_ScheduleFaultStaysLitAfterClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.Defaults.SkipCalibration = true
	require.NoError(t, os.WriteFile(cfg.Schedule.Path, []byte("name,when\nISS,now\n"), 0o644))

	s, _ := newStation(t, cfg)
	outcomes, err := s.Run(context.Background())
	require.ErrorIs(t, err, schedule.ErrInvalidFormat)
	assert.Empty(t, outcomes)

	require.NoError(t, s.Close())
	sim := s.GPIO.(*gpio.SimDriver)
	red, _ := sim.Output(cfg.Indicator.RedPin)
	assert.Equal(t, gpio.High, red, "operator still sees the fault after shutdown")
	assert.True(t, sim.Held(cfg.Indicator.RedPin), "driver keeps the red pin on release")
	yellow, _ := sim.Output(cfg.Indicator.YellowPin)
	assert.Equal(t, gpio.Low, yellow)
}

func TestStation_MissingScheduleLeavesRedOff(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newStation(t, cfg)
	_, err := s.LoadSchedule()
	require.ErrorIs(t, err, schedule.ErrNotFound)

	red, _ := s.GPIO.(*gpio.SimDriver).Output(cfg.Indicator.RedPin)
	assert.Equal(t, gpio.Low, red)
}

func TestStation_OptionalCameraFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Camera.Type = "gphoto2"
	cfg.Camera.Binary = filepath.Join(t.TempDir(), "no-such-gphoto2")

	s, _ := newStation(t, cfg)
	require.NoError(t, s.OpenCamera(context.Background()))

	o := s.Orchestrator(nil, nil)
	require.NotNil(t, o)

	cfg.Camera.Required = true
	s2, _ := newStation(t, cfg)
	require.Error(t, s2.OpenCamera(context.Background()))
}

func TestStation_StatusServer(t *testing.T) {
	cfg := testConfig(t)
	s, _ := newStation(t, cfg)

	srv, err := s.StatusServer()
	require.NoError(t, err)
	assert.Nil(t, srv, "disabled without an address")

	cfg.Web.Addr = "127.0.0.1:0"
	srv, err = s.StatusServer()
	require.NoError(t, err)
	assert.NotNil(t, srv)
}
