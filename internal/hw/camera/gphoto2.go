package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/cjeanneret/passcam/internal/debug"
)

// DefaultGPhoto2Binary is looked up in PATH.
const DefaultGPhoto2Binary = "gphoto2"

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Config widget names understood by gphoto2 for most DSLR bodies.
const (
	widgetShutterSpeed = "shutterspeed"
	widgetAperture     = "aperture"
)

// GPhoto2 controls a USB-tethered camera through the gphoto2 command line
// tool. Images stay on the camera's card.
type GPhoto2 struct {
	binary string
	run    Runner
}

// NewGPhoto2 returns a gphoto2 camera. An empty binary uses the default;
// a nil runner executes the real tool.
func NewGPhoto2(binary string, run Runner) *GPhoto2 {
	if binary == "" {
		binary = DefaultGPhoto2Binary
	}
	if run == nil {
		run = execRunner
	}
	return &GPhoto2{binary: binary, run: run}
}

// Detect checks that gphoto2 sees at least one camera.
func (g *GPhoto2) Detect(ctx context.Context) error {
	out, err := g.run(ctx, g.binary, "--auto-detect")
	if err != nil {
		return fmt.Errorf("gphoto2 auto-detect: %w: %v", ErrUnavailable, err)
	}
	// Output is a two-line header followed by one line per camera.
	lines := nonEmptyLines(out)
	if len(lines) < 3 {
		return fmt.Errorf("gphoto2: %w: no camera detected", ErrUnavailable)
	}
	debug.Info("Camera detected: %s", strings.TrimSpace(lines[2]))
	return nil
}

// Capture triggers an exposure and returns the image file name on the card.
func (g *GPhoto2) Capture(ctx context.Context) (string, error) {
	out, err := g.run(ctx, g.binary, "--capture-image")
	if err != nil {
		return "", fmt.Errorf("gphoto2 capture: %w: %v", ErrUnavailable, err)
	}
	for _, line := range nonEmptyLines(out) {
		// "New file is in location /store_00010001/DCIM/100NCD90/DSC_0001.JPG on the camera"
		if !strings.HasPrefix(line, "New file is in location ") {
			continue
		}
		loc := strings.TrimPrefix(line, "New file is in location ")
		loc = strings.TrimSuffix(loc, " on the camera")
		return path.Base(strings.TrimSpace(loc)), nil
	}
	return "", fmt.Errorf("gphoto2 capture: no file reported: %q", strings.TrimSpace(string(out)))
}

// Settings reads the shutter speed and aperture widgets.
func (g *GPhoto2) Settings(ctx context.Context) (Settings, error) {
	shutter, err := g.getConfig(ctx, widgetShutterSpeed)
	if err != nil {
		return Settings{}, err
	}
	aperture, err := g.getConfig(ctx, widgetAperture)
	if err != nil {
		return Settings{}, err
	}
	return Settings{ShutterSpeed: shutter, Aperture: aperture}, nil
}

// Configure sets the non-empty fields of s in a single gphoto2 call.
func (g *GPhoto2) Configure(ctx context.Context, s Settings) error {
	var args []string
	if s.ShutterSpeed != "" {
		args = append(args, "--set-config", widgetShutterSpeed+"="+s.ShutterSpeed)
	}
	if s.Aperture != "" {
		args = append(args, "--set-config", widgetAperture+"="+s.Aperture)
	}
	if len(args) == 0 {
		return nil
	}
	debug.Info("Camera settings: shutter %q, aperture %q", s.ShutterSpeed, s.Aperture)
	if out, err := g.run(ctx, g.binary, args...); err != nil {
		return fmt.Errorf("gphoto2 set-config: %w: %v: %s", ErrUnavailable, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (g *GPhoto2) getConfig(ctx context.Context, widget string) (string, error) {
	out, err := g.run(ctx, g.binary, "--get-config", widget)
	if err != nil {
		return "", fmt.Errorf("gphoto2 get-config %s: %w: %v", widget, ErrUnavailable, err)
	}
	for _, line := range nonEmptyLines(out) {
		if v, ok := strings.CutPrefix(line, "Current:"); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("gphoto2 get-config %s: no current value", widget)
}

func nonEmptyLines(out []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if l := strings.TrimRight(sc.Text(), " \r"); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
