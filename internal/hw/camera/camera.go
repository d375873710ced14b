package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// Camera is the capture collaborator used by the pass orchestrator,
// regardless of how the body is controlled (USB, remote connector, ...).
type Camera interface {
	// Capture takes one exposure and returns an identifier for the image,
	// usually its file name.
	Capture(ctx context.Context) (string, error)
	// Settings reads the current exposure settings.
	Settings(ctx context.Context) (Settings, error)
	// Configure applies the non-empty fields of s.
	Configure(ctx context.Context, s Settings) error
}

// Settings are the exposure parameters in the camera's own notation,
// e.g. shutter "8" and aperture "4.5".
type Settings struct {
	ShutterSpeed string
	Aperture     string
}

// Camera types accepted by New.
const (
	TypeGPhoto2     = "gphoto2"
	TypeGPIOTrigger = "gpio_trigger"
	TypeNone        = "none"
)

// ErrUnavailable is returned when no camera is connected or the camera
// cannot perform the request.
var ErrUnavailable = errors.New("camera unavailable")

// Options selects and configures a camera implementation.
type Options struct {
	Type string

	// gphoto2
	Binary string

	// gpio_trigger
	FocusPin     int
	ShutterPin   int
	FocusDelay   time.Duration
	ShutterDelay time.Duration
}

// New creates the camera described by opts. For gphoto2 it checks that a
// body is attached; the error wraps ErrUnavailable if not.
func New(ctx context.Context, opts Options, g gpio.Driver) (Camera, error) {
	switch opts.Type {
	case TypeGPhoto2, "":
		cam := NewGPhoto2(opts.Binary, nil)
		if err := cam.Detect(ctx); err != nil {
			return nil, err
		}
		return cam, nil
	case TypeGPIOTrigger:
		if g == nil {
			return nil, fmt.Errorf("gpio trigger camera: %w: no gpio driver", ErrUnavailable)
		}
		return NewGPIOTrigger(g, opts.FocusPin, opts.ShutterPin, opts.FocusDelay, opts.ShutterDelay)
	case TypeNone:
		return Unavailable{}, nil
	default:
		return nil, fmt.Errorf("unknown camera type: %q", opts.Type)
	}
}

// Unavailable stands in for a missing camera: every request fails with
// ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Capture(context.Context) (string, error) { return "", ErrUnavailable }

func (Unavailable) Settings(context.Context) (Settings, error) { return Settings{}, ErrUnavailable }

func (Unavailable) Configure(context.Context, Settings) error { return ErrUnavailable }
