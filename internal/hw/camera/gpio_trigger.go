package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// GPIOTrigger fires a camera through its wired remote connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// The body keeps the image, so Capture returns a sequence identifier
// instead of a file name. Exposure settings cannot be changed remotely.
type GPIOTrigger struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration
	shutterDelay time.Duration
	sleep        func(time.Duration)

	mu    sync.Mutex
	count int
}

// NewGPIOTrigger configures the FOCUS and SHUTTER lines as outputs and
// releases them (HIGH).
func NewGPIOTrigger(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) (*GPIOTrigger, error) {
	for _, pin := range []int{focusPin, shutterPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup trigger pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.High); err != nil {
			return nil, fmt.Errorf("release trigger pin %d: %w", pin, err)
		}
	}
	return &GPIOTrigger{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
		sleep:        time.Sleep,
	}, nil
}

// Capture runs FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (t *GPIOTrigger) Capture(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	debug.GPIO("trigger focus", t.focusPin, gpio.Low)
	if err := t.gpio.WritePin(t.focusPin, gpio.Low); err != nil {
		return "", err
	}
	t.sleep(t.focusDelay)

	debug.GPIO("trigger shutter", t.shutterPin, gpio.Low)
	if err := t.gpio.WritePin(t.shutterPin, gpio.Low); err != nil {
		_ = t.gpio.WritePin(t.focusPin, gpio.High)
		return "", err
	}
	t.sleep(t.shutterDelay)

	if err := t.gpio.WritePin(t.shutterPin, gpio.High); err != nil {
		return "", err
	}
	if err := t.gpio.WritePin(t.focusPin, gpio.High); err != nil {
		return "", err
	}

	t.mu.Lock()
	t.count++
	id := fmt.Sprintf("trigger-%04d", t.count)
	t.mu.Unlock()
	return id, nil
}

func (t *GPIOTrigger) Settings(context.Context) (Settings, error) {
	return Settings{}, fmt.Errorf("gpio trigger: %w: settings are set on the body", ErrUnavailable)
}

func (t *GPIOTrigger) Configure(context.Context, Settings) error {
	return fmt.Errorf("gpio trigger: %w: settings are set on the body", ErrUnavailable)
}
