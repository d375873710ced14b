// Package indicator drives the two status LEDs: yellow for "busy"
// (blinking while the mount moves, solid while imaging) and red for faults.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// DefaultBlinkHz is the yellow LED blink rate while moving.
const DefaultBlinkHz = 15

// LEDs owns the yellow and red indicator pins. A pin of 0 is not wired and
// its operations are no-ops.
type LEDs struct {
	gpio      gpio.Driver
	yellowPin int
	redPin    int
	blinkHz   float64

	mu     sync.Mutex
	yellow bool
	stop   chan struct{}
	done   chan struct{}

	// red is the held fault state. A flash never clears it.
	red      bool
	flash    *time.Timer
	flashGen int
}

// New configures both pins as outputs, off.
func New(g gpio.Driver, yellowPin, redPin int, blinkHz float64) (*LEDs, error) {
	if blinkHz <= 0 {
		blinkHz = DefaultBlinkHz
	}
	for _, pin := range []int{yellowPin, redPin} {
		if pin <= 0 {
			continue
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup led pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.Low); err != nil {
			return nil, fmt.Errorf("clear led pin %d: %w", pin, err)
		}
	}
	return &LEDs{gpio: g, yellowPin: yellowPin, redPin: redPin, blinkHz: blinkHz}, nil
}

// StartBlink toggles the yellow LED at the blink rate until StopBlink or
// SetYellow. Calling it while already blinking does nothing.
func (l *LEDs) StartBlink() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil || l.yellowPin <= 0 {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.blink(l.stop, l.done)
}

func (l *LEDs) blink(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / (2 * l.blinkHz)))
	defer ticker.Stop()
	on := false
	for {
		select {
		case <-stop:
			_ = l.gpio.WritePin(l.yellowPin, gpio.Low)
			return
		case <-ticker.C:
			on = !on
			_ = l.gpio.WritePin(l.yellowPin, gpio.Level(on))
		}
	}
}

// StopBlink stops blinking and leaves the yellow LED off.
func (l *LEDs) StopBlink() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.yellow = false
	l.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// SetYellow stops any blink and holds the yellow LED on or off.
func (l *LEDs) SetYellow(on bool) {
	l.StopBlink()
	if l.yellowPin <= 0 {
		return
	}
	l.mu.Lock()
	l.yellow = on
	l.mu.Unlock()
	if err := l.gpio.WritePin(l.yellowPin, gpio.Level(on)); err != nil {
		debug.Errorf("yellow led: %v", err)
	}
}

// Yellow reports whether the yellow LED is held on.
func (l *LEDs) Yellow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.yellow
}

// SetRed holds the fault LED on or off. A held LED survives flashes and
// Close.
func (l *LEDs) SetRed(on bool) {
	if l.redPin <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelFlash()
	l.red = on
	l.writeRed(on)
}

// Red reports whether the fault LED is held on.
func (l *LEDs) Red() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.red
}

// FlashRed lights the fault LED for d without blocking the caller. A new
// flash restarts the period.
func (l *LEDs) FlashRed(d time.Duration) {
	if l.redPin <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.red {
		return
	}
	l.cancelFlash()
	l.writeRed(true)
	gen := l.flashGen
	l.flash = time.AfterFunc(d, func() { l.endFlash(gen) })
}

func (l *LEDs) endFlash(gen int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.flashGen {
		return
	}
	l.flash = nil
	if !l.red {
		l.writeRed(false)
	}
}

// cancelFlash stops a pending flash. l.mu must be held.
func (l *LEDs) cancelFlash() {
	l.flashGen++
	if l.flash != nil {
		l.flash.Stop()
		l.flash = nil
	}
}

// writeRed drives the fault pin. l.mu must be held.
func (l *LEDs) writeRed(on bool) {
	if err := l.gpio.WritePin(l.redPin, gpio.Level(on)); err != nil {
		debug.Errorf("red led: %v", err)
	}
}

// Close stops blinking, turns the yellow LED off and ends any flash. A held
// fault LED stays on so the operator still sees it after the process exits.
// Drivers implementing gpio.Holder are asked to keep the red pin driven.
func (l *LEDs) Close() {
	l.SetYellow(false)
	if l.redPin <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelFlash()
	if !l.red {
		l.writeRed(false)
		return
	}
	if h, ok := l.gpio.(gpio.Holder); ok {
		h.Hold(l.redPin)
	}
}
