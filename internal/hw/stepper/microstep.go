package stepper

import (
	"fmt"

	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// MicrostepMode is the driver resolution in pulses per full step.
type MicrostepMode int

const (
	FullStep         MicrostepMode = 1
	HalfStep         MicrostepMode = 2
	QuarterStep      MicrostepMode = 4
	EighthStep       MicrostepMode = 8
	SixteenthStep    MicrostepMode = 16
	ThirtySecondStep MicrostepMode = 32
)

// pinState is a mode-pin setting; floating means the pin is released
// to high impedance by switching it to an input.
type pinState int

const (
	pinLow pinState = iota
	pinHigh
	pinFloat
)

// modePins maps a resolution to (M1, M0) for a DRV8834-style driver.
var modePins = map[MicrostepMode][2]pinState{
	FullStep:         {pinLow, pinLow},
	HalfStep:         {pinLow, pinHigh},
	QuarterStep:      {pinLow, pinFloat},
	EighthStep:       {pinHigh, pinLow},
	SixteenthStep:    {pinHigh, pinHigh},
	ThirtySecondStep: {pinHigh, pinFloat},
}

// Valid reports whether the driver supports m.
func (m MicrostepMode) Valid() bool {
	_, ok := modePins[m]
	return ok
}

func applyMicrostep(g gpio.Driver, m0, m1 int, m MicrostepMode) error {
	states, ok := modePins[m]
	if !ok {
		return fmt.Errorf("unsupported microstep mode: %d", m)
	}
	if err := setModePin(g, m1, states[0]); err != nil {
		return fmt.Errorf("set M1: %w", err)
	}
	if err := setModePin(g, m0, states[1]); err != nil {
		return fmt.Errorf("set M0: %w", err)
	}
	return nil
}

func setModePin(g gpio.Driver, pin int, s pinState) error {
	if pin <= 0 {
		return nil
	}
	if s == pinFloat {
		return g.SetupPin(pin, gpio.Input)
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return err
	}
	return g.WritePin(pin, gpio.Level(s == pinHigh))
}
