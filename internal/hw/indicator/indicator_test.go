package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

const (
	yellowPin = 21
	redPin    = 20
)

func TestNew_ClearsBothLEDs(t *testing.T) {
	drv := gpio.NewMockDriver()
	_, err := New(drv, yellowPin, redPin, 0)
	require.NoError(t, err)

	for _, pin := range []int{yellowPin, redPin} {
		mode, ok := drv.Mode(pin)
		require.True(t, ok)
		assert.Equal(t, gpio.Output, mode)
		l, _ := drv.Output(pin)
		assert.Equal(t, gpio.Low, l)
	}
}

func TestLEDs_BlinkTogglesAndStopsOff(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, yellowPin, redPin, 500)
	require.NoError(t, err)

	leds.StartBlink()
	leds.StartBlink()
	require.Eventually(t, func() bool {
		l, _ := drv.Output(yellowPin)
		return l == gpio.High
	}, time.Second, time.Millisecond)

	leds.StopBlink()
	l, _ := drv.Output(yellowPin)
	assert.Equal(t, gpio.Low, l)
	assert.False(t, leds.Yellow())
}

func TestLEDs_SetYellowStopsBlink(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, yellowPin, redPin, 500)
	require.NoError(t, err)

	leds.StartBlink()
	leds.SetYellow(true)
	assert.True(t, leds.Yellow())
	time.Sleep(10 * time.Millisecond)
	l, _ := drv.Output(yellowPin)
	assert.Equal(t, gpio.High, l, "solid after blink stopped")
}

func redLevel(drv *gpio.MockDriver) gpio.Level {
	l, _ := drv.Output(redPin)
	return l
}

func TestLEDs_FlashRedDoesNotBlock(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, yellowPin, redPin, 0)
	require.NoError(t, err)

	began := time.Now()
	leds.FlashRed(50 * time.Millisecond)
	assert.Less(t, time.Since(began), 20*time.Millisecond)
	assert.Equal(t, gpio.High, redLevel(drv))
	assert.False(t, leds.Red(), "a flash is not a held fault")

	require.Eventually(t, func() bool { return redLevel(drv) == gpio.Low }, time.Second, time.Millisecond)
}

func TestLEDs_FlashRestartsPeriod(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, yellowPin, redPin, 0)
	require.NoError(t, err)

	leds.FlashRed(20 * time.Millisecond)
	leds.FlashRed(time.Hour)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, gpio.High, redLevel(drv), "first timer must not end the second flash")

	leds.Close()
	assert.Equal(t, gpio.Low, redLevel(drv))
}

func TestLEDs_HeldRedSurvivesFlashAndClose(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, yellowPin, redPin, 0)
	require.NoError(t, err)

	leds.FlashRed(10 * time.Millisecond)
	leds.SetRed(true)
	leds.FlashRed(10 * time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, gpio.High, redLevel(drv))
	assert.True(t, leds.Red())

	leds.StartBlink()
	leds.Close()
	assert.Equal(t, gpio.High, redLevel(drv), "held fault stays lit after Close")
	assert.True(t, drv.Held(redPin))
	assert.False(t, drv.Held(yellowPin))
	l, _ := drv.Output(yellowPin)
	assert.Equal(t, gpio.Low, l)

	leds.SetRed(false)
	assert.Equal(t, gpio.Low, redLevel(drv))
}

func TestLEDs_UnwiredPinsAreNoOps(t *testing.T) {
	drv := gpio.NewMockDriver()
	leds, err := New(drv, 0, 0, 0)
	require.NoError(t, err)

	leds.StartBlink()
	leds.SetYellow(true)
	leds.SetRed(true)
	leds.Close()
	assert.False(t, leds.Yellow())
	_, ok := drv.Output(0)
	assert.False(t, ok)
}
