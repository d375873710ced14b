package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// CdevDriver drives GPIO lines through the Linux character device
// (/dev/gpiochipN). Pin numbers are line offsets on the chip.
type CdevDriver struct {
	chip  string
	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
	modes map[int]PinMode
}

// NewCdevDriver creates a driver bound to the named chip.
func NewCdevDriver(chip string) (*CdevDriver, error) {
	if chip == "" {
		chip = DefaultChip
	}
	debug.Info("Initializing real GPIO driver (gpiocdev, chip=%s)", chip)
	return &CdevDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
		modes: make(map[int]PinMode),
	}, nil
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request(pin, mode)
}

// request (re)acquires a line with the given mode. Caller holds mu.
func (c *CdevDriver) request(pin int, mode PinMode) error {
	if l, ok := c.lines[pin]; ok {
		if c.modes[pin] == mode {
			return nil
		}
		_ = l.Close()
		delete(c.lines, pin)
	}

	var (
		l   *gpiocdev.Line
		err error
	)
	switch mode {
	case Input:
		l, err = gpiocdev.RequestLine(c.chip, pin, gpiocdev.AsInput)
	case InputPullUp:
		l, err = gpiocdev.RequestLine(c.chip, pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	case Output:
		l, err = gpiocdev.RequestLine(c.chip, pin, gpiocdev.AsOutput(0))
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	if err != nil {
		return fmt.Errorf("request line %d on %s: %w", pin, c.chip, err)
	}
	c.lines[pin] = l
	c.modes[pin] = mode
	return nil
}

func (c *CdevDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	c.mu.Lock()
	if _, ok := c.lines[pin]; !ok {
		if err := c.request(pin, Output); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	l := c.lines[pin]
	c.mu.Unlock()

	v := 0
	if level == High {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", pin, err)
	}
	return nil
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	c.mu.Lock()
	if _, ok := c.lines[pin]; !ok {
		if err := c.request(pin, Input); err != nil {
			c.mu.Unlock()
			return Low, err
		}
	}
	l := c.lines[pin]
	c.mu.Unlock()

	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read line %d: %w", pin, err)
	}
	return Level(v != 0), nil
}

func (c *CdevDriver) Close() error {
	debug.Trace("GPIO Close (gpiocdev)")
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for pin, l := range c.lines {
		// Releasing a line returns it to the kernel as an input.
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close line %d: %w", pin, err)
		}
		delete(c.lines, pin)
	}
	return firstErr
}
