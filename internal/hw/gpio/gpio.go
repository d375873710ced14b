package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/passcam/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullUp
)

// Backend names accepted by NewDriver.
const (
	BackendMock     = "mock"
	BackendRPIO     = "rpio"
	BackendGPIOCdev = "gpiocdev"
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// Holder is implemented by drivers that can leave an output driven after
// Close. A held pin keeps its last level instead of returning to input.
type Holder interface {
	Hold(pin int)
}

// NewDriver creates a GPIO driver for the named backend.
// chip is only used by the gpiocdev backend (e.g. "gpiochip0").
func NewDriver(backend, chip string) (Driver, error) {
	switch backend {
	case BackendMock, "":
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case BackendRPIO:
		return NewRPiRealDriver()
	case BackendGPIOCdev:
		return NewCdevDriver(chip)
	default:
		return nil, fmt.Errorf("unknown gpio backend: %q", backend)
	}
}

// MockDriver is an in-memory implementation used for development on PC
// and in tests. Inputs read HIGH (pulled up) unless set otherwise, so
// active-LOW limit switches read as released.
type MockDriver struct {
	mu      sync.Mutex
	outputs map[int]Level
	inputs  map[int]Level
	modes   map[int]PinMode
	held    map[int]bool
}

// NewMockDriver returns an empty mock driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		outputs: make(map[int]Level),
		inputs:  make(map[int]Level),
		modes:   make(map[int]PinMode),
		held:    make(map[int]bool),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.inputs[pin]; ok {
		return l, nil
	}
	if l, ok := m.outputs[pin]; ok {
		return l, nil
	}
	return High, nil
}

// SetInput forces the level returned for an input pin.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs[pin] = level
}

// Output returns the last level written to pin.
func (m *MockDriver) Output(pin int) (Level, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.outputs[pin]
	return l, ok
}

// Mode returns the mode a pin was configured with.
func (m *MockDriver) Mode(pin int) (PinMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[pin]
	return mode, ok
}

// Hold marks pin to keep its level across Close.
func (m *MockDriver) Hold(pin int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[pin] = true
}

// Held reports whether pin was marked with Hold.
func (m *MockDriver) Held(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
