package gpio

import "sync"

// SimAxis describes one simulated axis: the pins of its driver and the
// physical travel between its two end switches.
type SimAxis struct {
	StepPin    int
	DirPin     int
	Switch1Pin int // asserted at the reverse end (position <= 0)
	Switch2Pin int // asserted at the forward end (position >= TravelSteps)
	// TravelSteps is the distance between the two switches in pulses.
	TravelSteps int
	// Start is the physical position at power-up.
	Start int
	// Bounce keeps a switch asserted for this many pulses after leaving it.
	Bounce int
}

type simAxis struct {
	SimAxis
	pos     int
	lastEnd int // 1 or 2 once a switch has been reached
}

// SimDriver is a MockDriver whose limit switches follow the pulses written
// to each axis' STEP line, so homing sweeps terminate without hardware.
type SimDriver struct {
	*MockDriver

	mu   sync.Mutex
	axes []*simAxis
}

// NewSimDriver returns a driver simulating the given axes.
func NewSimDriver(axes ...SimAxis) *SimDriver {
	d := &SimDriver{MockDriver: NewMockDriver()}
	for _, a := range axes {
		d.axes = append(d.axes, &simAxis{SimAxis: a, pos: a.Start})
	}
	return d
}

func (d *SimDriver) WritePin(pin int, level Level) error {
	prev, _ := d.MockDriver.Output(pin)
	if err := d.MockDriver.WritePin(pin, level); err != nil {
		return err
	}
	if level != High || prev == High {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.axes {
		if a.StepPin != pin {
			continue
		}
		dir, _ := d.MockDriver.Output(a.DirPin)
		if dir == High {
			a.pos++
		} else {
			a.pos--
		}
		switch {
		case a.pos <= 0:
			a.lastEnd = 1
		case a.pos >= a.TravelSteps:
			a.lastEnd = 2
		}
	}
	return nil
}

func (d *SimDriver) ReadPin(pin int) (Level, error) {
	d.mu.Lock()
	for _, a := range d.axes {
		switch pin {
		case a.Switch1Pin:
			pressed := a.pos <= 0 || (a.lastEnd == 1 && a.pos <= a.Bounce)
			d.mu.Unlock()
			return Level(!pressed), nil
		case a.Switch2Pin:
			pressed := a.pos >= a.TravelSteps || (a.lastEnd == 2 && a.pos >= a.TravelSteps-a.Bounce)
			d.mu.Unlock()
			return Level(!pressed), nil
		}
	}
	d.mu.Unlock()
	return d.MockDriver.ReadPin(pin)
}

// PhysicalPosition returns the simulated position of the axis whose STEP
// line is stepPin, measured from the reverse switch.
func (d *SimDriver) PhysicalPosition(stepPin int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.axes {
		if a.StepPin == stepPin {
			return a.pos
		}
	}
	return 0
}
