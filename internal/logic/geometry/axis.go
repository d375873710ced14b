package geometry

import "github.com/cjeanneret/passcam/internal/hw/stepper"

// Axis is the part of an axis' state the transform needs: where it is,
// how far it may travel, and how steps map to mount degrees.
type Axis struct {
	Position       int
	MinStep        int
	MaxStep        int
	DegreesPerStep float64 // motor shaft degrees per pulse
	BeltRatio      float64 // motor degrees per mount degree
}

// AxisFromState extracts an Axis from a stepper snapshot.
func AxisFromState(st stepper.AxisState) Axis {
	return Axis{
		Position:       st.Position,
		MinStep:        st.Limits.MinStep,
		MaxStep:        st.Limits.MaxStep,
		DegreesPerStep: st.DegreesPerStep,
		BeltRatio:      st.BeltRatio,
	}
}

// StepsToDegrees converts a step count to a mount-axis angle.
func (a Axis) StepsToDegrees(steps int) float64 {
	if a.BeltRatio == 0 {
		return 0
	}
	return float64(steps) * a.DegreesPerStep / a.BeltRatio
}

// DegreesToSteps converts a mount-axis angle to a step count, truncating
// toward zero.
func (a Axis) DegreesToSteps(deg float64) int {
	if a.DegreesPerStep == 0 {
		return 0
	}
	return int(deg * a.BeltRatio / a.DegreesPerStep)
}

// CurrentDeg is the mount angle at the current position.
func (a Axis) CurrentDeg() float64 { return a.StepsToDegrees(a.Position) }

// MinDeg is the mount angle of the negative travel limit.
func (a Axis) MinDeg() float64 { return a.StepsToDegrees(a.MinStep) }

// MaxDeg is the mount angle of the positive travel limit.
func (a Axis) MaxDeg() float64 { return a.StepsToDegrees(a.MaxStep) }

// Inside reports whether deg lies strictly between the travel limits.
func (a Axis) Inside(deg float64) bool {
	return deg > a.MinDeg() && deg < a.MaxDeg()
}
