package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/passcam/internal/hw/stepper"
)

const epsilon = 1e-9

// Travel limits of the production mount at 1/16 microstepping.
func panAxis() Axis {
	return Axis{MinStep: -30105, MaxStep: 30105, DegreesPerStep: 1.8 / 16, BeltRatio: 35.27}
}

func tiltAxis() Axis {
	return Axis{MinStep: -43324, MaxStep: 4167, DegreesPerStep: 1.8 / 16, BeltRatio: 17.5}
}

func homeMount() Mount { return Mount{TiltDeg: DefaultMountTiltDeg} }

func TestSolve_HomeOrientationNeedsNoRotation(t *testing.T) {
	sol := homeMount().Solve(0, -40, panAxis(), tiltAxis())

	require.True(t, sol.Reachable)
	assert.False(t, sol.Folded)
	assert.InDelta(t, 0, sol.PanRotationDeg, epsilon)
	assert.InDelta(t, 0, sol.TiltRotationDeg, epsilon)
	assert.InDelta(t, 0, sol.PanDeg, epsilon)
	assert.InDelta(t, 0, sol.TiltDeg, epsilon)
}

func TestSolve_Deterministic(t *testing.T) {
	m := homeMount()
	pan, tilt := panAxis(), tiltAxis()
	pan.Position, tilt.Position = 1234, -5678

	first := m.Solve(37.5, 22.25, pan, tilt)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Solve(37.5, 22.25, pan, tilt))
	}
}

func TestSolve_RotationIsRelativeToCurrentPosition(t *testing.T) {
	pan, tilt := panAxis(), tiltAxis()
	pan.Position = 1000
	tilt.Position = -500

	sol := homeMount().Solve(0, -40, pan, tilt)
	require.True(t, sol.Reachable)
	// belt * (0 - steps*dps/belt) == -steps*dps
	assert.InDelta(t, -1000*1.8/16, sol.PanRotationDeg, 1e-9)
	assert.InDelta(t, 500*1.8/16, sol.TiltRotationDeg, 1e-9)
}

func TestSolve_FoldBeyondPositivePanLimit(t *testing.T) {
	pan, tilt := panAxis(), tiltAxis()
	wide := pan
	wide.MinStep, wide.MaxStep = -1_000_000, 1_000_000

	raw := homeMount().Solve(100, 0, wide, tilt)
	require.False(t, raw.Folded)
	require.Greater(t, raw.PanDeg, pan.MaxDeg(), "target just past the positive pan limit")
	require.Less(t, raw.PanDeg, pan.MaxDeg()+5)

	sol := homeMount().Solve(100, 0, pan, tilt)
	require.True(t, sol.Reachable)
	assert.True(t, sol.Folded)
	assert.InDelta(t, raw.PanDeg-180, sol.PanDeg, epsilon)
	// Unfolded tilt is -el; folded is -(180 - el).
	assert.InDelta(t, -raw.TiltDeg-180, sol.TiltDeg, epsilon)
	assert.True(t, pan.Inside(sol.PanDeg))
	assert.True(t, tilt.Inside(sol.TiltDeg))
}

func TestSolve_FoldBeyondNegativePanLimit(t *testing.T) {
	pan, tilt := panAxis(), tiltAxis()
	wide := pan
	wide.MinStep, wide.MaxStep = -1_000_000, 1_000_000

	raw := homeMount().Solve(-100, 0, wide, tilt)
	require.Less(t, raw.PanDeg, pan.MinDeg())

	sol := homeMount().Solve(-100, 0, pan, tilt)
	require.True(t, sol.Reachable)
	assert.True(t, sol.Folded)
	assert.InDelta(t, raw.PanDeg+180, sol.PanDeg, epsilon)
	assert.InDelta(t, -raw.TiltDeg-180, sol.TiltDeg, epsilon)
}

func TestSolve_UnreachableReturnsZeroRotation(t *testing.T) {
	pan, tilt := panAxis(), tiltAxis()
	pan.Position = 500

	// Mount elevation 60 degrees is past the tilt axis' positive limit.
	sol := homeMount().Solve(180, -80, pan, tilt)
	assert.False(t, sol.Reachable)
	assert.Zero(t, sol.PanRotationDeg)
	assert.Zero(t, sol.TiltRotationDeg)
	assert.InDelta(t, 60, sol.TiltDeg, 1e-6)
}

func TestSolve_LimitsAreStrict(t *testing.T) {
	pan := Axis{MinStep: -1000, MaxStep: 1000, DegreesPerStep: 1, BeltRatio: 1}
	tilt := Axis{MinStep: -1000, MaxStep: 0, DegreesPerStep: 1, BeltRatio: 1}

	// Mount elevation exactly 0 sits on the tilt limit.
	sol := homeMount().Solve(0, -40, pan, tilt)
	assert.False(t, sol.Reachable)
}

func TestAxis_Conversions(t *testing.T) {
	a := panAxis()
	assert.InDelta(t, 30105*0.1125/35.27, a.MaxDeg(), epsilon)
	assert.InDelta(t, -a.MaxDeg(), a.MinDeg(), epsilon)
	assert.Equal(t, 313, a.DegreesToSteps(1))
	assert.True(t, a.Inside(0))
	assert.False(t, a.Inside(a.MaxDeg()))

	assert.Zero(t, Axis{}.StepsToDegrees(100))
	assert.Zero(t, Axis{}.DegreesToSteps(10))
}

func TestAxisFromState(t *testing.T) {
	st := stepper.AxisState{
		Position:       42,
		Limits:         stepper.Limits{TotalSteps: 100, MinStep: -50, MaxStep: 50},
		DegreesPerStep: 0.1125,
		BeltRatio:      17.5,
	}
	a := AxisFromState(st)
	assert.Equal(t, Axis{Position: 42, MinStep: -50, MaxStep: 50, DegreesPerStep: 0.1125, BeltRatio: 17.5}, a)
	assert.False(t, math.IsNaN(a.CurrentDeg()))
}
