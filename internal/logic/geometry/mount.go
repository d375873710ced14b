package geometry

import (
	"math"

	"github.com/cjeanneret/passcam/internal/debug"
)

// DefaultMountTiltDeg is the rotation of the mount base about the east axis.
const DefaultMountTiltDeg = -40.0

// Mount converts sky-frame pointing into axis rotations for a mount whose
// base is tilted by TiltDeg about the east axis.
type Mount struct {
	TiltDeg float64
}

// Solution is the result of Solve. When Reachable is false both rotations
// are zero.
type Solution struct {
	Reachable bool
	Folded    bool

	// Mount-frame target after the fold, tilt in the tilt-axis sign
	// convention.
	PanDeg  float64
	TiltDeg float64

	// Signed motor-shaft rotations. Negative runs the axis in reverse.
	PanRotationDeg  float64
	TiltRotationDeg float64
}

// Solve computes the rotations that bring the mount from the axes' current
// positions to sky azimuth azDeg and elevation elDeg. It has no side effects.
func (m Mount) Solve(azDeg, elDeg float64, pan, tilt Axis) Solution {
	az := azDeg * math.Pi / 180
	el := elDeg * math.Pi / 180
	theta := m.TiltDeg * math.Pi / 180

	east := math.Sin(az) * math.Cos(el)
	north := math.Cos(az) * math.Cos(el)
	up := math.Sin(el)

	// Rotate about the east axis.
	rNorth := north*math.Cos(theta) + up*math.Sin(theta)
	rUp := -north*math.Sin(theta) + up*math.Cos(theta)
	rUp = math.Max(-1, math.Min(1, rUp))

	mountAz := math.Atan2(east, rNorth) * 180 / math.Pi
	mountEl := math.Asin(rUp) * 180 / math.Pi

	sol := Solution{}
	switch {
	case mountAz > pan.MaxDeg():
		mountAz -= 180
		mountEl = 180 - mountEl
		sol.Folded = true
	case mountAz < pan.MinDeg():
		mountAz += 180
		mountEl = 180 - mountEl
		sol.Folded = true
	}
	mountEl = -mountEl

	sol.PanDeg = mountAz
	sol.TiltDeg = mountEl

	if !pan.Inside(mountAz) || !tilt.Inside(mountEl) {
		debug.Verbose("Target az=%.2f el=%.2f unreachable: mount pan=%.2f [%.2f, %.2f] tilt=%.2f [%.2f, %.2f]",
			azDeg, elDeg, mountAz, pan.MinDeg(), pan.MaxDeg(), mountEl, tilt.MinDeg(), tilt.MaxDeg())
		return sol
	}

	sol.Reachable = true
	sol.PanRotationDeg = pan.BeltRatio * (mountAz - pan.CurrentDeg())
	sol.TiltRotationDeg = tilt.BeltRatio * (mountEl - tilt.CurrentDeg())
	debug.Value("pan rotation (deg)", sol.PanRotationDeg)
	debug.Value("tilt rotation (deg)", sol.TiltRotationDeg)
	return sol
}
