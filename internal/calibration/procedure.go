// Package calibration homes both axes against their limit switches and
// parks them at the mount origin, reusing a persisted travel measurement
// when one exists.
package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/stepper"
)

// Travel used when calibration is skipped (bench testing without motors).
var (
	SkipPanLimits  = stepper.Limits{TotalSteps: 60210, MinStep: -30105, MaxStep: 30105}
	SkipTiltLimits = stepper.Limits{TotalSteps: 47491, MinStep: -43324, MaxStep: 4167}
)

// Mode reports how the axes were calibrated.
type Mode string

const (
	ModeFull      Mode = "full"
	ModePersisted Mode = "persisted"
	ModeSkipped   Mode = "skipped"
)

// AxisPlan describes where an axis' origin is relative to its homing switch.
type AxisPlan struct {
	Axis *stepper.Stepper
	// LimitOffsetDeg is the motor angle from the switch back to the origin.
	// 0 puts the origin at the centre of travel.
	LimitOffsetDeg float64
}

// Options controls Run.
type Options struct {
	StorePath string
	Skip      bool
	ForceFull bool
	SpeedRPM  float64
}

// Result summarizes a calibration.
type Result struct {
	Mode Mode
	Pan  stepper.Limits
	Tilt stepper.Limits
}

// Run calibrates pan then tilt and leaves both at position 0. A full
// sweep is run when no calibration is persisted (or ForceFull is set) and
// its result is saved.
func Run(ctx context.Context, pan, tilt AxisPlan, opts Options) (Result, error) {
	if opts.SpeedRPM <= 0 {
		opts.SpeedRPM = 60
	}
	if opts.Skip {
		debug.Warn("Calibration skipped: installing fixed travel limits")
		pan.Axis.SetCalibration(0, SkipPanLimits)
		tilt.Axis.SetCalibration(0, SkipTiltLimits)
		return Result{Mode: ModeSkipped, Pan: SkipPanLimits, Tilt: SkipTiltLimits}, nil
	}

	var (
		rec  Record
		err  error
		mode = ModeFull
	)
	if !opts.ForceFull && opts.StorePath != "" {
		rec, err = Load(opts.StorePath)
		switch {
		case err == nil:
			mode = ModePersisted
			debug.InfoKV("loaded calibration", "pan_total", rec.PanTotalSteps, "tilt_total", rec.TiltTotalSteps)
		case errors.Is(err, ErrNotFound):
			debug.Info("No calibration file, running full calibration")
		default:
			debug.WarnKV("unreadable calibration file, running full calibration", "error", err)
		}
	}

	panTotal, err := homeAxis(ctx, pan, mode, rec.PanTotalSteps, opts.SpeedRPM)
	if err != nil {
		return Result{}, err
	}
	tiltTotal, err := homeAxis(ctx, tilt, mode, rec.TiltTotalSteps, opts.SpeedRPM)
	if err != nil {
		return Result{}, err
	}

	if mode == ModeFull && opts.StorePath != "" {
		if err := Save(opts.StorePath, Record{PanTotalSteps: panTotal, TiltTotalSteps: tiltTotal}); err != nil {
			return Result{}, err
		}
		debug.Info("Calibration saved to %s", opts.StorePath)
	}
	return Result{Mode: mode, Pan: pan.Axis.Limits(), Tilt: tilt.Axis.Limits()}, nil
}

// homeAxis finds the switch, redefines the position relative to the
// origin and moves there. The move back starts on a switch, so it runs
// with limit checks off.
func homeAxis(ctx context.Context, plan AxisPlan, mode Mode, knownTotal int, speedRPM float64) (int, error) {
	s := plan.Axis
	debug.Section("Calibrating " + s.Name())

	total := knownTotal
	if mode == ModePersisted {
		if err := s.Calibrate(ctx, knownTotal); err != nil {
			return 0, fmt.Errorf("calibrate %s: %w", s.Name(), err)
		}
	} else {
		var err error
		if total, err = s.FullCalibrate(ctx); err != nil {
			return 0, fmt.Errorf("full calibrate %s: %w", s.Name(), err)
		}
	}

	back := stepper.MotionCommand{Direction: stepper.Reverse, SpeedRPM: speedRPM, AllowReverseRecovery: true}
	if plan.LimitOffsetDeg > 0 {
		s.Rebase(int(plan.LimitOffsetDeg / s.DegreesPerStep()))
		back.AngleDeg = plan.LimitOffsetDeg
	} else {
		back.AngleDeg = s.AngleForSteps(s.Position())
	}
	if _, err := s.Run(back); err != nil {
		return 0, fmt.Errorf("park %s: %w", s.Name(), err)
	}
	debug.InfoKV("axis at origin", "axis", s.Name(), "position", s.Position(), "limits", s.Limits())
	return total, nil
}
