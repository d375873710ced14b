package stepper

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/passcam/internal/debug"
	"github.com/cjeanneret/passcam/internal/hw/gpio"
)

// FullCalibrate measures the axis travel: it sweeps in reverse until a
// switch asserts, then sweeps forward counting pulses until the opposite
// switch asserts (ignoring the first DebounceSteps pulses so the switch
// just left cannot stop the count). It leaves the axis at the forward end
// with position = totalSteps/2, maxStep = position, minStep = position -
// totalSteps.
//
// There is no timeout: with faulty switch wiring the sweep never ends.
// Only ctx cancellation (operator abort) interrupts it.
func (s *Stepper) FullCalibrate(ctx context.Context) (int, error) {
	if err := s.beginCalibration(); err != nil {
		return 0, err
	}
	defer s.setState(StateIdle)

	debug.Info("Full calibration of %s axis", s.cfg.Name)
	if err := s.Enable(); err != nil {
		return 0, err
	}
	defer func() { _ = s.Disable() }()

	debug.Verbose("%s: sweep 1 (reverse)", s.cfg.Name)
	if _, err := s.sweep(ctx, Reverse, 0); err != nil {
		return 0, err
	}
	s.cfg.Sleep(s.cfg.SettleDelay)

	debug.Verbose("%s: sweep 2 (forward, counting)", s.cfg.Name)
	total, err := s.sweep(ctx, Forward, s.cfg.DebounceSteps)
	if err != nil {
		return 0, err
	}
	_ = s.Disable()
	s.cfg.Sleep(s.cfg.CalibrationPause)

	s.finishCalibration(total)
	debug.InfoKV("axis calibrated", "axis", s.cfg.Name, "total_steps", total, "limits", s.Limits())
	return total, nil
}

// Calibrate re-homes using a previously measured travel: one forward sweep
// to the switch, then the same limits as FullCalibrate.
func (s *Stepper) Calibrate(ctx context.Context, totalSteps int) error {
	if totalSteps <= 0 {
		return fmt.Errorf("%s: total steps must be positive, got %d", s.cfg.Name, totalSteps)
	}
	if err := s.beginCalibration(); err != nil {
		return err
	}
	defer s.setState(StateIdle)

	debug.Info("Calibrating %s axis (known travel %d steps)", s.cfg.Name, totalSteps)
	if err := s.Enable(); err != nil {
		return err
	}
	if _, err := s.sweep(ctx, Forward, 0); err != nil {
		_ = s.Disable()
		return err
	}
	_ = s.Disable()
	s.cfg.Sleep(s.cfg.CalibrationPause)

	s.finishCalibration(totalSteps)
	debug.InfoKV("axis re-homed", "axis", s.cfg.Name, "limits", s.Limits())
	return nil
}

func (s *Stepper) beginCalibration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisabled && s.state != StateIdle {
		return fmt.Errorf("%s: %w (%s)", s.cfg.Name, ErrBusy, s.state)
	}
	s.state = StateCalibrating
	return nil
}

func (s *Stepper) finishCalibration(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	home := total / 2
	s.position = home
	s.limits = Limits{
		TotalSteps: total,
		MaxStep:    home,
		MinStep:    home - total,
	}
	s.calibrated = true
}

// sweep pulses at the calibration frequency until a switch asserts after
// more than ignore pulses. It returns the pulses emitted. Position is not
// tracked; calibration redefines it afterwards.
func (s *Stepper) sweep(ctx context.Context, dir Direction, ignore int) (int, error) {
	if err := s.gpio.WritePin(s.cfg.DirPin, gpio.Level(dir)); err != nil {
		return 0, err
	}
	half := time.Duration(float64(time.Second) / (2 * s.cfg.CalibrationFrequencyHz))
	count := 0
	for {
		if count%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return count, fmt.Errorf("%s: calibration aborted: %w", s.cfg.Name, err)
			}
		}
		if err := s.stepPulse(half); err != nil {
			return count, err
		}
		count++
		pressed, err := s.limitPressed()
		if err != nil {
			return count, err
		}
		if pressed && count > ignore {
			return count, nil
		}
	}
}
