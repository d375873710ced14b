package stepper

// BuildProfile returns the half-period delay (seconds) for each of steps
// pulses. The ramp accelerates for StopIndex(target) steps, cruises at
// target, and decelerates through the same entries in reverse. When the
// move is too short to reach cruise, the profile is triangular and split
// at steps/2. The result is always symmetric: d[i] == d[steps-1-i].
func BuildProfile(table *RampTable, steps int, targetHalfPeriod float64) []float64 {
	if steps <= 0 {
		return nil
	}
	if targetHalfPeriod < table.MinDelay() {
		targetHalfPeriod = table.MinDelay()
	}
	stopIndex := table.StopIndex(targetHalfPeriod)

	delays := make([]float64, steps)
	for i := range delays {
		k := min(i, steps-1-i)
		if k < stopIndex {
			delays[i] = table.At(k)
		} else {
			delays[i] = targetHalfPeriod
		}
	}
	return delays
}

// CruiseSteps is the length of the constant-speed segment of a profile.
func CruiseSteps(table *RampTable, steps int, targetHalfPeriod float64) int {
	if targetHalfPeriod < table.MinDelay() {
		targetHalfPeriod = table.MinDelay()
	}
	stopIndex := table.StopIndex(targetHalfPeriod)
	if steps <= 2*stopIndex {
		return 0
	}
	return steps - 2*stopIndex
}
