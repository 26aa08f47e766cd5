package photoperiod

import "time"

// Day is 24 hours, used for time-of-day wraparound arithmetic.
const Day = 24 * time.Hour

// Config is one zone's photoperiod configuration (spec §4.4).
type Config struct {
	DayStart time.Duration // time-of-day offset from local midnight
	DayEnd   time.Duration

	RampUp   time.Duration
	RampDown time.Duration

	TargetIntensityPct float64

	// LockedHours, if set, is the photoperiod duration in hours that a
	// schedule edit may not change (spec §4.4 "Locked photoperiod"). The
	// core assumes the invariant holds at config load and only enforces it
	// at the operator-facing boundary (internal/operator), not here.
	LockedHours *float64
}

// Duration returns the photoperiod length, handling a day_end that wraps
// past midnight.
func (c Config) Duration() time.Duration {
	d := (c.DayEnd - c.DayStart) % Day
	if d < 0 {
		d += Day
	}
	return d
}

// Normalize applies spec B3: if RampUp+RampDown exceeds the photoperiod
// duration, both ramps are shrunk to meet exactly at the midpoint.
// Reshaped reports whether a reshape occurred, so the caller can log the
// warning spec B3 requires.
func (c Config) Normalize() (out Config, reshaped bool) {
	out = c
	dur := c.Duration()
	if c.RampUp+c.RampDown > dur {
		out.RampUp = dur / 2
		out.RampDown = dur - out.RampUp
		reshaped = true
	}
	return out, reshaped
}

// sinceDayStart returns how far tod (a time-of-day offset) lies past
// DayStart, wrapped into [0, 24h).
func (c Config) sinceDayStart(tod time.Duration) time.Duration {
	d := (tod - c.DayStart) % Day
	if d < 0 {
		d += Day
	}
	return d
}

// Intensity computes i(t) in [0, TargetIntensityPct] for time-of-day tod
// (spec §4.4). Callers should pass an already-Normalize()d Config.
func (c Config) Intensity(tod time.Duration) float64 {
	elapsed := c.sinceDayStart(tod)
	dur := c.Duration()

	switch {
	case c.RampUp > 0 && elapsed < c.RampUp:
		return c.TargetIntensityPct * float64(elapsed) / float64(c.RampUp)
	case elapsed < dur-c.RampDown:
		return c.TargetIntensityPct
	case elapsed < dur:
		if c.RampDown == 0 {
			return 0
		}
		remaining := dur - elapsed
		return c.TargetIntensityPct * float64(remaining) / float64(c.RampDown)
	default:
		return 0
	}
}

// Command is the photoperiod engine's output for one light device at one
// tick (spec §4.4: dimmable lights get intensity, non-dimmable lights only
// state).
type Command struct {
	State        bool
	IntensityPct float64
}

// Evaluate produces the light command for time-of-day tod. For a
// non-dimmable light, IntensityPct is still computed but the caller should
// ignore it (spec §4.4: "intensity ignored").
func (c Config) Evaluate(tod time.Duration) Command {
	i := c.Intensity(tod)
	return Command{State: i > 0, IntensityPct: i}
}
