package climate

import (
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Day is 24 hours, used for time-of-day wraparound arithmetic.
const Day = 24 * time.Hour

// Config is one zone's climate-phase configuration (spec §4.5).
type Config struct {
	DayStart time.Duration
	DayEnd   time.Duration

	PreDayDuration   time.Duration
	PreNightDuration time.Duration

	// Setpoints holds the configured (heating, cooling, vpd, co2, ramp_in)
	// tuple for each of the four phases.
	Setpoints map[model.ClimatePhase]model.Setpoint
}

func mod(d, m time.Duration) time.Duration {
	r := d % m
	if r < 0 {
		r += m
	}
	return r
}

// photoperiodDuration is day_end - day_start, wrapped into [0, 24h).
func (c Config) photoperiodDuration() time.Duration {
	return mod(c.DayEnd-c.DayStart, Day)
}

// boundaries returns the three x-space (elapsed-since-day_start) marks at
// which DAY ends, PRE_NIGHT ends, and NIGHT ends (spec §4.5).
func (c Config) boundaries() (dayEnd, preNightEnd, nightEnd time.Duration) {
	photo := c.photoperiodDuration()
	dayEnd = photo - c.PreNightDuration
	preNightEnd = photo
	nightEnd = Day - c.PreDayDuration
	return
}

// sinceDayStart wraps tod into elapsed-time-since-DayStart, in [0, 24h).
func (c Config) sinceDayStart(tod time.Duration) time.Duration {
	return mod(tod-c.DayStart, Day)
}

// Phase returns the climate phase active at time-of-day tod (spec §4.5).
func (c Config) Phase(tod time.Duration) model.ClimatePhase {
	x := c.sinceDayStart(tod)
	dayEnd, preNightEnd, nightEnd := c.boundaries()

	switch {
	case x < dayEnd:
		return model.PhaseDay
	case x < preNightEnd:
		return model.PhasePreNight
	case x < nightEnd:
		return model.PhaseNight
	default:
		return model.PhasePreDay
	}
}

// phaseStart returns the x-space mark (elapsed-since-DayStart) at which
// phase p begins, and the phase that precedes it.
func (c Config) phaseStart(p model.ClimatePhase) (start time.Duration, prev model.ClimatePhase) {
	dayEnd, preNightEnd, nightEnd := c.boundaries()
	switch p {
	case model.PhaseDay:
		return 0, model.PhasePreDay
	case model.PhasePreNight:
		return dayEnd, model.PhaseDay
	case model.PhaseNight:
		return preNightEnd, model.PhasePreNight
	default: // PhasePreDay
		return nightEnd, model.PhaseNight
	}
}

// Active returns the interpolated setpoint tuple in effect at tod (spec
// §4.5: active(t) = prev + (new - prev) * clamp((t - phase_start)/ramp_in, 0, 1)).
func (c Config) Active(tod time.Duration) model.Setpoint {
	phase := c.Phase(tod)
	target := c.Setpoints[phase]

	startX, prevPhase := c.phaseStart(phase)
	x := c.sinceDayStart(tod)
	elapsed := mod(x-startX, Day)

	rampIn := target.RampInDuration
	var frac float64 = 1
	if rampIn > 0 {
		frac = float64(elapsed) / float64(rampIn)
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}
	}

	prev := c.Setpoints[prevPhase]
	out := target
	out.Phase = &phase
	out.HeatingSetpoint = interp(prev.HeatingSetpoint, target.HeatingSetpoint, frac)
	out.CoolingSetpoint = interp(prev.CoolingSetpoint, target.CoolingSetpoint, frac)
	out.VPD = interp(prev.VPD, target.VPD, frac)
	out.CO2 = interp(prev.CO2, target.CO2, frac)
	return out
}

func interp(prev, next *float64, frac float64) *float64 {
	if next == nil {
		return nil
	}
	if prev == nil {
		v := *next
		return &v
	}
	v := *prev + (*next-*prev)*frac
	return &v
}

// VPDRampWarningThreshold is the spec §4.5 threshold above which a vpd
// ramp-in duration is flagged ("may cause stomatal shock") at config load.
const VPDRampWarningThreshold = 15 * time.Minute

// ValidateRamps returns the phases whose configured ramp-in duration
// exceeds VPDRampWarningThreshold; the caller logs a warning for each
// (spec §4.5) but load is not rejected.
func (c Config) ValidateRamps() []model.ClimatePhase {
	var warn []model.ClimatePhase
	for phase, sp := range c.Setpoints {
		if sp.RampInDuration > VPDRampWarningThreshold {
			warn = append(warn, phase)
		}
	}
	return warn
}
