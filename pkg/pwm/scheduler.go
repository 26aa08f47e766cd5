package pwm

import "time"

// DefaultPeriod, DefaultMinOn and DefaultMinOff are the spec §4.3/§6
// defaults (100s period, 5s minimum on/off).
const (
	DefaultPeriod = 100 * time.Second
	DefaultMinOn  = 5 * time.Second
	DefaultMinOff = 5 * time.Second
)

// Scheduler converts a PID's 0-100% output into an ON/OFF duty cycle within
// a fixed period, using a phase clock that starts once on first enable and
// is never restarted by recomputation (spec §4.3).
type Scheduler struct {
	Period time.Duration
	MinOn  time.Duration
	MinOff time.Duration

	phaseStart time.Time
	started    bool
}

// NewScheduler creates a scheduler; zero values select the spec defaults.
func NewScheduler(period, minOn, minOff time.Duration) *Scheduler {
	if period <= 0 {
		period = DefaultPeriod
	}
	if minOn <= 0 {
		minOn = DefaultMinOn
	}
	if minOff <= 0 {
		minOff = DefaultMinOff
	}
	return &Scheduler{Period: period, MinOn: minOn, MinOff: minOff}
}

// Reset restarts the phase clock; call when a device transitions from
// disabled/manual back into PID control (a fresh "first enable").
func (s *Scheduler) Reset() {
	s.started = false
}

// Evaluate computes whether the device should be ON at time now given the
// latest PID output u (0-100), and the effective duty-cycle percentage
// after min-on/min-off snapping (spec I4, I5).
func (s *Scheduler) Evaluate(u float64, now time.Time) (on bool, dutyCyclePct float64) {
	if !s.started {
		s.phaseStart = now
		s.started = true
	}

	if u < 0 {
		u = 0
	} else if u > 100 {
		u = 100
	}

	ton := time.Duration(float64(s.Period) * u / 100)
	if ton < s.MinOn {
		ton = 0
	} else if s.Period-ton < s.MinOff {
		ton = s.Period
	}

	elapsed := now.Sub(s.phaseStart) % s.Period
	if elapsed < 0 {
		elapsed += s.Period
	}

	on = elapsed < ton
	dutyCyclePct = float64(ton) / float64(s.Period) * 100
	return on, dutyCyclePct
}
