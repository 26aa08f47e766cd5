package pid

import (
	"math"
	"time"
)

// IMax bounds the integral term (spec §4.3 clamp(..., -I_max, I_max)).
const IMax = 100.0

// Controller is a single PID loop producing a 0-100% output (spec §4.3).
type Controller struct {
	Kp, Ki, Kd float64

	// deviceType is stamped by pid.Bank so Tick can push a device-type
	// gain reload to every controller derived from it.
	deviceType string

	integral   float64
	prevError  float64
	lastOutput float64
	lastTick   time.Time
	started    bool
}

// NewController creates a controller with the given gains, output held at 0
// until the first Step.
func NewController(kp, ki, kd float64) *Controller {
	return &Controller{Kp: kp, Ki: ki, Kd: kd}
}

// SetGains updates the gains in place; the integral/derivative history is
// preserved (spec scenario 6: "the integral term is preserved, not reset").
func (c *Controller) SetGains(kp, ki, kd float64) {
	c.Kp, c.Ki, c.Kd = kp, ki, kd
}

// Output returns the most recently computed output without stepping.
func (c *Controller) Output() float64 { return c.lastOutput }

// Step advances the controller by one tick at time now, given the
// setpoint/measurement pair. fresh reports whether the measurement's
// sensor source is live or last_good and within the hold period (spec I6);
// when false the controller freezes: the integral is not updated and the
// previous output is returned unchanged (spec §4.3).
//
// maxDelta bounds the elapsed time used for integration (spec §5: Δt
// clamped to ≤ 5× nominal tick period after a gap, to prevent integral
// blow-up across a long pause).
func (c *Controller) Step(setpoint, measurement float64, now time.Time, fresh bool, maxDelta time.Duration) float64 {
	if !c.started {
		c.lastTick = now
		c.started = true
	}

	if !fresh {
		c.lastTick = now
		return c.lastOutput
	}

	dt := now.Sub(c.lastTick).Seconds()
	if maxDelta > 0 && now.Sub(c.lastTick) > maxDelta {
		dt = maxDelta.Seconds()
	}
	if dt < 0 {
		dt = 0
	}

	e := setpoint - measurement

	p := c.Kp * e

	integralCandidate := c.integral + c.Ki*e*dt
	if integralCandidate > IMax {
		integralCandidate = IMax
	} else if integralCandidate < -IMax {
		integralCandidate = -IMax
	}

	var d float64
	if dt > 0 {
		d = c.Kd * (e - c.prevError) / dt
	}

	raw := p + integralCandidate + d
	u := clamp(raw, 0, 100)

	// Anti-windup: if output saturated in the same direction the integral
	// is pushing, roll back this step's integration instead of
	// accumulating further (spec §4.3).
	saturated := raw != u
	if saturated && sameSign(e, integralCandidate) {
		// keep c.integral unchanged (roll back)
	} else {
		c.integral = integralCandidate
	}

	c.prevError = e
	c.lastTick = now
	c.lastOutput = u
	return u
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sameSign(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return math.Signbit(a) == math.Signbit(b)
}
