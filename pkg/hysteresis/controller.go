package hysteresis

import "math"

// DefaultDeadbandFraction is the spec §4.6 default: deadband_low =
// deadband_high = 0.05 * setpoint_magnitude, unless overridden per device.
const DefaultDeadbandFraction = 0.05

// Kind selects which of the three two-point laws in spec §4.6 to apply.
type Kind uint8

const (
	// KindDehumidifier turns ON below (setpoint - deadbandLow), OFF above
	// (setpoint + deadbandHigh), against a VPD measurement.
	KindDehumidifier Kind = iota
	// KindHumidifier is the mirror image of KindDehumidifier.
	KindHumidifier
	// KindCoolingFan turns ON above (setpoint + deadbandHigh), OFF below
	// (setpoint - deadbandLow), against a temperature measurement.
	KindCoolingFan
)

// Deadbands holds the two independent hysteresis bands around a setpoint
// (spec §4.6). A zero value in either field selects the spec default,
// computed from the setpoint magnitude at Evaluate time.
type Deadbands struct {
	Low  float64
	High float64
}

// resolve fills in defaults proportional to |setpoint| where unset.
func (d Deadbands) resolve(setpoint float64) (low, high float64) {
	low, high = d.Low, d.High
	mag := math.Abs(setpoint)
	if low == 0 {
		low = DefaultDeadbandFraction * mag
	}
	if high == 0 {
		high = DefaultDeadbandFraction * mag
	}
	return low, high
}

// Evaluate applies the two-point control law in spec §4.6. current is the
// device's present ON/OFF state, used to hold between the two thresholds
// (true Schmitt-trigger hysteresis, not a single crossing test). Returns
// the next ON/OFF state; when fresh is false the caller must not call
// Evaluate at all and should instead leave the device's state unchanged
// (spec §4.6 "Missing sensor -> no change").
func Evaluate(kind Kind, current bool, measurement, setpoint float64, bands Deadbands) bool {
	low, high := bands.resolve(setpoint)

	switch kind {
	case KindDehumidifier:
		switch {
		case measurement < setpoint-low:
			return true
		case measurement > setpoint+high:
			return false
		default:
			return current
		}
	case KindHumidifier:
		switch {
		case measurement > setpoint+high:
			return true
		case measurement < setpoint-low:
			return false
		default:
			return current
		}
	case KindCoolingFan:
		switch {
		case measurement > setpoint+high:
			return true
		case measurement < setpoint-low:
			return false
		default:
			return current
		}
	default:
		return current
	}
}
