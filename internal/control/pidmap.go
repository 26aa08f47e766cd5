package control

import (
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
)

// sensorForKind returns the canonical sensor name a PID/hysteresis setpoint
// kind is measured against (spec §8 scenario 1 measures heating against
// dry_bulb_f; §4.6 drives dehumidify/humidify off vpd and implicitly co2
// devices off co2).
func sensorForKind(kind string) (string, bool) {
	switch kind {
	case "heating", "cooling":
		return model.SensorTemperature, true
	case "co2":
		return model.SensorCO2, true
	case "vpd":
		return model.SensorVPD, true
	default:
		return "", false
	}
}

// targetForKind extracts the configured setpoint value for kind from the
// zone's currently-active (ramp-interpolated) setpoint, if configured.
func targetForKind(kind string, sp model.Setpoint) (float64, bool) {
	switch kind {
	case "heating":
		if sp.HeatingSetpoint == nil {
			return 0, false
		}
		return *sp.HeatingSetpoint, true
	case "cooling":
		if sp.CoolingSetpoint == nil {
			return 0, false
		}
		return *sp.CoolingSetpoint, true
	case "co2":
		if sp.CO2 == nil {
			return 0, false
		}
		return *sp.CO2, true
	case "vpd":
		if sp.VPD == nil {
			return 0, false
		}
		return *sp.VPD, true
	default:
		return 0, false
	}
}

// reverseActing reports whether higher measurement should drive a higher
// PID output (cooling/venting loops), as opposed to direct-acting loops
// (heating) where lower measurement drives higher output. pkg/pid.Controller
// is direct-acting only (e = setpoint - measurement); reverse-acting kinds
// are realized by negating both setpoint and measurement before handing
// them to the bank, which flips the sign of the error without touching the
// controller itself.
func reverseActing(kind string) bool {
	switch kind {
	case "cooling", "co2":
		return true
	default:
		return false
	}
}

// pidCandidates builds the Bank.ComputeDevice candidate list for a
// PID-enabled device from its configured setpoint kinds/priorities, the
// zone's active setpoint, and a sensor-value lookup.
func pidCandidates(dev model.Device, sp model.Setpoint, lookup func(sensorName string) (float64, bool)) []pid.Candidate {
	var out []pid.Candidate
	for kind, priority := range dev.PIDSetpoints {
		target, ok := targetForKind(kind, sp)
		if !ok {
			continue
		}
		sensorName, ok := sensorForKind(kind)
		if !ok {
			continue
		}
		value, fresh := lookup(sensorName)

		if reverseActing(kind) {
			target, value = -target, -value
		}
		out = append(out, pid.Candidate{
			SetpointKind: kind,
			Priority:     priority,
			Setpoint:     target,
			Measurement:  pid.Measurement{Value: value, Fresh: fresh},
		})
	}
	return out
}
