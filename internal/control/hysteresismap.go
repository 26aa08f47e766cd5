package control

import (
	"github.com/Phoenix5595/cea-automation-core/pkg/hysteresis"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// hysteresisLaw returns the two-point control law and driving sensor/
// setpoint for a non-PID device, or ok=false if the device type has no
// hysteresis law (spec §4.6: only dehumidifiers, humidifiers, and
// cooling-only fans are hysteresis-controlled; everything else falls
// through to the default branch when PID is disabled).
func hysteresisLaw(dev model.Device, sp model.Setpoint) (kind hysteresis.Kind, sensorName string, setpoint float64, ok bool) {
	switch dev.Type {
	case model.DeviceDehumidifier:
		if sp.VPD == nil {
			return 0, "", 0, false
		}
		return hysteresis.KindDehumidifier, model.SensorVPD, *sp.VPD, true
	case model.DeviceHumidifier:
		if sp.VPD == nil {
			return 0, "", 0, false
		}
		return hysteresis.KindHumidifier, model.SensorVPD, *sp.VPD, true
	case model.DeviceFan, model.DeviceExhaustFan:
		if sp.CoolingSetpoint == nil {
			return 0, "", 0, false
		}
		return hysteresis.KindCoolingFan, model.SensorTemperature, *sp.CoolingSetpoint, true
	default:
		return 0, "", 0, false
	}
}
