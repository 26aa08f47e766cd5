package hysteresis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDehumidifierTurnsOnBelowLowBand(t *testing.T) {
	on := Evaluate(KindDehumidifier, false, 0.8, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.True(t, on)
}

func TestDehumidifierHoldsInsideBand(t *testing.T) {
	on := Evaluate(KindDehumidifier, true, 0.95, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.True(t, on, "still within band, should hold current state")

	off := Evaluate(KindDehumidifier, false, 0.95, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.False(t, off, "still within band, should hold current state")
}

func TestDehumidifierTurnsOffAboveHighBand(t *testing.T) {
	off := Evaluate(KindDehumidifier, true, 1.2, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.False(t, off)
}

func TestHumidifierIsMirrorOfDehumidifier(t *testing.T) {
	on := Evaluate(KindHumidifier, false, 1.2, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.True(t, on)

	off := Evaluate(KindHumidifier, true, 0.8, 1.0, Deadbands{Low: 0.1, High: 0.1})
	assert.False(t, off)
}

func TestCoolingFanTurnsOnAboveSetpoint(t *testing.T) {
	on := Evaluate(KindCoolingFan, false, 26.0, 25.0, Deadbands{Low: 0.5, High: 0.5})
	assert.True(t, on)

	off := Evaluate(KindCoolingFan, true, 24.0, 25.0, Deadbands{Low: 0.5, High: 0.5})
	assert.False(t, off)
}

func TestDefaultDeadbandIsProportionalToSetpointMagnitude(t *testing.T) {
	// setpoint=10, default band = 0.05*10 = 0.5 on each side.
	on := Evaluate(KindDehumidifier, false, 9.4, 10, Deadbands{})
	assert.True(t, on)

	hold := Evaluate(KindDehumidifier, false, 9.6, 10, Deadbands{})
	assert.False(t, hold)
}
