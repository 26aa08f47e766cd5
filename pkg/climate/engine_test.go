package climate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

func f(v float64) *float64 { return &v }

func testConfig() Config {
	return Config{
		DayStart:         6 * time.Hour,
		DayEnd:           22 * time.Hour,
		PreDayDuration:   30 * time.Minute,
		PreNightDuration: 45 * time.Minute,
		Setpoints: map[model.ClimatePhase]model.Setpoint{
			model.PhaseDay:      {HeatingSetpoint: f(24), CoolingSetpoint: f(28), RampInDuration: 10 * time.Minute},
			model.PhaseNight:    {HeatingSetpoint: f(18), CoolingSetpoint: f(24), RampInDuration: 10 * time.Minute},
			model.PhasePreDay:   {HeatingSetpoint: f(21), CoolingSetpoint: f(26), RampInDuration: 10 * time.Minute},
			model.PhasePreNight: {HeatingSetpoint: f(21), CoolingSetpoint: f(26), RampInDuration: 10 * time.Minute},
		},
	}
}

func TestPhasePartitioning(t *testing.T) {
	c := testConfig()

	assert.Equal(t, model.PhasePreDay, c.Phase(5*time.Hour+45*time.Minute))
	assert.Equal(t, model.PhaseDay, c.Phase(6*time.Hour))
	assert.Equal(t, model.PhaseDay, c.Phase(12*time.Hour))
	assert.Equal(t, model.PhasePreNight, c.Phase(21*time.Hour+30*time.Minute))
	assert.Equal(t, model.PhaseNight, c.Phase(22 * time.Hour))
	assert.Equal(t, model.PhaseNight, c.Phase(23 * time.Hour))
	assert.Equal(t, model.PhasePreDay, c.Phase(5*time.Hour+50*time.Minute))
}

func TestZeroPreDurationMakesPhaseEmpty(t *testing.T) {
	c := testConfig()
	c.PreDayDuration = 0

	// Just before day_start should now resolve directly to NIGHT, never PRE_DAY.
	assert.Equal(t, model.PhaseNight, c.Phase(5*time.Hour+59*time.Minute))
}

func TestSetpointRampsAcrossPhaseBoundary(t *testing.T) {
	c := testConfig()

	// Immediately at the DAY boundary: should equal PRE_DAY's values (frac=0),
	// since PRE_DAY precedes DAY in the phase cycle.
	atBoundary := c.Active(6 * time.Hour)
	require.NotNil(t, atBoundary.HeatingSetpoint)
	assert.InDelta(t, 21.0, *atBoundary.HeatingSetpoint, 0.01)

	// Halfway through the 10-minute ramp.
	mid := c.Active(6*time.Hour + 5*time.Minute)
	assert.InDelta(t, 22.5, *mid.HeatingSetpoint, 0.01) // (21+24)/2

	// After the ramp completes, holds at the new phase's value.
	after := c.Active(6*time.Hour + 20*time.Minute)
	assert.InDelta(t, 24.0, *after.HeatingSetpoint, 0.01)
}

func TestValidateRampsFlagsLongRamp(t *testing.T) {
	c := testConfig()
	sp := c.Setpoints[model.PhaseDay]
	sp.RampInDuration = 20 * time.Minute
	c.Setpoints[model.PhaseDay] = sp

	warned := c.ValidateRamps()
	assert.Contains(t, warned, model.PhaseDay)
}
