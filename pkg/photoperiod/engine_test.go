package photoperiod

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLightRampScenario mirrors spec scenario 5.
func TestLightRampScenario(t *testing.T) {
	c := Config{
		DayStart:           6 * time.Hour,
		DayEnd:             22 * time.Hour,
		RampUp:             30 * time.Minute,
		RampDown:           30 * time.Minute,
		TargetIntensityPct: 80,
	}

	cases := []struct {
		tod  time.Duration
		want float64
	}{
		{6*time.Hour + 15*time.Minute, 40},
		{6*time.Hour + 30*time.Minute, 80},
		{21*time.Hour + 30*time.Minute, 80},
		{21*time.Hour + 45*time.Minute, 40},
		{22 * time.Hour, 0},
	}
	for _, tc := range cases {
		got := c.Intensity(tc.tod)
		assert.InDelta(t, tc.want, got, 0.01, "tod=%s", tc.tod)
	}
}

// TestPhotoperiodBoundary mirrors spec I7.
func TestPhotoperiodBoundary(t *testing.T) {
	c := Config{DayStart: 6 * time.Hour, DayEnd: 22 * time.Hour, RampUp: 30 * time.Minute, RampDown: 30 * time.Minute, TargetIntensityPct: 80}

	assert.Equal(t, 0.0, c.Intensity(22*time.Hour))
	assert.InDelta(t, 80.0, c.Intensity(6*time.Hour+30*time.Minute), 0.001)
}

// TestOverlappingRampsReshapeToMidpoint mirrors spec B3.
func TestOverlappingRampsReshapeToMidpoint(t *testing.T) {
	c := Config{DayStart: 6 * time.Hour, DayEnd: 7 * time.Hour, RampUp: 40 * time.Minute, RampDown: 40 * time.Minute, TargetIntensityPct: 100}

	out, reshaped := c.Normalize()
	assert.True(t, reshaped)
	assert.Equal(t, 30*time.Minute, out.RampUp)
	assert.Equal(t, 30*time.Minute, out.RampDown)

	notReshaped := Config{DayStart: 6 * time.Hour, DayEnd: 22 * time.Hour, RampUp: 30 * time.Minute, RampDown: 30 * time.Minute}
	_, reshaped2 := notReshaped.Normalize()
	assert.False(t, reshaped2)
}

func TestWrapAroundDayEnd(t *testing.T) {
	// day_start=22:00, day_end=06:00 (crosses midnight), 8h photoperiod.
	c := Config{DayStart: 22 * time.Hour, DayEnd: 6 * time.Hour, RampUp: 30 * time.Minute, RampDown: 30 * time.Minute, TargetIntensityPct: 50}

	assert.Equal(t, 8*time.Hour, c.Duration())
	assert.InDelta(t, 50.0, c.Intensity(23*time.Hour), 0.001)
	assert.InDelta(t, 50.0, c.Intensity(2*time.Hour), 0.001)
	assert.Equal(t, 0.0, c.Intensity(12*time.Hour))
}

func TestEvaluateNonDimmableIgnoresIntensity(t *testing.T) {
	c := Config{DayStart: 6 * time.Hour, DayEnd: 22 * time.Hour, TargetIntensityPct: 80}
	cmd := c.Evaluate(12 * time.Hour)
	assert.True(t, cmd.State)
	assert.InDelta(t, 80.0, cmd.IntensityPct, 0.001)
}
