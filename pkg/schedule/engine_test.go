package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

func device() model.DeviceKey {
	return model.DeviceKey{Zone: model.ZoneKey{Location: "gh1", Cluster: "a"}, Name: "fan_1"}
}

func at(h, m int) time.Time {
	return time.Date(2026, 7, 31, h, m, 0, 0, time.UTC) // a Friday
}

func TestNoSchedulesForDeviceMeansStepDoesNotApply(t *testing.T) {
	e := NewEngine()
	_, ok := e.Evaluate(nil, device(), at(10, 0))
	require.False(t, ok)
}

func TestActiveScheduleTurnsDeviceOn(t *testing.T) {
	e := NewEngine()
	s := model.Schedule{ID: 1, Device: device(), Enabled: true, StartTime: 8 * time.Hour, EndTime: 18 * time.Hour}
	dec, ok := e.Evaluate([]model.Schedule{s}, device(), at(10, 0))
	require.True(t, ok)
	require.True(t, dec.State)
	require.Equal(t, int64(1), *dec.ScheduleID)
}

func TestNoActiveScheduleTurnsDeviceOff(t *testing.T) {
	e := NewEngine()
	s := model.Schedule{ID: 1, Device: device(), Enabled: true, StartTime: 8 * time.Hour, EndTime: 18 * time.Hour}
	dec, ok := e.Evaluate([]model.Schedule{s}, device(), at(20, 0))
	require.True(t, ok)
	require.False(t, dec.State)
	require.Nil(t, dec.ScheduleID)
}

func TestLowestIDWinsAmongMultipleActiveSchedules(t *testing.T) {
	e := NewEngine()
	s1 := model.Schedule{ID: 5, Device: device(), Enabled: true, StartTime: 8 * time.Hour, EndTime: 18 * time.Hour}
	s2 := model.Schedule{ID: 2, Device: device(), Enabled: true, StartTime: 9 * time.Hour, EndTime: 17 * time.Hour}
	dec, ok := e.Evaluate([]model.Schedule{s1, s2}, device(), at(10, 0))
	require.True(t, ok)
	require.Equal(t, int64(2), *dec.ScheduleID)
}

func TestOtherDeviceSchedulesIgnored(t *testing.T) {
	e := NewEngine()
	other := model.DeviceKey{Zone: device().Zone, Name: "heater_1"}
	s := model.Schedule{ID: 1, Device: other, Enabled: true, StartTime: 8 * time.Hour, EndTime: 18 * time.Hour}
	_, ok := e.Evaluate([]model.Schedule{s}, device(), at(10, 0))
	require.False(t, ok)
}

func TestActiveScheduleWithTargetIntensityRampsLikeAPhotoperiod(t *testing.T) {
	e := NewEngine()
	target := 80.0
	s := model.Schedule{
		ID: 1, Device: device(), Enabled: true,
		StartTime: 8 * time.Hour, EndTime: 18 * time.Hour,
		TargetIntensityPct: &target,
		RampUpDuration:     30 * time.Minute,
		RampDownDuration:   30 * time.Minute,
	}

	dec, ok := e.Evaluate([]model.Schedule{s}, device(), at(8, 15))
	require.True(t, ok)
	require.NotNil(t, dec.IntensityPct)
	require.InDelta(t, 40.0, *dec.IntensityPct, 0.01, "halfway through a 30m ramp-up to 80%% should read 40%%")

	dec, ok = e.Evaluate([]model.Schedule{s}, device(), at(12, 0))
	require.True(t, ok)
	require.InDelta(t, 80.0, *dec.IntensityPct, 0.01)
}

func TestActiveScheduleWithoutTargetIntensityLeavesIntensityNil(t *testing.T) {
	e := NewEngine()
	s := model.Schedule{ID: 1, Device: device(), Enabled: true, StartTime: 8 * time.Hour, EndTime: 18 * time.Hour}
	dec, ok := e.Evaluate([]model.Schedule{s}, device(), at(10, 0))
	require.True(t, ok)
	require.Nil(t, dec.IntensityPct)
}

func TestMidnightWrapSchedule(t *testing.T) {
	e := NewEngine()
	s := model.Schedule{ID: 1, Device: device(), Enabled: true, StartTime: 22 * time.Hour, EndTime: 6 * time.Hour}
	dec, ok := e.Evaluate([]model.Schedule{s}, device(), at(23, 0))
	require.True(t, ok)
	require.True(t, dec.State)
}
