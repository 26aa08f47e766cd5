package pid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

func pidParams(kp, ki, kd float64) model.PIDParameters {
	return model.PIDParameters{Kp: kp, Ki: ki, Kd: kd}
}

func deviceKey(name string) model.DeviceKey {
	return model.DeviceKey{Zone: model.ZoneKey{Location: "Flower", Cluster: "front"}, Name: name}
}

// TestHeaterWarmUpSteadyState mirrors spec scenario 1: kp=25, ki=0.02, kd=0,
// setpoint 25C, constant measurement 22C, fresh every tick. At steady state
// (no further integral growth because the output saturates well before the
// error is eliminated at this gain), u should settle near 75%.
func TestHeaterWarmUpSteadyState(t *testing.T) {
	c := NewController(25, 0.02, 0)
	now := time.Now()

	var u float64
	for i := 0; i < 1200; i++ {
		now = now.Add(time.Second)
		u = c.Step(25.0, 22.0, now, true, 5*time.Second)
	}

	assert.InDelta(t, 75.0, u, 1.0)
	assert.GreaterOrEqual(t, u, 0.0)
	assert.LessOrEqual(t, u, 100.0)
}

func TestOutputAlwaysInRange(t *testing.T) {
	c := NewController(1000, 10, 5)
	now := time.Now()
	for i := 0; i < 50; i++ {
		now = now.Add(time.Second)
		u := c.Step(25, 0, now, true, 5*time.Second)
		require.GreaterOrEqual(t, u, 0.0)
		require.LessOrEqual(t, u, 100.0)
	}
}

func TestFreezeOnStaleSensorHoldsOutputAndIntegral(t *testing.T) {
	c := NewController(10, 0.1, 0)
	now := time.Now()

	u1 := c.Step(25, 20, now, true, 5*time.Second)
	integralBefore := c.integral

	now = now.Add(time.Second)
	u2 := c.Step(25, 10, now, false, 5*time.Second) // stale: error would be huge, must not move output

	assert.Equal(t, u1, u2)
	assert.Equal(t, integralBefore, c.integral)
}

func TestGainChangePreservesIntegral(t *testing.T) {
	c := NewController(25, 0.02, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		now = now.Add(time.Second)
		c.Step(25, 22, now, true, 5*time.Second)
	}
	integralBefore := c.integral

	c.SetGains(40, 0.02, 0)
	assert.Equal(t, integralBefore, c.integral)
}

func TestDeltaClampAfterLongPause(t *testing.T) {
	c := NewController(0, 1, 0) // pure integral controller, easy to reason about
	now := time.Now()
	c.Step(10, 0, now, true, 5*time.Second) // error = 10, dt = 0 (first tick)

	// A 1-hour gap should clamp to 5x nominal (5s here), not integrate for
	// 3600s worth of error.
	now = now.Add(time.Hour)
	c.Step(10, 0, now, true, 5*time.Second)

	assert.LessOrEqual(t, c.integral, IMax)
	assert.InDelta(t, 50.0, c.integral, 0.001) // 10 * ki(1) * clamped dt(5s)
}

func TestBankRateLimitCoalescesUpdates(t *testing.T) {
	b := NewBank(5 * time.Second)
	now := time.Now()
	b.SeedDefaults("heater", pidParams(25, 0.02, 0), now)

	b.RequestParams("heater", pidParams(30, 0.02, 0), now.Add(time.Second))
	b.RequestParams("heater", pidParams(40, 0.02, 0), now.Add(2*time.Second))

	b.Tick(now.Add(3 * time.Second)) // still inside the 5s window since seed
	assert.Equal(t, 1, b.CoalescedCount("heater"))

	b.Tick(now.Add(6 * time.Second)) // window elapsed: newest (40) applies
	require.Equal(t, 40.0, b.current["heater"].Kp)
}

func TestBankMultiSetpointPriorityPicksHighestPriorityFreshAboveDeadband(t *testing.T) {
	b := NewBank(5 * time.Second)
	b.SeedDefaults("exhaust_fan", pidParams(10, 0.01, 0), time.Now())
	now := time.Now()

	device := deviceKey("f1")
	cands := []Candidate{
		{SetpointKind: "cooling", Priority: 1, Setpoint: 24, Measurement: Measurement{Value: 30, Fresh: true}},
		{SetpointKind: "co2", Priority: 2, Setpoint: 800, Measurement: Measurement{Value: 1200, Fresh: true}},
	}

	_, kind, ok := b.ComputeDevice(device, "exhaust_fan", cands, now, 0, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "cooling", kind)
}

func TestBankMultiSetpointFallsBackWhenHighestPriorityStale(t *testing.T) {
	b := NewBank(5 * time.Second)
	b.SeedDefaults("exhaust_fan", pidParams(10, 0.01, 0), time.Now())
	now := time.Now()

	device := deviceKey("f2")
	cands := []Candidate{
		{SetpointKind: "cooling", Priority: 1, Setpoint: 24, Measurement: Measurement{Value: 30, Fresh: false}},
		{SetpointKind: "co2", Priority: 2, Setpoint: 800, Measurement: Measurement{Value: 1200, Fresh: true}},
	}

	_, kind, ok := b.ComputeDevice(device, "exhaust_fan", cands, now, 0, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "co2", kind)
}
