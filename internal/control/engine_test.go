package control

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/internal/config"
	"github.com/Phoenix5595/cea-automation-core/internal/hardware"
	"github.com/Phoenix5595/cea-automation-core/internal/sensorcache"
	"github.com/Phoenix5595/cea-automation-core/pkg/climate"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/interlock"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/photoperiod"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
	"github.com/Phoenix5595/cea-automation-core/pkg/relay"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

var testZone = model.ZoneKey{Location: "Veg", Cluster: "a"}

type fakeSample struct {
	value float64
	ts    time.Time
}

type fakeBus struct {
	live map[string]fakeSample
}

func newFakeBus() *fakeBus { return &fakeBus{live: map[string]fakeSample{}} }

func busKey(z model.ZoneKey, name string) string { return z.String() + "/" + name }

func (f *fakeBus) GetLiveSensor(_ context.Context, z model.ZoneKey, name string) (float64, time.Time, bool, error) {
	s, ok := f.live[busKey(z, name)]
	return s.value, s.ts, ok, nil
}

func (f *fakeBus) GetLastGoodSensor(_ context.Context, z model.ZoneKey, name string) (float64, time.Time, bool, error) {
	return f.GetLiveSensor(context.Background(), z, name)
}

func (f *fakeBus) SetSensor(_ context.Context, z model.ZoneKey, name string, value float64, ts time.Time) error {
	f.live[busKey(z, name)] = fakeSample{value, ts}
	return nil
}

func (f *fakeBus) set(name string, value float64, ts time.Time) {
	f.live[busKey(testZone, name)] = fakeSample{value, ts}
}

type fakeRuleSource struct{ rules []model.Rule }

func (f fakeRuleSource) LoadRules(context.Context) ([]model.Rule, error) { return f.rules, nil }

type fakeScheduleSource struct{ schedules []model.Schedule }

func (f fakeScheduleSource) LoadSchedules(context.Context) ([]model.Schedule, error) {
	return f.schedules, nil
}

// testRig wires a full Engine over in-memory fakes/sims, for exercising the
// concrete scenarios without touching a real bus, DB, or I2C device.
type testRig struct {
	engine  *Engine
	relay   *relay.Manager
	sim     *hardware.Sim
	fsm     *failsafe.Manager
	bus     *fakeBus
	devices []model.Device
}

func newRig(t *testing.T, devices []model.Device, rules []model.Rule, schedules []model.Schedule, climateCfg map[model.ZoneKey]climate.Config) *testRig {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	zones := zone.NewManager()
	require.NoError(t, zones.Register(testZone))

	fsm := failsafe.NewManager(zones, failsafe.DefaultConfig())

	sim := hardware.NewSim()
	relayMgr := relay.NewManager(sim, fsm, devices, log)
	require.NoError(t, relayMgr.Startup(ctx, nil, model.StartupSafeStart, time.Now()))

	bus := newFakeBus()
	sensors := sensorcache.New(bus, nil, fsm, sensorcache.DefaultConfig())

	store := NewRuleScheduleStore(fakeRuleSource{rules: rules}, fakeScheduleSource{schedules: schedules}, log)
	require.NoError(t, store.Load(ctx))

	cfgStore := config.NewStore(&config.Snapshot{
		UpdateInterval: time.Second,
		PWMMinOn:       1 * time.Second,
		PWMMinOff:      1 * time.Second,
		Devices:        devices,
		Climate:        climateCfg,
	})

	pidBank := pid.NewBank(0)
	for _, d := range devices {
		if d.PIDEnabled {
			pidBank.SeedDefaults(d.Type, model.PIDParameters{Kp: 5, Ki: 0.1, Kd: 0}, time.Now())
		}
	}

	interlockMgr := interlock.NewManager(fsm)

	eng := New(cfgStore, sensors, store, pidBank, interlockMgr, fsm, relayMgr, nil, devices, log)

	return &testRig{engine: eng, relay: relayMgr, sim: sim, fsm: fsm, bus: bus, devices: devices}
}

func (r *testRig) state(name string) model.DeviceState {
	st, _ := r.relay.ReadState(model.DeviceKey{Zone: testZone, Name: name})
	return st
}

func heater() model.Device {
	return model.Device{
		Key:        model.DeviceKey{Zone: testZone, Name: "heater1"},
		Type:       model.DeviceHeater,
		Board:      "b1",
		Channel:    0,
		PIDEnabled: true,
		PIDSetpoints: map[string]int{
			"heating": 0,
		},
		PWMPeriod: 10 * time.Second,
		SafeState: model.SafeOff,
	}
}

func fan() model.Device {
	return model.Device{
		Key:       model.DeviceKey{Zone: testZone, Name: "fan1"},
		Type:      model.DeviceFan,
		Board:     "b1",
		Channel:   1,
		SafeState: model.SafeOn,
	}
}

func exhaustFan() model.Device {
	return model.Device{
		Key:       model.DeviceKey{Zone: testZone, Name: "exhaust1"},
		Type:      model.DeviceExhaustFan,
		Board:     "b1",
		Channel:   2,
		SafeState: model.SafeOff,
	}
}

func light() model.Device {
	return model.Device{
		Key:       model.DeviceKey{Zone: testZone, Name: "light1"},
		Type:      model.DeviceLight,
		Board:     "b1",
		Channel:   3,
		Dimmable:  true,
		Dimming:   model.DimmingDescriptor{BoardID: "b1", DACChannel: 0},
		SafeState: model.SafeOff,
	}
}

func baseClimate() climate.Config {
	heat := 22.0
	return climate.Config{
		DayStart: 6 * time.Hour,
		DayEnd:   22 * time.Hour,
		Setpoints: map[model.ClimatePhase]model.Setpoint{
			model.PhaseDay:      {HeatingSetpoint: &heat},
			model.PhasePreDay:   {HeatingSetpoint: &heat},
			model.PhasePreNight: {HeatingSetpoint: &heat},
			model.PhaseNight:    {HeatingSetpoint: &heat},
		},
	}
}

// Scenario: a cold zone (measurement well below setpoint) drives the PID
// output high enough that the heater relay turns ON this tick (spec §8
// scenario 1).
func TestHeaterPIDWarmUp(t *testing.T) {
	dev := heater()
	rig := newRig(t, []model.Device{dev}, nil, nil, map[model.ZoneKey]climate.Config{testZone: baseClimate()})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig.bus.set(model.SensorTemperature, 15.0, now)

	rig.engine.Tick(context.Background(), now)

	st := rig.state("heater1")
	assert.True(t, st.State)
	assert.Equal(t, model.ReasonPID, st.LastReason)
}

// Scenario: a rule targeting the same device as an active schedule wins
// (spec §4.1.3 priority order, §8 scenario 2).
func TestRuleOverridesSchedule(t *testing.T) {
	dev := fan()
	sch := model.Schedule{ID: 1, Device: dev.Key, Enabled: true, StartTime: 0, EndTime: 23*time.Hour + 59*time.Minute}
	rule := model.Rule{
		ID: 7, Enabled: true, Zone: testZone,
		ConditionSensor: model.SensorTemperature, ConditionOperator: model.OpGT, ConditionValue: 20,
		ActionDevice: dev.Key.Name, ActionState: false, Priority: 50,
	}
	rig := newRig(t, []model.Device{dev}, []model.Rule{rule}, []model.Schedule{sch}, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig.bus.set(model.SensorTemperature, 25.0, now)

	rig.engine.Tick(context.Background(), now)

	st := rig.state("fan1")
	assert.False(t, st.State, "rule should force the fan off despite the schedule being active")
	assert.Equal(t, model.ReasonRule, st.LastReason)
	require.NotNil(t, st.LastRuleID)
	assert.EqualValues(t, 7, *st.LastRuleID)
}

// Scenario: two candidates that are both ON conflict via an interlock rule;
// the loser is forced off even though its own arbitration wanted it on
// (spec §8 scenario 3).
func TestInterlockForcesLoserOff(t *testing.T) {
	heaterDev := heater()
	exhaust := exhaustFan()
	// Start the exhaust ON so the interlock has a relay to turn off.
	exhaust.SafeState = model.SafeOn
	rules := []model.Rule{
		{ID: 1, Enabled: true, Zone: testZone, ConditionSensor: model.SensorTemperature, ConditionOperator: model.OpGE, ConditionValue: 0,
			ActionDevice: exhaust.Key.Name, ActionState: true, Priority: 10},
	}
	rig := newRig(t, []model.Device{heaterDev, exhaust}, rules, nil,
		map[model.ZoneKey]climate.Config{testZone: baseClimate()})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig.bus.set(model.SensorTemperature, 10.0, now)

	snap := rig.engine.configStore.Current()
	snap.Interlocks = []interlock.Rule{{Zone: testZone, Winner: heaterDev.Key.Name, Loser: exhaust.Key.Name}}
	rig.engine.configStore.Swap(snap)

	rig.engine.Tick(context.Background(), now)

	assert.True(t, rig.state("heater1").State)
	assert.False(t, rig.state("exhaust1").State)
	assert.Equal(t, model.ReasonInterlock, rig.state("exhaust1").LastReason)
}

// Scenario: a zone forced into failsafe drives every device to its
// safe_state and ignores rules/PID entirely (spec §4.9, §8 scenario 4).
func TestFailsafeForcesSafeState(t *testing.T) {
	heaterDev := heater()
	fanDev := fan()
	rig := newRig(t, []model.Device{heaterDev, fanDev}, nil, nil,
		map[model.ZoneKey]climate.Config{testZone: baseClimate()})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	// Turn the heater ON first, so failsafe has a transition to make.
	res := rig.relay.Apply(context.Background(), model.Command{Device: heaterDev.Key, State: true, Reason: model.ReasonPID}, now)
	require.NoError(t, res.Err)
	// Drive sensor_loss: never report any sensor, advance past the
	// escalation windows via synthetic calls instead of waiting wall-clock.
	rig.fsm.ReportSensor(testZone, model.SensorTemperature, false, now)
	rig.fsm.ReportSensor(testZone, model.SensorTemperature, false, now.Add(3*time.Minute))

	require.True(t, rig.fsm.IsFailsafe(testZone))

	rig.engine.Tick(context.Background(), now.Add(3*time.Minute))

	assert.False(t, rig.state("heater1").State, "heater safe_state is OFF")
	assert.True(t, rig.state("fan1").State, "fan safe_state is ON")
	assert.Equal(t, model.ReasonFailsafe, rig.state("heater1").LastReason)
}

// Scenario: a light with no configured photoperiod for its zone falls
// through to its schedule instead of sticking with noChange (spec: "Light
// devices additionally consult §4.4"; a schedule drives the light directly
// when the zone has no photoperiod configured).
func TestLightFallsBackToScheduleWithoutPhotoperiod(t *testing.T) {
	dev := light()
	sch := model.Schedule{ID: 1, Device: dev.Key, Enabled: true, StartTime: 6 * time.Hour, EndTime: 20 * time.Hour}
	rig := newRig(t, []model.Device{dev}, nil, []model.Schedule{sch}, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig.engine.Tick(context.Background(), now)

	st := rig.state("light1")
	assert.True(t, st.State, "schedule should drive the light on when no photoperiod is configured for the zone")
	assert.Equal(t, model.ReasonSchedule, st.LastReason)
	require.NotNil(t, st.LastScheduleID)
	assert.EqualValues(t, 1, *st.LastScheduleID)
}

// Scenario: a zone's configured photoperiod overrides an active schedule
// for the same light device (spec: "schedules never override a configured
// photoperiod for a light unless the photoperiod is disabled for that
// zone").
func TestLightPhotoperiodOverridesSchedule(t *testing.T) {
	dev := light()
	// Start the light ON so the photoperiod has a transition to make.
	dev.SafeState = model.SafeOn
	sch := model.Schedule{ID: 1, Device: dev.Key, Enabled: true, StartTime: 0, EndTime: 23*time.Hour + 59*time.Minute}
	rig := newRig(t, []model.Device{dev}, nil, []model.Schedule{sch}, nil)

	snap := rig.engine.configStore.Current()
	snap.Photoperiod = map[model.ZoneKey]photoperiod.Config{
		testZone: {DayStart: 6 * time.Hour, DayEnd: 22 * time.Hour, TargetIntensityPct: 100},
	}
	rig.engine.configStore.Swap(snap)

	// Outside the configured photoperiod window but inside the schedule's.
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	rig.engine.Tick(context.Background(), now)

	st := rig.state("light1")
	assert.False(t, st.State, "photoperiod, not the always-on schedule, should govern the light")
	assert.Equal(t, model.ReasonPhotoperiod, st.LastReason)
}

// Scenario: a manually-controlled device is left untouched by arbitration
// regardless of what rules/PID would otherwise compute (spec §4.1.3.1).
func TestManualModeSticky(t *testing.T) {
	dev := heater()
	rig := newRig(t, []model.Device{dev}, nil, nil, map[model.ZoneKey]climate.Config{testZone: baseClimate()})

	require.NoError(t, rig.relay.SetMode(dev.Key, model.ModeManual))
	// Force the relay on manually via a direct Apply, simulating an
	// operator apply_manual call.
	on := true
	res := rig.relay.Apply(context.Background(), model.Command{Device: dev.Key, State: on, Reason: model.ReasonManual}, time.Now())
	require.NoError(t, res.Err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig.bus.set(model.SensorTemperature, 30.0, now) // would otherwise drive heater off/PID low

	rig.engine.Tick(context.Background(), now)

	st := rig.state("heater1")
	assert.True(t, st.State, "manual state must survive the tick untouched")
}
