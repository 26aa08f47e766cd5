package relay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/internal/hardware"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

type fakeStore struct {
	states map[model.DeviceKey]model.DeviceState
	err    error
}

func (f *fakeStore) LoadDeviceStates(ctx context.Context) (map[model.DeviceKey]model.DeviceState, error) {
	return f.states, f.err
}

func zoneKey() model.ZoneKey { return model.ZoneKey{Location: "greenhouse1", Cluster: "a"} }

func heater() model.Device {
	return model.Device{
		Key:       model.DeviceKey{Zone: zoneKey(), Name: "heater_1"},
		Type:      model.DeviceHeater,
		Board:     "board1",
		Channel:   0,
		SafeState: model.SafeOff,
	}
}

func light() model.Device {
	return model.Device{
		Key:       model.DeviceKey{Zone: zoneKey(), Name: "light_1"},
		Type:      model.DeviceLight,
		Board:     "board1",
		Channel:   1,
		Dimmable:  true,
		Dimming:   model.DimmingDescriptor{BoardID: "board1", DACChannel: 0},
		SafeState: model.SafeOff,
	}
}

func newTestManager(t *testing.T, devices ...model.Device) (*Manager, *hardware.Sim, *failsafe.Manager) {
	t.Helper()
	sim := hardware.NewSim()
	zones := zone.NewManager()
	require.NoError(t, zones.Register(zoneKey()))
	fsm := failsafe.NewManager(zones, failsafe.DefaultConfig())
	m := NewManager(sim, fsm, devices, zerolog.Nop())
	return m, sim, fsm
}

func TestApplyCommitsStateOnHardwareSuccess(t *testing.T) {
	m, sim, _ := newTestManager(t, heater())
	require.NoError(t, sim.Open(context.Background()))

	now := time.Now()
	res := m.Apply(context.Background(), model.Command{
		Device: heater().Key,
		State:  true,
		Reason: model.ReasonPID,
	}, now)

	require.NoError(t, res.Err)
	require.True(t, res.State.State)
	require.Equal(t, model.ReasonPID, res.State.LastReason)
	require.Equal(t, uint64(1), res.State.Seq)

	st, ok := m.ReadState(heater().Key)
	require.True(t, ok)
	require.True(t, st.State)
}

func TestApplyHonorsActiveLow(t *testing.T) {
	dev := heater()
	dev.ActiveLow = true
	m, sim, _ := newTestManager(t, dev)
	require.NoError(t, sim.Open(context.Background()))

	m.Apply(context.Background(), model.Command{Device: dev.Key, State: true, Reason: model.ReasonManual}, time.Now())

	require.False(t, sim.RelayState(dev.Board, dev.Channel), "active-low device ON should drive the channel low")
}

func TestApplyToUnknownDeviceFails(t *testing.T) {
	m, sim, _ := newTestManager(t, heater())
	require.NoError(t, sim.Open(context.Background()))

	res := m.Apply(context.Background(), model.Command{
		Device: model.DeviceKey{Zone: zoneKey(), Name: "missing"},
		State:  true,
	}, time.Now())

	require.ErrorIs(t, res.Err, ErrDeviceNotFound)
}

func TestApplyFailureLeavesStateUnchangedAndReportsHardware(t *testing.T) {
	m, sim, _ := newTestManager(t, heater())
	// Bus never opened: every hardware call fails with ErrBusClosed.
	_ = sim

	res := m.Apply(context.Background(), model.Command{Device: heater().Key, State: true}, time.Now())
	require.Error(t, res.Err)

	st, _ := m.ReadState(heater().Key)
	require.False(t, st.State)
	require.Equal(t, uint64(0), st.Seq)
}

func TestStartupRestoreLastAppliesPersistedState(t *testing.T) {
	h := heater()
	m, sim, _ := newTestManager(t, h)

	store := &fakeStore{states: map[model.DeviceKey]model.DeviceState{
		h.Key: {Key: h.Key, State: true},
	}}

	require.NoError(t, m.Startup(context.Background(), store, model.StartupRestoreLast, time.Now()))

	st, ok := m.ReadState(h.Key)
	require.True(t, ok)
	require.True(t, st.State)
	require.Equal(t, model.ReasonStartup, st.LastReason)
	require.True(t, sim.RelayState(h.Board, h.Channel))
}

func TestStartupSafeStartOverridesPersistedOnForSafeOffDevice(t *testing.T) {
	h := heater()
	h.SafeState = model.SafeOff
	m, sim, _ := newTestManager(t, h)

	store := &fakeStore{states: map[model.DeviceKey]model.DeviceState{
		h.Key: {Key: h.Key, State: true},
	}}

	require.NoError(t, m.Startup(context.Background(), store, model.StartupSafeStart, time.Now()))

	st, _ := m.ReadState(h.Key)
	require.False(t, st.State, "safe_start should force the device to its safe state, not the persisted ON")
	require.False(t, sim.RelayState(h.Board, h.Channel))
}

func TestStartupAssertsAllRelaysOffBeforeRestoring(t *testing.T) {
	h := heater()
	m, sim, _ := newTestManager(t, h)

	require.NoError(t, m.Startup(context.Background(), nil, model.StartupRestoreLast, time.Now()))
	require.False(t, sim.RelayState(h.Board, h.Channel))
}

func TestStartupRestoresDimmableIntensity(t *testing.T) {
	l := light()
	m, sim, _ := newTestManager(t, l)

	store := &fakeStore{states: map[model.DeviceKey]model.DeviceState{
		l.Key: {Key: l.Key, State: true, IntensityPct: 42},
	}}

	require.NoError(t, m.Startup(context.Background(), store, model.StartupRestoreLast, time.Now()))
	require.Equal(t, 42.0, sim.IntensityState(l.Dimming.BoardID, l.Dimming.DACChannel))
}

func TestSetModeRecordsPreManualStateOnEntry(t *testing.T) {
	h := heater()
	m, sim, _ := newTestManager(t, h)
	require.NoError(t, sim.Open(context.Background()))

	m.Apply(context.Background(), model.Command{Device: h.Key, State: true, Reason: model.ReasonPID}, time.Now())
	require.NoError(t, m.SetMode(h.Key, model.ModeManual))

	st, _ := m.ReadState(h.Key)
	require.NotNil(t, st.PreManualState)
	require.True(t, *st.PreManualState)
}

func TestAllStatesSortedByZoneThenName(t *testing.T) {
	m, _, _ := newTestManager(t, heater(), light())
	states := m.AllStates()
	require.Len(t, states, 2)
	require.Equal(t, "heater_1", states[0].Key.Name)
	require.Equal(t, "light_1", states[1].Key.Name)
}
