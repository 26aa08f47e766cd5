package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Phoenix5595/cea-automation-core/internal/hardware"
	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

var (
	// ErrDeviceNotFound is returned for an unregistered device key.
	ErrDeviceNotFound = errors.New("relay: device not found")
)

// Store is the persisted-state dependency the Relay Manager needs at
// startup. internal/tsdb implements it; tests use an in-memory fake.
type Store interface {
	LoadDeviceStates(ctx context.Context) (map[model.DeviceKey]model.DeviceState, error)
}

// Result is returned by Apply (spec §4.8 apply → Result).
type Result struct {
	State model.DeviceState
	Err   error
}

// Manager is the sole owner of DeviceState mutation (spec §4.8, spec
// "Ownership" note in §3). It never initiates commands itself; the Control
// Engine (C13) decides what to apply, the Relay Manager applies it.
type Manager struct {
	mu sync.Mutex

	hw       hardware.Adapter
	log      zerolog.Logger
	failsafe *failsafe.Manager

	devices map[model.DeviceKey]model.Device
	state   map[model.DeviceKey]*model.DeviceState

	onTransition func(model.DeviceKey, model.DeviceState)
}

// NewManager constructs a Relay Manager over the given devices, applying
// commands through hw and reporting hardware health to fsm.
func NewManager(hw hardware.Adapter, fsm *failsafe.Manager, devices []model.Device, log zerolog.Logger) *Manager {
	m := &Manager{
		hw:       hw,
		log:      log.With().Str("component", "relay").Logger(),
		failsafe: fsm,
		devices:  make(map[model.DeviceKey]model.Device, len(devices)),
		state:    make(map[model.DeviceKey]*model.DeviceState, len(devices)),
	}
	for _, d := range devices {
		m.devices[d.Key] = d
		m.state[d.Key] = &model.DeviceState{
			Key:  d.Key,
			Mode: model.ModeAuto,
		}
	}
	return m
}

// OnTransition registers a callback invoked after every committed apply,
// for telemetry/tsdb append-only logging.
func (m *Manager) OnTransition(fn func(model.DeviceKey, model.DeviceState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Startup opens the hardware bus, forces every relay OFF, then restores
// each device to its persisted state (or SafeState, under
// StartupSafeStart, where that differs) per spec §4.8.
func (m *Manager) Startup(ctx context.Context, store Store, policy model.StartupPolicy, now time.Time) error {
	if err := m.hw.Open(ctx); err != nil {
		return fmt.Errorf("relay: open hardware bus: %w", err)
	}

	boards := make(map[string]struct{})
	for _, d := range m.devices {
		boards[d.Board] = struct{}{}
	}
	for board := range boards {
		if err := m.hw.CommitAll(ctx, board, 0x0000); err != nil {
			return fmt.Errorf("relay: assert all-off on board %q: %w", board, err)
		}
	}

	persisted := map[model.DeviceKey]model.DeviceState{}
	if store != nil {
		var err error
		persisted, err = store.LoadDeviceStates(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("startup: could not load persisted device state, defaulting to safe state")
			persisted = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, dev := range m.devices {
		target := dev.SafeState == model.SafeOn
		intensity := 0.0
		if ps, ok := persisted[key]; ok {
			useSafe := policy == model.StartupSafeStart && dev.SafeState != model.SafeLastKnown && target != ps.State
			if !useSafe {
				target = ps.State
				intensity = ps.IntensityPct
			}
		}

		if err := m.applyHardwareLocked(ctx, dev, target, intensity); err != nil {
			m.log.Error().Err(err).Str("device", key.String()).Msg("startup: failed to restore device state")
			continue
		}

		st := m.state[key]
		st.State = target
		st.IntensityPct = intensity
		st.LastChangeTS = now
		st.LastReason = model.ReasonStartup
		st.Seq++
		m.notify(key, *st)
	}
	return nil
}

// Apply commits a candidate command for device through the hardware
// adapter. On success, DeviceState is updated atomically and a transition
// is emitted; on failure, DeviceState is left unchanged and the failure is
// reported to the Alarm/Failsafe Manager.
func (m *Manager) Apply(ctx context.Context, cmd model.Command, now time.Time) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.devices[cmd.Device]
	if !ok {
		return Result{Err: ErrDeviceNotFound}
	}
	st := m.state[cmd.Device]

	intensity := st.IntensityPct
	if cmd.IntensityPct != nil {
		intensity = *cmd.IntensityPct
	}

	if err := m.applyHardwareLocked(ctx, dev, cmd.State, intensity); err != nil {
		m.failsafe.ReportHardwareResult(dev.Key.Zone, dev.Board, dev.Channel, false, now)
		return Result{State: *st, Err: coreerr.New(coreerr.KindHardwareIO, fmt.Sprintf("apply %s", cmd.Device), err)}
	}
	m.failsafe.ReportHardwareResult(dev.Key.Zone, dev.Board, dev.Channel, true, now)

	st.State = cmd.State
	st.IntensityPct = intensity
	st.DutyCyclePct = cmd.DutyCyclePct
	st.LastChangeTS = now
	st.LastReason = cmd.Reason
	st.LastRuleID = cmd.RuleID
	st.LastScheduleID = cmd.ScheduleID
	st.Seq++

	m.notify(cmd.Device, *st)
	return Result{State: *st}
}

func (m *Manager) applyHardwareLocked(ctx context.Context, dev model.Device, state bool, intensityPct float64) error {
	relayOn := state
	if dev.ActiveLow {
		relayOn = !state
	}
	if err := m.hw.SetRelay(ctx, dev.Board, dev.Channel, relayOn); err != nil {
		return err
	}
	if dev.Dimmable {
		if err := m.hw.SetIntensity(ctx, dev.Dimming.BoardID, dev.Dimming.DACChannel, intensityPct); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) notify(key model.DeviceKey, st model.DeviceState) {
	if m.onTransition != nil {
		m.onTransition(key, st)
	}
}

// ReadState returns the current in-memory DeviceState (spec §4.8
// read_state, O(1)).
func (m *Manager) ReadState(key model.DeviceKey) (model.DeviceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[key]
	if !ok {
		return model.DeviceState{}, false
	}
	return *st, true
}

// AllStates returns every device's state, sorted by zone then name for
// deterministic iteration (spec §5 ordering guarantee).
func (m *Manager) AllStates() []model.DeviceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DeviceState, 0, len(m.state))
	for _, st := range m.state {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Zone != out[j].Key.Zone {
			return out[i].Key.Zone.String() < out[j].Key.Zone.String()
		}
		return out[i].Key.Name < out[j].Key.Name
	})
	return out
}

// SetMode changes a device's per-device mode. When transitioning into
// manual, the current state is recorded so that a later clear without an
// explicit target can restore it (spec §4.8 set_mode).
func (m *Manager) SetMode(key model.DeviceKey, mode model.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[key]
	if !ok {
		return ErrDeviceNotFound
	}
	if mode == model.ModeManual && st.Mode != model.ModeManual {
		cur := st.State
		st.PreManualState = &cur
	}
	st.Mode = mode
	return nil
}

// Device returns the static configuration for a device.
func (m *Manager) Device(key model.DeviceKey) (model.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[key]
	return d, ok
}

// Devices returns every registered device, sorted by zone then name.
func (m *Manager) Devices() []model.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Zone != out[j].Key.Zone {
			return out[i].Key.Zone.String() < out[j].Key.Zone.String()
		}
		return out[i].Key.Name < out[j].Key.Name
	})
	return out
}
