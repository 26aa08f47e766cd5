// Package testutil holds hand-written fakes shared across the core's
// package tests, grounded on mash-go's internal/testharness/mock
// convention: small, explicit fakes kept next to the interfaces they
// stand in for instead of a generated-mock dependency (SPEC_FULL.md §10).
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Phoenix5595/cea-automation-core/internal/persistence"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// FakeBus is an in-memory statebus.Bus. Construct it with NewFakeBus: the
// zero value's maps are nil, so its write methods panic.
type FakeBus struct {
	mu sync.Mutex

	live     map[string]sample
	lastGood map[string]sample
	pid      map[model.DeviceType]model.PIDParameters
	setpoint map[string]model.Setpoint
	zoneMode map[model.ZoneKey]model.ZoneMode
	events   []map[string]string

	// FailWrites, when set, makes every write method except Heartbeat
	// return err.
	FailWrites bool
	err        error
}

type sample struct {
	value float64
	ts    time.Time
}

// NewFakeBus constructs an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		live:     map[string]sample{},
		lastGood: map[string]sample{},
		pid:      map[model.DeviceType]model.PIDParameters{},
		setpoint: map[string]model.Setpoint{},
		zoneMode: map[model.ZoneKey]model.ZoneMode{},
	}
}

// SetFailure makes subsequent writes fail with err (nil restores success).
func (f *FakeBus) SetFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailWrites = err != nil
	f.err = err
}

func sensorKey(zone model.ZoneKey, name string) string { return zone.String() + "/" + name }
func setpointKey(zone model.ZoneKey, phase model.ClimatePhase) string {
	return zone.String() + "/" + string(phase)
}

func (f *FakeBus) SetSensor(_ context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return f.err
	}
	k := sensorKey(zone, name)
	f.live[k] = sample{value, ts}
	f.lastGood[k] = sample{value, ts}
	return nil
}

func (f *FakeBus) GetLiveSensor(_ context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.live[sensorKey(zone, name)]
	return s.value, s.ts, ok, nil
}

func (f *FakeBus) GetLastGoodSensor(_ context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.lastGood[sensorKey(zone, name)]
	return s.value, s.ts, ok, nil
}

func (f *FakeBus) SetPIDParams(_ context.Context, deviceType model.DeviceType, p model.PIDParameters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return f.err
	}
	f.pid[deviceType] = p
	return nil
}

func (f *FakeBus) GetPIDParams(_ context.Context, deviceType model.DeviceType) (model.PIDParameters, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pid[deviceType]
	return p, ok, nil
}

func (f *FakeBus) SetSetpoint(_ context.Context, zone model.ZoneKey, phase model.ClimatePhase, sp model.Setpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return f.err
	}
	f.setpoint[setpointKey(zone, phase)] = sp
	return nil
}

func (f *FakeBus) GetSetpoint(_ context.Context, zone model.ZoneKey, phase model.ClimatePhase) (model.Setpoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.setpoint[setpointKey(zone, phase)]
	return sp, ok, nil
}

func (f *FakeBus) SetZoneMode(_ context.Context, zone model.ZoneKey, mode model.ZoneMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return f.err
	}
	f.zoneMode[zone] = mode
	return nil
}

func (f *FakeBus) GetZoneMode(_ context.Context, zone model.ZoneKey) (model.ZoneMode, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.zoneMode[zone]
	return m, ok, nil
}

func (f *FakeBus) Heartbeat(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *FakeBus) AppendEvent(_ context.Context, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return f.err
	}
	f.events = append(f.events, fields)
	return nil
}

// Events returns every event appended so far, for assertions.
func (f *FakeBus) Events() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(f.events))
	copy(out, f.events)
	return out
}

func (f *FakeBus) Close() error { return nil }

// FakeSink is an in-memory persistence.Sink recording every appended row.
type FakeSink struct {
	mu           sync.Mutex
	Transitions  []persistence.Transition
	Snapshots    []persistence.AutomationSnapshot
	FailAppend   bool
}

// NewFakeSink constructs an empty FakeSink.
func NewFakeSink() *FakeSink { return &FakeSink{} }

func (f *FakeSink) AppendControlHistory(_ context.Context, t persistence.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAppend {
		return context.DeadlineExceeded
	}
	f.Transitions = append(f.Transitions, t)
	return nil
}

func (f *FakeSink) AppendAutomationState(_ context.Context, s persistence.AutomationSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAppend {
		return context.DeadlineExceeded
	}
	f.Snapshots = append(f.Snapshots, s)
	return nil
}

// Count returns the number of transitions and snapshots recorded so far.
func (f *FakeSink) Count() (transitions, snapshots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transitions), len(f.Snapshots)
}
