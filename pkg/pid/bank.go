package pid

import (
	"sort"
	"sync"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// DefaultRateLimit is the spec §4.3/§6 default:
// control.rate_limit.pid_params_per_device_type_seconds.
const DefaultRateLimit = 5 * time.Second

type pendingUpdate struct {
	params    model.PIDParameters
	coalesced int
}

// Bank owns every per-device, per-setpoint-kind Controller, and the
// rate-limited, coalescing reload of per-device-type gains (spec §4.3).
type Bank struct {
	mu sync.Mutex

	rateLimit time.Duration

	controllers map[model.DeviceKey]map[string]*Controller
	current     map[model.DeviceType]model.PIDParameters
	pending     map[model.DeviceType]*pendingUpdate
	lastApplied map[model.DeviceType]time.Time

	coalescedTotal map[model.DeviceType]int
}

// NewBank creates an empty bank with the given per-device-type reload rate
// limit (0 selects DefaultRateLimit).
func NewBank(rateLimit time.Duration) *Bank {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Bank{
		rateLimit:      rateLimit,
		controllers:    make(map[model.DeviceKey]map[string]*Controller),
		current:        make(map[model.DeviceType]model.PIDParameters),
		pending:        make(map[model.DeviceType]*pendingUpdate),
		lastApplied:    make(map[model.DeviceType]time.Time),
		coalescedTotal: make(map[model.DeviceType]int),
	}
}

// SeedDefaults installs initial gains for a device type without going
// through the rate limiter (used at startup load).
func (b *Bank) SeedDefaults(dt model.DeviceType, p model.PIDParameters, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current[dt] = p
	b.lastApplied[dt] = now
}

// RequestParams queues a new (kp, ki, kd) for a device type (spec §6
// set_pid_params / pid:params:<device_type>). If called again inside the
// rate-limit window, the previous pending update is discarded (newest
// wins) and the coalesce counter increments.
func (b *Bank) RequestParams(dt model.DeviceType, p model.PIDParameters, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.pending[dt]; ok {
		existing.params = p
		existing.coalesced++
		b.coalescedTotal[dt]++
		return
	}
	b.pending[dt] = &pendingUpdate{params: p}
}

// Tick applies any pending parameter update whose device type's rate-limit
// window has elapsed, and propagates the new gains to every live
// controller of that device type. Call once per control tick, before
// computing outputs (spec §4.3 "between ticks ... update atomically at the
// start of the next tick").
func (b *Bank) Tick(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for dt, upd := range b.pending {
		last, seen := b.lastApplied[dt]
		if seen && now.Sub(last) < b.rateLimit {
			continue
		}
		b.current[dt] = upd.params
		b.lastApplied[dt] = now
		delete(b.pending, dt)

		for _, kinds := range b.controllers {
			for _, c := range kinds {
				if c.deviceType == string(dt) {
					c.SetGains(upd.params.Kp, upd.params.Ki, upd.params.Kd)
				}
			}
		}
	}
}

// CoalescedCount reports how many pending updates for dt were discarded in
// favor of a newer one before being applied (telemetry, spec §12).
func (b *Bank) CoalescedCount(dt model.DeviceType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coalescedTotal[dt]
}

// controllerFor returns (creating if necessary) the controller for
// (device, setpointKind), seeded from the device type's current gains.
func (b *Bank) controllerFor(device model.DeviceKey, deviceType model.DeviceType, setpointKind string) *Controller {
	kinds, ok := b.controllers[device]
	if !ok {
		kinds = make(map[string]*Controller)
		b.controllers[device] = kinds
	}
	c, ok := kinds[setpointKind]
	if !ok {
		p := b.current[deviceType]
		c = NewController(p.Kp, p.Ki, p.Kd)
		c.deviceType = string(deviceType)
		kinds[setpointKind] = c
	}
	return c
}

// Measurement pairs a sensor value with whether it is currently fresh
// enough to act on (spec I6).
type Measurement struct {
	Value float64
	Fresh bool
}

// Candidate is one priority-ranked PID input for a multi-setpoint device
// (spec §4.3 "Multi-setpoint priority (fans)").
type Candidate struct {
	SetpointKind string
	Priority     int // lower wins
	Setpoint     float64
	Measurement  Measurement
}

// ComputeDevice evaluates every candidate setpoint for device (sorted by
// priority, ties broken by setpoint-kind name for determinism), selects the
// highest-priority one whose sensor is fresh and whose error exceeds
// deadband, steps only that controller, and leaves the others frozen. It
// returns the 0-100% output, the winning setpoint kind, and whether any
// candidate qualified.
func (b *Bank) ComputeDevice(device model.DeviceKey, deviceType model.DeviceType, candidates []Candidate, now time.Time, deadband float64, maxDelta time.Duration) (output float64, kind string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].SetpointKind < sorted[j].SetpointKind
	})

	winnerIdx := -1
	for i, cand := range sorted {
		if !cand.Measurement.Fresh {
			continue
		}
		err := cand.Setpoint - cand.Measurement.Value
		if absf(err) > deadband {
			winnerIdx = i
			break
		}
	}

	for i, cand := range sorted {
		c := b.controllerFor(device, deviceType, cand.SetpointKind)
		if i == winnerIdx {
			output = c.Step(cand.Setpoint, cand.Measurement.Value, now, true, maxDelta)
			kind = cand.SetpointKind
			ok = true
		} else {
			// Frozen: not fresh enough to act on, or not the winner.
			c.Step(cand.Setpoint, cand.Measurement.Value, now, false, maxDelta)
		}
	}
	return output, kind, ok
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
