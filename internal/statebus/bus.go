// Package statebus implements the real-time key/value and event-stream
// layer (spec §6) backing the Sensor Cache's "live" tier and the
// operator-facing mode/setpoint/PID-parameter writes: sensor:<name>,
// pid:params:<type>, setpoint:<zone>:<phase>, mode:<zone>, component
// heartbeats, and a unified event stream. A zone's failsafe state is not
// kept on the bus.
//
// Grounded on ManuGH-xg2g's internal/cache.RedisCache: a go-redis/v9 client
// wrapped with zerolog warnings on transient failure, each call bounded by
// the client's read/write timeouts and the caller's context, generalized from a single JSON blob cache to the
// core's several typed key families plus an append-only stream.
package statebus

import (
	"context"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Bus is the real-time state bus contract (spec §6).
type Bus interface {
	// SetSensor writes a live sensor reading and write-through updates its
	// last-good companion (spec §4.2 write-through on successful live read).
	SetSensor(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error

	// GetLiveSensor returns the live reading for (zone, name), if present.
	GetLiveSensor(ctx context.Context, zone model.ZoneKey, name string) (value float64, ts time.Time, ok bool, err error)

	// GetLastGoodSensor returns the last-good reading for (zone, name).
	GetLastGoodSensor(ctx context.Context, zone model.ZoneKey, name string) (value float64, ts time.Time, ok bool, err error)

	SetPIDParams(ctx context.Context, deviceType model.DeviceType, p model.PIDParameters) error
	GetPIDParams(ctx context.Context, deviceType model.DeviceType) (model.PIDParameters, bool, error)

	SetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase, sp model.Setpoint) error
	GetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase) (model.Setpoint, bool, error)

	SetZoneMode(ctx context.Context, zone model.ZoneKey, mode model.ZoneMode) error
	GetZoneMode(ctx context.Context, zone model.ZoneKey) (model.ZoneMode, bool, error)

	Heartbeat(ctx context.Context, component string, ts time.Time) error

	// AppendEvent appends one entry to the unified event stream (spec §6
	// "unified event stream", XADD with MAXLEN).
	AppendEvent(ctx context.Context, fields map[string]string) error

	Close() error
}

// DefaultCallDeadline is the default per-call deadline for non-blocking
// state-bus calls (spec §5). RedisBus does not apply it: its calls are
// bounded by the client's 3s read/write timeouts and the caller's context.
const DefaultCallDeadline = 50 * time.Millisecond

// DefaultStreamMaxLen caps the unified event stream (spec §6).
const DefaultStreamMaxLen = 100_000
