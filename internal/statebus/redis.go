package statebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Key TTLs (spec §6): sensor keys expire in 10s, PID params in 300s.
// Nothing here reloads an expired key from the DB; the sensor cache's Get
// falls back to its DB tier on a miss.
const (
	SensorTTL    = 10 * time.Second
	PIDParamsTTL = 300 * time.Second
	HeartbeatTTL = 10 * time.Second
)

// RedisConfig configures the connection (spec §6 state bus).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBus is a go-redis/v9-backed Bus (spec §6), grounded on
// ManuGH-xg2g's internal/cache.RedisCache: one *redis.Client whose 3s
// read/write timeouts bound each call, and zerolog warnings (never panics) on
// transient failure so a single unreachable call degrades to the caller's
// fallback path instead of aborting the tick (spec §5 suspension points).
type RedisBus struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisBus dials Redis and verifies connectivity with a bounded ping.
func NewRedisBus(cfg RedisConfig, log zerolog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("statebus: redis connection failed: %w", err)
	}

	return &RedisBus{client: client, log: log.With().Str("component", "statebus").Logger()}, nil
}

// NewRedisBusFromClient wraps an already-constructed client (tests use this
// with a miniredis-backed client).
func NewRedisBusFromClient(client *redis.Client, log zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, log: log.With().Str("component", "statebus").Logger()}
}

func liveKey(zone model.ZoneKey, name string) string {
	return fmt.Sprintf("sensor:%s:%s", zone, name)
}

func liveTSKey(zone model.ZoneKey, name string) string {
	return liveKey(zone, name) + ":ts"
}

func lastGoodKey(zone model.ZoneKey, name string) string {
	return fmt.Sprintf("lastgood:%s:%s", zone, name)
}

func lastGoodTSKey(zone model.ZoneKey, name string) string {
	return lastGoodKey(zone, name) + ":ts"
}

func pidParamsKey(dt model.DeviceType) string { return fmt.Sprintf("pid:params:%s", dt) }

func setpointKey(zone model.ZoneKey, phase model.ClimatePhase) string {
	return fmt.Sprintf("setpoint:%s:%s", zone, phase)
}

func modeKey(zone model.ZoneKey) string     { return fmt.Sprintf("mode:%s", zone) }
func heartbeatKey(component string) string { return fmt.Sprintf("heartbeat:%s", component) }

const eventStreamKey = "ceacore:events"

// SetSensor writes a live sensor reading and write-through updates its
// last-good companion (spec §4.2).
func (b *RedisBus) SetSensor(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	pipe := b.client.Pipeline()
	pipe.Set(ctx, liveKey(zone, name), strconv.FormatFloat(value, 'f', -1, 64), SensorTTL)
	pipe.Set(ctx, liveTSKey(zone, name), ts.UnixMilli(), SensorTTL)
	pipe.Set(ctx, lastGoodKey(zone, name), strconv.FormatFloat(value, 'f', -1, 64), 0)
	pipe.Set(ctx, lastGoodTSKey(zone, name), ts.UnixMilli(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		b.log.Warn().Err(err).Str("zone", zone.String()).Str("sensor", name).Msg("set sensor failed")
		return err
	}
	return nil
}

func (b *RedisBus) readValueTS(ctx context.Context, valueKey, tsKey string) (float64, time.Time, bool, error) {
	pipe := b.client.Pipeline()
	valCmd := pipe.Get(ctx, valueKey)
	tsCmd := pipe.Get(ctx, tsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, err
	}

	valStr, err := valCmd.Result()
	if err == redis.Nil {
		return 0, time.Time{}, false, nil
	} else if err != nil {
		return 0, time.Time{}, false, err
	}
	tsStr, err := tsCmd.Result()
	if err == redis.Nil {
		return 0, time.Time{}, false, nil
	} else if err != nil {
		return 0, time.Time{}, false, err
	}

	value, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("statebus: parse value %q: %w", valStr, err)
	}
	ms, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("statebus: parse ts %q: %w", tsStr, err)
	}
	return value, time.UnixMilli(ms), true, nil
}

// GetLiveSensor returns the live reading for (zone, name), if present.
func (b *RedisBus) GetLiveSensor(ctx context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	v, ts, ok, err := b.readValueTS(ctx, liveKey(zone, name), liveTSKey(zone, name))
	if err != nil {
		b.log.Warn().Err(err).Str("sensor", name).Msg("get live sensor failed")
	}
	return v, ts, ok, err
}

// GetLastGoodSensor returns the last-good reading for (zone, name).
func (b *RedisBus) GetLastGoodSensor(ctx context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	v, ts, ok, err := b.readValueTS(ctx, lastGoodKey(zone, name), lastGoodTSKey(zone, name))
	if err != nil {
		b.log.Warn().Err(err).Str("sensor", name).Msg("get last-good sensor failed")
	}
	return v, ts, ok, err
}

// SetPIDParams writes the current gains for a device type with the spec
// §6 300s TTL.
func (b *RedisBus) SetPIDParams(ctx context.Context, dt model.DeviceType, p model.PIDParameters) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, pidParamsKey(dt), data, PIDParamsTTL).Err(); err != nil {
		b.log.Warn().Err(err).Str("device_type", string(dt)).Msg("set pid params failed")
		return err
	}
	return nil
}

// GetPIDParams reads the current gains for a device type.
func (b *RedisBus) GetPIDParams(ctx context.Context, dt model.DeviceType) (model.PIDParameters, bool, error) {
	data, err := b.client.Get(ctx, pidParamsKey(dt)).Bytes()
	if err == redis.Nil {
		return model.PIDParameters{}, false, nil
	}
	if err != nil {
		b.log.Warn().Err(err).Str("device_type", string(dt)).Msg("get pid params failed")
		return model.PIDParameters{}, false, err
	}
	var p model.PIDParameters
	if err := json.Unmarshal(data, &p); err != nil {
		return model.PIDParameters{}, false, err
	}
	return p, true, nil
}

// SetSetpoint writes a zone/phase setpoint tuple.
func (b *RedisBus) SetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase, sp model.Setpoint) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, setpointKey(zone, phase), data, 0).Err(); err != nil {
		b.log.Warn().Err(err).Str("zone", zone.String()).Msg("set setpoint failed")
		return err
	}
	return nil
}

// GetSetpoint reads a zone/phase setpoint tuple.
func (b *RedisBus) GetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase) (model.Setpoint, bool, error) {
	data, err := b.client.Get(ctx, setpointKey(zone, phase)).Bytes()
	if err == redis.Nil {
		return model.Setpoint{}, false, nil
	}
	if err != nil {
		b.log.Warn().Err(err).Str("zone", zone.String()).Msg("get setpoint failed")
		return model.Setpoint{}, false, err
	}
	var sp model.Setpoint
	if err := json.Unmarshal(data, &sp); err != nil {
		return model.Setpoint{}, false, err
	}
	return sp, true, nil
}

// SetZoneMode writes the current ZoneMode.
func (b *RedisBus) SetZoneMode(ctx context.Context, zone model.ZoneKey, mode model.ZoneMode) error {
	data, err := json.Marshal(mode)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, modeKey(zone), data, 0).Err(); err != nil {
		b.log.Warn().Err(err).Str("zone", zone.String()).Msg("set zone mode failed")
		return err
	}
	return nil
}

// GetZoneMode reads the current ZoneMode.
func (b *RedisBus) GetZoneMode(ctx context.Context, zone model.ZoneKey) (model.ZoneMode, bool, error) {
	data, err := b.client.Get(ctx, modeKey(zone)).Bytes()
	if err == redis.Nil {
		return model.ZoneMode{}, false, nil
	}
	if err != nil {
		b.log.Warn().Err(err).Str("zone", zone.String()).Msg("get zone mode failed")
		return model.ZoneMode{}, false, err
	}
	var zm model.ZoneMode
	if err := json.Unmarshal(data, &zm); err != nil {
		return model.ZoneMode{}, false, err
	}
	return zm, true, nil
}

// Heartbeat writes a component liveness marker with a 10s TTL (spec §6).
func (b *RedisBus) Heartbeat(ctx context.Context, component string, ts time.Time) error {
	if err := b.client.Set(ctx, heartbeatKey(component), ts.UnixMilli(), HeartbeatTTL).Err(); err != nil {
		b.log.Warn().Err(err).Str("component", component).Msg("heartbeat write failed")
		return err
	}
	return nil
}

// AppendEvent appends one entry to the unified event stream, trimmed to
// DefaultStreamMaxLen (spec §6 "MAXLEN ~= 100k").
func (b *RedisBus) AppendEvent(ctx context.Context, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		MaxLen: DefaultStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		b.log.Warn().Err(err).Msg("append event failed")
	}
	return err
}

// Close releases the underlying client connection.
func (b *RedisBus) Close() error { return b.client.Close() }
