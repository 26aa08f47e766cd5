package statebus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := NewRedisBusFromClient(client, zerolog.Nop())
	return mr, bus
}

func TestSetSensorWritesThroughToLastGood(t *testing.T) {
	_, bus := setupMiniRedis(t)
	ctx := context.Background()
	zone := model.ZoneKey{Location: "Flower", Cluster: "front"}
	now := time.Now()

	require.NoError(t, bus.SetSensor(ctx, zone, "dry_bulb_f", 22.5, now))

	v, ts, ok, err := bus.GetLiveSensor(ctx, zone, "dry_bulb_f")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 22.5, v, 0.001)
	require.WithinDuration(t, now, ts, time.Millisecond)

	v, _, ok, err = bus.GetLastGoodSensor(ctx, zone, "dry_bulb_f")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 22.5, v, 0.001)
}

func TestGetLiveSensorExpiresWithTTL(t *testing.T) {
	mr, bus := setupMiniRedis(t)
	ctx := context.Background()
	zone := model.ZoneKey{Location: "Flower", Cluster: "front"}

	require.NoError(t, bus.SetSensor(ctx, zone, "dry_bulb_f", 22.5, time.Now()))
	mr.FastForward(SensorTTL + time.Second)

	_, _, ok, err := bus.GetLiveSensor(ctx, zone, "dry_bulb_f")
	require.NoError(t, err)
	require.False(t, ok)

	// Last-good has no TTL and survives.
	_, _, ok, err = bus.GetLastGoodSensor(ctx, zone, "dry_bulb_f")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPIDParamsRoundTrip(t *testing.T) {
	_, bus := setupMiniRedis(t)
	ctx := context.Background()

	p := model.PIDParameters{DeviceType: model.DeviceHeater, Kp: 25, Ki: 0.02, Kd: 0, Source: "api"}
	require.NoError(t, bus.SetPIDParams(ctx, model.DeviceHeater, p))

	got, ok, err := bus.GetPIDParams(ctx, model.DeviceHeater)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 25.0, got.Kp)
}

func TestGetPIDParamsMissing(t *testing.T) {
	_, bus := setupMiniRedis(t)
	_, ok, err := bus.GetPIDParams(context.Background(), model.DeviceFan)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetpointRoundTrip(t *testing.T) {
	_, bus := setupMiniRedis(t)
	ctx := context.Background()
	zone := model.ZoneKey{Location: "Flower", Cluster: "front"}
	heating := 25.0

	sp := model.Setpoint{Zone: zone, HeatingSetpoint: &heating}
	require.NoError(t, bus.SetSetpoint(ctx, zone, model.PhaseDay, sp))

	got, ok, err := bus.GetSetpoint(ctx, zone, model.PhaseDay)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 25.0, *got.HeatingSetpoint)
}

func TestZoneModeRoundTrip(t *testing.T) {
	_, bus := setupMiniRedis(t)
	ctx := context.Background()
	zone := model.ZoneKey{Location: "Flower", Cluster: "front"}

	require.NoError(t, bus.SetZoneMode(ctx, zone, model.ZoneMode{Zone: zone, Kind: model.ZoneFailsafe, Source: "alarm:critical"}))

	got, ok, err := bus.GetZoneMode(ctx, zone)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.ZoneFailsafe, got.Kind)
}

func TestHeartbeatAndAppendEvent(t *testing.T) {
	_, bus := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, bus.Heartbeat(ctx, "automation", time.Now()))
	require.NoError(t, bus.AppendEvent(ctx, map[string]string{"device": "heater_1", "reason": "pid"}))
}
