package sensorcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

type fakeBus struct {
	live     map[string]fakeSample
	lastGood map[string]fakeSample
}

type fakeSample struct {
	value float64
	ts    time.Time
}

func newFakeBus() *fakeBus {
	return &fakeBus{live: map[string]fakeSample{}, lastGood: map[string]fakeSample{}}
}

func key(zone model.ZoneKey, name string) string { return zone.String() + "/" + name }

func (f *fakeBus) GetLiveSensor(_ context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	s, ok := f.live[key(zone, name)]
	return s.value, s.ts, ok, nil
}

func (f *fakeBus) GetLastGoodSensor(_ context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	s, ok := f.lastGood[key(zone, name)]
	return s.value, s.ts, ok, nil
}

func (f *fakeBus) SetSensor(_ context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	k := key(zone, name)
	f.live[k] = fakeSample{value, ts}
	f.lastGood[k] = fakeSample{value, ts}
	return nil
}

type fakeDB struct {
	readings map[string]model.SensorReading
}

func newFakeDB() *fakeDB { return &fakeDB{readings: map[string]model.SensorReading{}} }

func (f *fakeDB) LatestSensorReading(_ context.Context, zone model.ZoneKey, name string, now time.Time, maxLookback time.Duration) (model.SensorReading, bool, error) {
	r, ok := f.readings[key(zone, name)]
	if !ok || now.Sub(r.Timestamp) > maxLookback {
		return model.SensorReading{}, false, nil
	}
	return r, true, nil
}

func (f *fakeDB) InsertSensorReading(_ context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	f.readings[key(zone, name)] = model.SensorReading{SensorName: name, Value: value, Timestamp: ts, Source: model.SourceDB}
	return nil
}

type fakeAlarm struct {
	calls []struct {
		name  string
		fresh bool
	}
}

func (f *fakeAlarm) ReportSensor(_ model.ZoneKey, name string, fresh bool, _ time.Time) {
	f.calls = append(f.calls, struct {
		name  string
		fresh bool
	}{name, fresh})
}

var zone = model.ZoneKey{Location: "Veg", Cluster: "a"}

func TestGetReturnsLiveWithinFreshnessWindow(t *testing.T) {
	bus := newFakeBus()
	now := time.Now()
	bus.live[key(zone, "temp")] = fakeSample{22.5, now.Add(-5 * time.Second)}

	alarm := &fakeAlarm{}
	c := New(bus, nil, alarm, DefaultConfig())

	r, ok, err := c.Get(context.Background(), zone, "temp", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SourceLive, r.Source)
	assert.InDelta(t, 22.5, r.Value, 0.001)
	require.Len(t, alarm.calls, 1)
	assert.True(t, alarm.calls[0].fresh)
}

func TestGetFallsThroughToLastGoodWhenLiveStale(t *testing.T) {
	bus := newFakeBus()
	now := time.Now()
	bus.live[key(zone, "temp")] = fakeSample{22.5, now.Add(-2 * time.Minute)}
	bus.lastGood[key(zone, "temp")] = fakeSample{21.0, now.Add(-10 * time.Second)}

	c := New(bus, nil, &fakeAlarm{}, DefaultConfig())
	r, ok, err := c.Get(context.Background(), zone, "temp", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SourceLastGood, r.Source)
	assert.InDelta(t, 21.0, r.Value, 0.001)
}

func TestGetFallsThroughToDBWhenBusMisses(t *testing.T) {
	bus := newFakeBus()
	db := newFakeDB()
	now := time.Now()
	db.readings[key(zone, "co2")] = model.SensorReading{SensorName: "co2", Value: 800, Timestamp: now.Add(-2 * time.Minute)}

	c := New(bus, db, &fakeAlarm{}, DefaultConfig())
	r, ok, err := c.Get(context.Background(), zone, "co2", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SourceDB, r.Source)
	assert.InDelta(t, 800, r.Value, 0.001)
}

func TestGetReportsMissingWhenAllTiersMiss(t *testing.T) {
	bus := newFakeBus()
	alarm := &fakeAlarm{}
	c := New(bus, newFakeDB(), alarm, DefaultConfig())

	_, ok, err := c.Get(context.Background(), zone, "humidity", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, alarm.calls, 1)
	assert.False(t, alarm.calls[0].fresh)
}

func TestIngestWritesThroughBusAndDB(t *testing.T) {
	bus := newFakeBus()
	db := newFakeDB()
	c := New(bus, db, &fakeAlarm{}, DefaultConfig())

	now := time.Now()
	require.NoError(t, c.Ingest(context.Background(), zone, "temp", 23.4, now))

	_, _, ok, _ := bus.GetLiveSensor(context.Background(), zone, "temp")
	assert.True(t, ok)
	_, ok, _ = db.LatestSensorReading(context.Background(), zone, "temp", now, time.Minute)
	assert.True(t, ok)
}
