package sensorcache

import (
	"context"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Bus is the subset of statebus.Bus the cache reads and writes through.
type Bus interface {
	GetLiveSensor(ctx context.Context, zone model.ZoneKey, name string) (value float64, ts time.Time, ok bool, err error)
	GetLastGoodSensor(ctx context.Context, zone model.ZoneKey, name string) (value float64, ts time.Time, ok bool, err error)
	SetSensor(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error
}

// DBSource is the durable fallback tier (implemented by internal/tsdb).
type DBSource interface {
	LatestSensorReading(ctx context.Context, zone model.ZoneKey, name string, now time.Time, maxLookback time.Duration) (model.SensorReading, bool, error)
	InsertSensorReading(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error
}

// AlarmReporter receives per-sensor freshness so the Alarm Manager can
// escalate sensor_missing / sensor_loss (spec §4.9).
type AlarmReporter interface {
	ReportSensor(zone model.ZoneKey, sensorName string, fresh bool, now time.Time)
}

// Config tunes the cache's tier windows (spec §4.2, defaults match §6).
type Config struct {
	FreshnessWindow    time.Duration // tier 1: live reading must be this recent
	LastGoodHoldPeriod time.Duration // tier 2: last-good reading must be this recent
	MaxDBLookback      time.Duration // tier 3: DB point must be this recent
}

// DefaultConfig returns spec-default tier windows.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow:    30 * time.Second,
		LastGoodHoldPeriod: 30 * time.Second,
		MaxDBLookback:      5 * time.Minute,
	}
}

// Cache is the Sensor Cache (C2): read-only from the Control Engine's
// perspective (spec §4.2 "Contract"). Reads write nothing; Ingest writes a
// sample to the bus (whose SetSensor also updates last-good) and to the DB
// fallback tier.
type Cache struct {
	bus   Bus
	db    DBSource
	alarm AlarmReporter
	cfg   Config
}

// New constructs a Cache. db may be nil, in which case the DB fallback tier
// is skipped (a missing sensor reported directly after last-good misses).
func New(bus Bus, db DBSource, alarm AlarmReporter, cfg Config) *Cache {
	return &Cache{bus: bus, db: db, alarm: alarm, cfg: cfg}
}

// Get resolves (zone, sensorName) through the three tiers in spec §4.2
// order, reporting freshness to the Alarm Manager and returning ok=false
// only once every tier has missed.
func (c *Cache) Get(ctx context.Context, zone model.ZoneKey, sensorName string, now time.Time) (model.SensorReading, bool, error) {
	if v, ts, ok, err := c.bus.GetLiveSensor(ctx, zone, sensorName); err == nil && ok && now.Sub(ts) <= c.cfg.FreshnessWindow {
		r := model.SensorReading{SensorName: sensorName, Value: v, Timestamp: ts, Source: model.SourceLive}
		c.reportFresh(zone, sensorName, now)
		return r, true, nil
	}

	if v, ts, ok, err := c.bus.GetLastGoodSensor(ctx, zone, sensorName); err == nil && ok && now.Sub(ts) <= c.cfg.LastGoodHoldPeriod {
		r := model.SensorReading{SensorName: sensorName, Value: v, Timestamp: ts, Source: model.SourceLastGood}
		c.reportFresh(zone, sensorName, now)
		return r, true, nil
	}

	if c.db != nil {
		if r, ok, err := c.db.LatestSensorReading(ctx, zone, sensorName, now, c.cfg.MaxDBLookback); err == nil && ok {
			r.Source = model.SourceDB
			c.reportFresh(zone, sensorName, now)
			return r, true, nil
		}
	}

	c.reportMissing(zone, sensorName, now)
	return model.SensorReading{}, false, nil
}

// Ingest records a freshly-sampled value: it writes live (which write-throughs
// to last-good on the bus side) and appends to the durable tier.
func (c *Cache) Ingest(ctx context.Context, zone model.ZoneKey, sensorName string, value float64, ts time.Time) error {
	if err := c.bus.SetSensor(ctx, zone, sensorName, value, ts); err != nil {
		return err
	}
	if c.db != nil {
		return c.db.InsertSensorReading(ctx, zone, sensorName, value, ts)
	}
	return nil
}

// Value implements pkg/rules.SensorLookup: it returns the sensor's current
// value and whether it is fresh enough to act on (spec I6: live or
// last_good only — a DB-tier fallback value is readable but never drives a
// rule or PID decision). Like Get, it reports freshness to the Alarm
// Manager.
func (c *Cache) Value(zone model.ZoneKey, sensorName string, now time.Time) (value float64, fresh bool) {
	ctx := context.Background()
	if v, ts, ok, err := c.bus.GetLiveSensor(ctx, zone, sensorName); err == nil && ok && now.Sub(ts) <= c.cfg.FreshnessWindow {
		c.reportFresh(zone, sensorName, now)
		return v, true
	}
	if v, ts, ok, err := c.bus.GetLastGoodSensor(ctx, zone, sensorName); err == nil && ok && now.Sub(ts) <= c.cfg.LastGoodHoldPeriod {
		c.reportFresh(zone, sensorName, now)
		return v, true
	}
	c.reportMissing(zone, sensorName, now)
	return 0, false
}

func (c *Cache) reportFresh(zone model.ZoneKey, name string, now time.Time) {
	if c.alarm != nil {
		c.alarm.ReportSensor(zone, name, true, now)
	}
}

func (c *Cache) reportMissing(zone model.ZoneKey, name string, now time.Time) {
	if c.alarm != nil {
		c.alarm.ReportSensor(zone, name, false, now)
	}
}
