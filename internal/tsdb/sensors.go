package tsdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// InsertSensorReading appends one ingested sample, the durable tier behind
// the Sensor Cache's DB fallback (spec §4.2 step 3).
func (d *DB) InsertSensorReading(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO sensor_readings (location, cluster, sensor_name, ts, value)
		VALUES (?, ?, ?, ?, ?)`,
		zone.Location, zone.Cluster, name, ts.UnixMilli(), value,
	)
	return err
}

// LatestSensorReading returns the most recent sample for (zone, name) no
// older than maxLookback, the Sensor Cache's last-resort tier before
// declaring a sensor missing (spec §4.2 step 3).
func (d *DB) LatestSensorReading(ctx context.Context, zone model.ZoneKey, name string, now time.Time, maxLookback time.Duration) (model.SensorReading, bool, error) {
	cutoff := now.Add(-maxLookback).UnixMilli()
	row := d.sql.QueryRowContext(ctx, `
		SELECT value, ts FROM sensor_readings
		WHERE location = ? AND cluster = ? AND sensor_name = ? AND ts >= ?
		ORDER BY ts DESC LIMIT 1`,
		zone.Location, zone.Cluster, name, cutoff)

	var value float64
	var ts int64
	if err := row.Scan(&value, &ts); err != nil {
		if err == sql.ErrNoRows {
			return model.SensorReading{}, false, nil
		}
		return model.SensorReading{}, false, err
	}
	return model.SensorReading{
		SensorName: name, Value: value, Timestamp: time.UnixMilli(ts), Source: model.SourceDB,
	}, true, nil
}
