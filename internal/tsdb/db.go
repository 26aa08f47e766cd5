// Package tsdb implements the persistent store (spec §6): schedules,
// rules, setpoints, device mappings, PID parameters, and ZoneMode are read
// from it; DeviceState transitions, automation snapshots, and alarm
// history are written to it. Grounded on Tutu-Engine-tutuengine's
// internal/infra/sqlite (modernc.org/sqlite, WAL mode, single-writer
// connection pool) and ManuGH-xg2g's internal/persistence/sqlite, whose
// migration-list-of-DDL-strings shape this package reuses for its own
// schema.
package tsdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection holding every table the control core reads
// or writes (spec §6, §3).
type DB struct {
	sql *sql.DB
}

// Open creates or opens the database file at path, enabling WAL mode and a
// busy timeout so the control worker's writes never contend indefinitely
// with an API-layer reader (spec §5: "the DB is a shared sink").
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("tsdb: create data dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tsdb: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tsdb: ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{sql: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tsdb: migrate: %w", err)
	}
	return d, nil
}

// OpenMemory opens an in-memory database for tests, still running
// migrations.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("tsdb: open in-memory sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	d := &DB{sql: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tsdb: migrate: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS device_state (
			location TEXT NOT NULL, cluster TEXT NOT NULL, device TEXT NOT NULL,
			state INTEGER NOT NULL, mode TEXT NOT NULL, intensity_pct REAL NOT NULL DEFAULT 0,
			last_change_ts INTEGER NOT NULL, last_reason TEXT NOT NULL,
			last_rule_id INTEGER, last_schedule_id INTEGER, duty_cycle_pct REAL,
			seq INTEGER NOT NULL DEFAULT 0,
			pre_manual_state INTEGER,
			PRIMARY KEY (location, cluster, device)
		)`,
		`CREATE TABLE IF NOT EXISTS control_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			location TEXT NOT NULL, cluster TEXT NOT NULL, device TEXT NOT NULL,
			ts INTEGER NOT NULL,
			old_state INTEGER NOT NULL, new_state INTEGER NOT NULL,
			reason TEXT NOT NULL, rule_id INTEGER, schedule_id INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_control_history_device_ts
			ON control_history(location, cluster, device, ts)`,
		`CREATE TABLE IF NOT EXISTS automation_state (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location TEXT NOT NULL, cluster TEXT NOT NULL, device TEXT NOT NULL,
			ts INTEGER NOT NULL,
			state INTEGER NOT NULL, mode TEXT NOT NULL, duty_cycle_pct REAL,
			pid_output REAL, rule_id INTEGER, schedule_id INTEGER, reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_automation_state_device_ts
			ON automation_state(location, cluster, device, ts)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL, location TEXT NOT NULL, cluster TEXT NOT NULL, device TEXT NOT NULL,
			day_of_week INTEGER, start_seconds INTEGER NOT NULL, end_seconds INTEGER NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			mode TEXT, target_intensity_pct REAL,
			ramp_up_seconds INTEGER NOT NULL DEFAULT 0, ramp_down_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL, enabled INTEGER NOT NULL DEFAULT 1,
			location TEXT NOT NULL, cluster TEXT NOT NULL,
			condition_sensor TEXT NOT NULL, condition_operator TEXT NOT NULL, condition_value REAL NOT NULL,
			action_device TEXT NOT NULL, action_state INTEGER NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0, schedule_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS setpoints (
			location TEXT NOT NULL, cluster TEXT NOT NULL, phase TEXT NOT NULL,
			heating_setpoint REAL, cooling_setpoint REAL, vpd REAL, co2 REAL,
			ramp_in_seconds INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (location, cluster, phase)
		)`,
		`CREATE TABLE IF NOT EXISTS pid_parameters (
			device_type TEXT NOT NULL, location TEXT NOT NULL DEFAULT '', cluster TEXT NOT NULL DEFAULT '', device TEXT NOT NULL DEFAULT '',
			kp REAL NOT NULL, ki REAL NOT NULL, kd REAL NOT NULL,
			updated_at INTEGER NOT NULL, source TEXT NOT NULL,
			PRIMARY KEY (device_type, location, cluster, device)
		)`,
		`CREATE TABLE IF NOT EXISTS zone_mode (
			location TEXT NOT NULL, cluster TEXT NOT NULL,
			kind TEXT NOT NULL, source TEXT NOT NULL, changed_at INTEGER NOT NULL,
			PRIMARY KEY (location, cluster)
		)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id TEXT PRIMARY KEY,
			location TEXT NOT NULL, cluster TEXT NOT NULL,
			class TEXT NOT NULL, severity TEXT NOT NULL, message TEXT NOT NULL,
			raised_ts INTEGER NOT NULL, acknowledged_ts INTEGER, acknowledged_by TEXT, cleared_ts INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location TEXT NOT NULL, cluster TEXT NOT NULL, sensor_name TEXT NOT NULL,
			ts INTEGER NOT NULL, value REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sensor_readings_lookup
			ON sensor_readings(location, cluster, sensor_name, ts DESC)`,
	}
	for _, m := range migrations {
		if _, err := d.sql.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
