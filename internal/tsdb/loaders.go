package tsdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// LoadSchedules returns every configured schedule (spec §6 "the core reads
// schedules ... from" the persistent store).
func (d *DB) LoadSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, name, location, cluster, device, day_of_week, start_seconds, end_seconds,
		       enabled, mode, target_intensity_pct, ramp_up_seconds, ramp_down_seconds
		FROM schedules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var (
			id                       int64
			name, loc, cluster, dev  string
			dow                      sql.NullInt64
			startSec, endSec         int64
			enabled                  int
			mode                     sql.NullString
			targetIntensity          sql.NullFloat64
			rampUpSec, rampDownSec   int64
		)
		if err := rows.Scan(&id, &name, &loc, &cluster, &dev, &dow, &startSec, &endSec,
			&enabled, &mode, &targetIntensity, &rampUpSec, &rampDownSec); err != nil {
			return nil, err
		}

		s := model.Schedule{
			ID:        id,
			Name:      name,
			Device:    model.DeviceKey{Zone: model.ZoneKey{Location: loc, Cluster: cluster}, Name: dev},
			StartTime: time.Duration(startSec) * time.Second,
			EndTime:   time.Duration(endSec) * time.Second,
			Enabled:   enabled != 0,
			RampUpDuration:   time.Duration(rampUpSec) * time.Second,
			RampDownDuration: time.Duration(rampDownSec) * time.Second,
		}
		if dow.Valid {
			wd := time.Weekday(dow.Int64)
			s.DayOfWeek = &wd
		}
		if mode.Valid {
			ph := model.ClimatePhase(mode.String)
			s.Mode = &ph
		}
		if targetIntensity.Valid {
			v := targetIntensity.Float64
			s.TargetIntensityPct = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertSchedule inserts or updates a schedule (spec §6 upsert_schedule). A
// zero ID inserts a new row and returns the assigned id; a non-zero ID
// updates the existing row.
func (d *DB) UpsertSchedule(ctx context.Context, s model.Schedule) (int64, error) {
	var dow any
	if s.DayOfWeek != nil {
		dow = int(*s.DayOfWeek)
	}
	var mode any
	if s.Mode != nil {
		mode = string(*s.Mode)
	}
	var targetIntensity any
	if s.TargetIntensityPct != nil {
		targetIntensity = *s.TargetIntensityPct
	}

	if s.ID == 0 {
		res, err := d.sql.ExecContext(ctx, `
			INSERT INTO schedules (name, location, cluster, device, day_of_week, start_seconds, end_seconds,
				enabled, mode, target_intensity_pct, ramp_up_seconds, ramp_down_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Name, s.Device.Zone.Location, s.Device.Zone.Cluster, s.Device.Name, dow,
			int64(s.StartTime/time.Second), int64(s.EndTime/time.Second), boolToInt(s.Enabled),
			mode, targetIntensity, int64(s.RampUpDuration/time.Second), int64(s.RampDownDuration/time.Second),
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	_, err := d.sql.ExecContext(ctx, `
		UPDATE schedules SET name=?, location=?, cluster=?, device=?, day_of_week=?, start_seconds=?, end_seconds=?,
			enabled=?, mode=?, target_intensity_pct=?, ramp_up_seconds=?, ramp_down_seconds=?
		WHERE id=?`,
		s.Name, s.Device.Zone.Location, s.Device.Zone.Cluster, s.Device.Name, dow,
		int64(s.StartTime/time.Second), int64(s.EndTime/time.Second), boolToInt(s.Enabled),
		mode, targetIntensity, int64(s.RampUpDuration/time.Second), int64(s.RampDownDuration/time.Second),
		s.ID,
	)
	return s.ID, err
}

// UpsertRule inserts or updates a rule (spec §6 upsert_rule). A zero ID
// inserts a new row and returns the assigned id.
func (d *DB) UpsertRule(ctx context.Context, r model.Rule) (int64, error) {
	var scheduleID any
	if r.ScheduleID != nil {
		scheduleID = *r.ScheduleID
	}

	if r.ID == 0 {
		res, err := d.sql.ExecContext(ctx, `
			INSERT INTO rules (name, enabled, location, cluster, condition_sensor, condition_operator,
				condition_value, action_device, action_state, priority, schedule_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Name, boolToInt(r.Enabled), r.Zone.Location, r.Zone.Cluster, r.ConditionSensor,
			string(r.ConditionOperator), r.ConditionValue, r.ActionDevice, boolToInt(r.ActionState),
			r.Priority, scheduleID,
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	_, err := d.sql.ExecContext(ctx, `
		UPDATE rules SET name=?, enabled=?, location=?, cluster=?, condition_sensor=?, condition_operator=?,
			condition_value=?, action_device=?, action_state=?, priority=?, schedule_id=?
		WHERE id=?`,
		r.Name, boolToInt(r.Enabled), r.Zone.Location, r.Zone.Cluster, r.ConditionSensor,
		string(r.ConditionOperator), r.ConditionValue, r.ActionDevice, boolToInt(r.ActionState),
		r.Priority, scheduleID, r.ID,
	)
	return r.ID, err
}

// LoadRules returns every configured rule.
func (d *DB) LoadRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT id, name, enabled, location, cluster, condition_sensor, condition_operator,
		       condition_value, action_device, action_state, priority, schedule_id
		FROM rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var (
			id                      int64
			name, loc, cluster      string
			enabled                 int
			sensor, op, actionDev   string
			value                   float64
			actionState             int
			priority                int
			scheduleID              sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &enabled, &loc, &cluster, &sensor, &op, &value,
			&actionDev, &actionState, &priority, &scheduleID); err != nil {
			return nil, err
		}
		r := model.Rule{
			ID:                id,
			Name:              name,
			Enabled:           enabled != 0,
			Zone:              model.ZoneKey{Location: loc, Cluster: cluster},
			ConditionSensor:   sensor,
			ConditionOperator: model.CompareOperator(op),
			ConditionValue:    value,
			ActionDevice:      actionDev,
			ActionState:       actionState != 0,
			Priority:          priority,
		}
		if scheduleID.Valid {
			v := scheduleID.Int64
			r.ScheduleID = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadSetpoint returns the persisted setpoint for (zone, phase), the DB
// fallback tier for the operator-facing contract and the climate engine's
// config load (spec §3 Setpoint, §6).
func (d *DB) LoadSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase) (model.Setpoint, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT heating_setpoint, cooling_setpoint, vpd, co2, ramp_in_seconds
		FROM setpoints WHERE location = ? AND cluster = ? AND phase = ?`,
		zone.Location, zone.Cluster, string(phase))

	var heating, cooling, vpd, co2 sql.NullFloat64
	var rampSec int64
	if err := row.Scan(&heating, &cooling, &vpd, &co2, &rampSec); err != nil {
		if err == sql.ErrNoRows {
			return model.Setpoint{}, false, nil
		}
		return model.Setpoint{}, false, err
	}

	ph := phase
	sp := model.Setpoint{Zone: zone, Phase: &ph, RampInDuration: time.Duration(rampSec) * time.Second}
	if heating.Valid {
		v := heating.Float64
		sp.HeatingSetpoint = &v
	}
	if cooling.Valid {
		v := cooling.Float64
		sp.CoolingSetpoint = &v
	}
	if vpd.Valid {
		v := vpd.Float64
		sp.VPD = &v
	}
	if co2.Valid {
		v := co2.Float64
		sp.CO2 = &v
	}
	return sp, true, nil
}

// UpsertSetpoint writes a validated setpoint (spec §6 upsert_setpoint, R1).
func (d *DB) UpsertSetpoint(ctx context.Context, sp model.Setpoint) error {
	var phase string
	if sp.Phase != nil {
		phase = string(*sp.Phase)
	}
	var heating, cooling, vpd, co2 any
	if sp.HeatingSetpoint != nil {
		heating = *sp.HeatingSetpoint
	}
	if sp.CoolingSetpoint != nil {
		cooling = *sp.CoolingSetpoint
	}
	if sp.VPD != nil {
		vpd = *sp.VPD
	}
	if sp.CO2 != nil {
		co2 = *sp.CO2
	}

	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO setpoints (location, cluster, phase, heating_setpoint, cooling_setpoint, vpd, co2, ramp_in_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, cluster, phase) DO UPDATE SET
			heating_setpoint=excluded.heating_setpoint, cooling_setpoint=excluded.cooling_setpoint,
			vpd=excluded.vpd, co2=excluded.co2, ramp_in_seconds=excluded.ramp_in_seconds`,
		sp.Zone.Location, sp.Zone.Cluster, phase, heating, cooling, vpd, co2,
		int64(sp.RampInDuration/time.Second),
	)
	return err
}

// LoadPIDParams returns the persisted gains for a device type, the DB
// fallback tier behind the Redis-cached pid:params:<type> key (spec §6).
func (d *DB) LoadPIDParams(ctx context.Context, dt model.DeviceType) (model.PIDParameters, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT kp, ki, kd, updated_at, source FROM pid_parameters
		WHERE device_type = ? AND location = '' AND cluster = '' AND device = ''`, string(dt))

	var kp, ki, kd float64
	var updatedAt int64
	var source string
	if err := row.Scan(&kp, &ki, &kd, &updatedAt, &source); err != nil {
		if err == sql.ErrNoRows {
			return model.PIDParameters{}, false, nil
		}
		return model.PIDParameters{}, false, err
	}
	return model.PIDParameters{
		DeviceType: dt, Kp: kp, Ki: ki, Kd: kd,
		UpdatedAt: time.UnixMilli(updatedAt), Source: source,
	}, true, nil
}

// UpsertPIDParams writes validated gains for a device type (spec §6
// set_pid_params).
func (d *DB) UpsertPIDParams(ctx context.Context, p model.PIDParameters) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO pid_parameters (device_type, location, cluster, device, kp, ki, kd, updated_at, source)
		VALUES (?, '', '', '', ?, ?, ?, ?, ?)
		ON CONFLICT(device_type, location, cluster, device) DO UPDATE SET
			kp=excluded.kp, ki=excluded.ki, kd=excluded.kd, updated_at=excluded.updated_at, source=excluded.source`,
		string(p.DeviceType), p.Kp, p.Ki, p.Kd, p.UpdatedAt.UnixMilli(), p.Source,
	)
	return err
}

// LoadZoneMode returns the persisted ZoneMode for a zone.
func (d *DB) LoadZoneMode(ctx context.Context, zone model.ZoneKey) (model.ZoneMode, bool, error) {
	row := d.sql.QueryRowContext(ctx, `
		SELECT kind, source, changed_at FROM zone_mode WHERE location = ? AND cluster = ?`,
		zone.Location, zone.Cluster)

	var kind, source string
	var changedAt int64
	if err := row.Scan(&kind, &source, &changedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.ZoneMode{}, false, nil
		}
		return model.ZoneMode{}, false, err
	}
	return model.ZoneMode{
		Zone: zone, Kind: model.ZoneModeKind(kind), Source: source, ChangedAt: time.UnixMilli(changedAt),
	}, true, nil
}

// UpsertZoneMode persists a ZoneMode transition.
func (d *DB) UpsertZoneMode(ctx context.Context, zm model.ZoneMode) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO zone_mode (location, cluster, kind, source, changed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location, cluster) DO UPDATE SET
			kind=excluded.kind, source=excluded.source, changed_at=excluded.changed_at`,
		zm.Zone.Location, zm.Zone.Cluster, string(zm.Kind), zm.Source, zm.ChangedAt.UnixMilli(),
	)
	return err
}
