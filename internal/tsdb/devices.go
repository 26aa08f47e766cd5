package tsdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// LoadDeviceStates implements relay.Store: it returns every persisted
// DeviceState, keyed by DeviceKey (spec §4.8 startup, R3 restart
// idempotence).
func (d *DB) LoadDeviceStates(ctx context.Context) (map[model.DeviceKey]model.DeviceState, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT location, cluster, device, state, mode, intensity_pct, last_change_ts,
		       last_reason, last_rule_id, last_schedule_id, duty_cycle_pct, seq, pre_manual_state
		FROM device_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.DeviceKey]model.DeviceState)
	for rows.Next() {
		var (
			loc, cluster, name   string
			state                int
			mode, reason         string
			intensity            float64
			changeTS             int64
			ruleID, scheduleID   sql.NullInt64
			duty                 sql.NullFloat64
			seq                  uint64
			preManual            sql.NullInt64
		)
		if err := rows.Scan(&loc, &cluster, &name, &state, &mode, &intensity, &changeTS,
			&reason, &ruleID, &scheduleID, &duty, &seq, &preManual); err != nil {
			return nil, err
		}

		key := model.DeviceKey{Zone: model.ZoneKey{Location: loc, Cluster: cluster}, Name: name}
		st := model.DeviceState{
			Key:          key,
			State:        state != 0,
			Mode:         model.Mode(mode),
			IntensityPct: intensity,
			LastChangeTS: time.UnixMilli(changeTS),
			LastReason:   model.Reason(reason),
			Seq:          seq,
		}
		if ruleID.Valid {
			v := ruleID.Int64
			st.LastRuleID = &v
		}
		if scheduleID.Valid {
			v := scheduleID.Int64
			st.LastScheduleID = &v
		}
		if duty.Valid {
			v := duty.Float64
			st.DutyCyclePct = &v
		}
		if preManual.Valid {
			v := preManual.Int64 != 0
			st.PreManualState = &v
		}
		out[key] = st
	}
	return out, rows.Err()
}

// UpsertDeviceState persists the current DeviceState (spec §3 "mutated
// only by the Relay Manager on a successful hardware apply").
func (d *DB) UpsertDeviceState(ctx context.Context, st model.DeviceState) error {
	var ruleID, scheduleID any
	if st.LastRuleID != nil {
		ruleID = *st.LastRuleID
	}
	if st.LastScheduleID != nil {
		scheduleID = *st.LastScheduleID
	}
	var duty any
	if st.DutyCyclePct != nil {
		duty = *st.DutyCyclePct
	}
	var preManual any
	if st.PreManualState != nil {
		preManual = *st.PreManualState
	}

	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO device_state (location, cluster, device, state, mode, intensity_pct,
			last_change_ts, last_reason, last_rule_id, last_schedule_id, duty_cycle_pct, seq, pre_manual_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, cluster, device) DO UPDATE SET
			state=excluded.state, mode=excluded.mode, intensity_pct=excluded.intensity_pct,
			last_change_ts=excluded.last_change_ts, last_reason=excluded.last_reason,
			last_rule_id=excluded.last_rule_id, last_schedule_id=excluded.last_schedule_id,
			duty_cycle_pct=excluded.duty_cycle_pct, seq=excluded.seq, pre_manual_state=excluded.pre_manual_state`,
		st.Key.Zone.Location, st.Key.Zone.Cluster, st.Key.Name,
		boolToInt(st.State), string(st.Mode), st.IntensityPct,
		st.LastChangeTS.UnixMilli(), string(st.LastReason), ruleID, scheduleID, duty, st.Seq, preManual,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
