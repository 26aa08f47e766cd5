package tsdb

import (
	"context"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// InsertAlarm persists a newly-raised alarm, wired from
// failsafe.Manager.OnAlarm (spec §3 Alarm, §4.9).
func (d *DB) InsertAlarm(ctx context.Context, a model.Alarm) error {
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO alarms (id, location, cluster, class, severity, message, raised_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET severity=excluded.severity, message=excluded.message`,
		a.ID, a.Zone.Location, a.Zone.Cluster, string(a.Class), string(a.Severity), a.Message, a.RaisedTS.UnixMilli(),
	)
	return err
}

// MarkAlarmCleared records the clear timestamp for a previously raised
// alarm, wired from failsafe.Manager.OnAlarm(raised=false).
func (d *DB) MarkAlarmCleared(ctx context.Context, id string, clearedTS int64) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE alarms SET cleared_ts = ? WHERE id = ?`, clearedTS, id)
	return err
}

// MarkAlarmAcknowledged records operator acknowledgement (spec §6 ack_alarm).
func (d *DB) MarkAlarmAcknowledged(ctx context.Context, id, operator string, ackTS int64) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE alarms SET acknowledged_ts = ?, acknowledged_by = ? WHERE id = ?`, ackTS, operator, id)
	return err
}
