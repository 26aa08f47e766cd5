package tsdb

import (
	"context"

	"github.com/Phoenix5595/cea-automation-core/internal/persistence"
)

// AppendControlHistory appends a strictly-append-only control_history row
// (spec I9, implements persistence.Sink).
func (d *DB) AppendControlHistory(ctx context.Context, t persistence.Transition) error {
	var ruleID, scheduleID any
	if t.RuleID != nil {
		ruleID = *t.RuleID
	}
	if t.ScheduleID != nil {
		scheduleID = *t.ScheduleID
	}
	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO control_history (location, cluster, device, ts, old_state, new_state, reason, rule_id, schedule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Device.Zone.Location, t.Device.Zone.Cluster, t.Device.Name,
		t.Timestamp.UnixMilli(), boolToInt(t.OldState), boolToInt(t.NewState),
		string(t.Reason), ruleID, scheduleID,
	)
	return err
}

// AppendAutomationState appends a best-effort automation_state row (spec
// §4.1 step 6, implements persistence.Sink).
func (d *DB) AppendAutomationState(ctx context.Context, s persistence.AutomationSnapshot) error {
	var duty, pidOutput any
	if s.DutyCycle != nil {
		duty = *s.DutyCycle
	}
	if s.PIDOutput != nil {
		pidOutput = *s.PIDOutput
	}
	var ruleID, scheduleID any
	if s.RuleID != nil {
		ruleID = *s.RuleID
	}
	if s.ScheduleID != nil {
		scheduleID = *s.ScheduleID
	}

	_, err := d.sql.ExecContext(ctx, `
		INSERT INTO automation_state (location, cluster, device, ts, state, mode, duty_cycle_pct, pid_output, rule_id, schedule_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Device.Zone.Location, s.Device.Zone.Cluster, s.Device.Name,
		s.Timestamp.UnixMilli(), boolToInt(s.State), string(s.Mode), duty, pidOutput, ruleID, scheduleID, string(s.Reason),
	)
	return err
}
