// Package failsafe implements the control core's Alarm / Failsafe Manager
// (spec §4.9, C12): it tracks the alarm taxonomy (sensor_missing,
// sensor_loss, hardware_fault, db_loss, interlock_cycle,
// setpoint_out_of_range), escalates the sustained absence of fresh sensor
// data into critical alarms, and is the sole owner of a zone's transition
// into and out of ZoneFailsafe (spec §3 ownership rule).
//
// # Per-zone state machine
//
// Each zone tracks a small state machine, adapted from the teacher stack's
// connection-loss failsafe timer (a NORMAL -> TIMER_RUNNING -> FAILSAFE ->
// GRACE_PERIOD progression keyed by connection loss) but re-keyed here to
// sensor freshness and hardware health instead of connection state:
//
//	Normal -> Failsafe  (a critical sensor_loss or hardware_fault alarm)
//	Failsafe -> Clearing (the triggering condition clears)
//	Clearing -> Normal  (condition stays clear for FailsafeClearHold)
//	Clearing -> Failsafe (condition reappears before the hold elapses)
//
// sensor_missing alarms (warning past missingWarn, critical past
// missingCritical) are raised and cleared without moving the state.
// StateWarning is declared, but the state machine does not enter it.
//
// Only transitions through this package call zone.Manager.SetMode with
// model.ZoneFailsafe; everything else (operator overrides, clearing back to
// auto) is expected to come through the operator-facing package per
// pkg/zone's doc comment.
package failsafe
