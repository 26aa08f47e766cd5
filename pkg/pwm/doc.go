// Package pwm implements the PWM Scheduler (spec §4.3 second half, C6): it
// converts a PID's continuous 0-100% output into a time-based ON/OFF duty
// cycle over a configurable period, snapping to fully-off or fully-on when
// the computed on-time falls below the configured minimum on/off times.
//
// There is no PWM scheduler in the retrieval pack; the phase-clock shape
// (a per-device clock that starts once and is sampled, never reset, on
// every recomputation) is grounded on the teacher's pkg/duration timer
// lifecycle (a timer that is started once and its remaining time is
// queried repeatedly without restarting), adapted here from a one-shot
// expiring timer to a repeating phase clock.
package pwm
