// Package pid implements the control core's PID Bank (spec §4.3, C5): one
// PID controller per (device, setpoint-kind) pair, with anti-windup,
// sensor-staleness freezing, dynamic parameter reload, and priority
// arbitration among multiple setpoints driving the same fan.
//
// The controller shape (P + clamped I + D, rollback-on-saturation
// anti-windup) is grounded on the teacher stack's closed-loop numeric style
// in pkg/commissioning (PAKE exchange state stepped deterministically per
// call) adapted to a continuous numeric loop; there is no PID controller in
// the retrieval pack, so the algorithm itself is transcribed directly from
// spec §4.3's equations rather than adapted from an example.
package pid
