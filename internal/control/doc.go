// Package control implements the Control Engine (spec §4.1, C13): the
// single per-tick orchestrator that snapshots inputs, gates on failsafe,
// arbitrates one command per device in strict priority order (manual >
// rules > schedules/photoperiod > PID/hysteresis > default), resolves
// interlocks, commits through the Relay Manager, and emits telemetry.
//
// Grounded on mash-go's top-level zone/device orchestration loop (the
// teacher's single-goroutine tick-driven coordinator that reads a
// snapshot, computes per-device decisions, and commits through its relay
// layer); generalized here from EEBus use-case dispatch to the fixed
// five-step arbitration cascade this spec requires.
package control
