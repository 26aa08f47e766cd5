// Package zone tracks each zone's current ZoneMode (auto/manual/override/
// failsafe) with provenance.
//
// # Zone mode ownership
//
// Per spec §3, the Relay Manager never writes ZoneMode and the Control
// Engine never writes DeviceState directly; here, only the alarm/failsafe
// manager may transition a zone into or out of ZoneFailsafe. Everything
// else (operator override, clearing back to auto) goes through SetMode
// and is expected to come from the operator-facing package.
//
// # Value resolution
//
// This package does not resolve candidate values. Competing rules are
// ranked by pkg/priority, and competing PID setpoints by
// pid.Bank.ComputeDevice.
package zone
