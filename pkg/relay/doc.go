// Package relay implements the Relay Manager (spec §4.8, C4): the single
// owner of DeviceState mutation. It applies commanded state through a
// hardware.Adapter, stamps monotonic per-device sequence numbers on every
// committed transition (spec I9), and runs the startup restore sequence.
//
// Grounded on the teacher's device/controller state ownership pattern
// (mash-go's zone.Manager: a guarded map mutated only through named
// methods, never directly) generalized from zone-mode ownership to
// device-state ownership.
package relay
