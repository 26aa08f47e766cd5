// Package model defines the control core's data model (spec §3): devices,
// their runtime state, setpoints, schedules, rules, PID parameters, sensor
// readings, alarms and zone modes. Types here are deliberately dumb value
// types — validation lives at the boundary that constructs them
// (internal/config, the tsdb loaders, the operator-facing package), not in
// the types themselves, following the teacher's pattern of keeping model
// structs (pkg/model in mash-go) free of business logic.
package model

import "time"

// DeviceType is a closed tagged variant replacing the source material's
// string-keyed device_type dispatch (spec §9 REDESIGN FLAGS).
type DeviceType string

const (
	DeviceHeater      DeviceType = "heater"
	DeviceFan         DeviceType = "fan"
	DeviceExhaustFan  DeviceType = "exhaust_fan"
	DeviceDehumidifier DeviceType = "dehumidifier"
	DeviceHumidifier  DeviceType = "humidifier"
	DeviceCO2         DeviceType = "co2"
	DeviceLight       DeviceType = "light"
)

// IsPIDCapable reports whether this device type may ever run under PID
// control. Light devices never participate in PID (spec §3 invariant);
// dehumidifiers/humidifiers use hysteresis only (spec §4.6).
func (t DeviceType) IsPIDCapable() bool {
	switch t {
	case DeviceHeater, DeviceFan, DeviceExhaustFan, DeviceCO2:
		return true
	default:
		return false
	}
}

// SafeState is the state a device is forced to while its zone is in failsafe.
type SafeState string

const (
	SafeOff       SafeState = "OFF"
	SafeOn        SafeState = "ON"
	SafeLastKnown SafeState = "LAST_KNOWN"
)

// ZoneKey names a zone: a (location, cluster) pair.
type ZoneKey struct {
	Location string
	Cluster  string
}

func (z ZoneKey) String() string { return z.Location + "/" + z.Cluster }

// DeviceKey identifies a device: (location, cluster, device_name).
type DeviceKey struct {
	Zone ZoneKey
	Name string
}

func (d DeviceKey) String() string { return d.Zone.String() + "/" + d.Name }

// DimmingDescriptor addresses a DAC channel for a dimmable device.
type DimmingDescriptor struct {
	BoardID    string
	DACChannel int
}

// Device is the static configuration of a relay-controlled or dimmable
// device (spec §3). Invariants (channel ownership, dimming descriptor
// presence, light/PID exclusion) are enforced by internal/config at load
// time, not here.
type Device struct {
	Key DeviceKey

	Type    DeviceType
	Board   string // hardware board name owning Channel
	Channel int    // relay channel, 0-15
	ActiveLow bool  // relay is energized by driving the channel low

	Dimmable bool
	Dimming  DimmingDescriptor // valid iff Dimmable

	PIDEnabled bool
	// PIDSetpoints maps a setpoint kind (e.g. "heating", "cooling", "co2")
	// to an integer priority; lower value is higher priority (spec §4.3
	// multi-setpoint priority for fans).
	PIDSetpoints map[string]int

	PWMPeriod time.Duration // default 100s, spec §4.3

	InterlockWith []string // device names this device is mutually exclusive with

	SafeState SafeState
}

// Reason is the categorical label attributed to every device command
// (GLOSSARY).
type Reason string

const (
	ReasonRule         Reason = "rule"
	ReasonSchedule     Reason = "schedule"
	ReasonPID          Reason = "pid"
	ReasonPhotoperiod  Reason = "photoperiod"
	ReasonManual       Reason = "manual"
	ReasonInterlock    Reason = "interlock"
	ReasonFailsafe     Reason = "failsafe"
	ReasonStartup      Reason = "startup"
)

// Mode is a device's per-device operating mode.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAuto      Mode = "auto"
	ModeScheduled Mode = "scheduled"
)

// DeviceState is the authoritative runtime record for a device (spec §3).
// It is mutated only by the Relay Manager on a successful hardware apply.
type DeviceState struct {
	Key DeviceKey

	State        bool
	Mode         Mode
	IntensityPct float64 // only meaningful for dimmable devices

	LastChangeTS time.Time
	LastReason   Reason
	LastRuleID   *int64
	LastScheduleID *int64
	DutyCyclePct *float64

	// Seq is a strictly increasing per-device sequence number stamped by
	// the Relay Manager on every committed transition (spec I9).
	Seq uint64

	// PreManualState is the state recorded when the device entered manual
	// mode, restored if the operator clears manual mode without giving an
	// explicit target (spec §4.8 set_mode).
	PreManualState *bool
}

// Command is a candidate or committed instruction for a device, produced by
// arbitration (spec §4.1 step 3) and possibly modified by the interlock
// filter (step 4).
type Command struct {
	Device DeviceKey

	State        bool
	IntensityPct *float64
	DutyCyclePct *float64

	// PIDOutputPct is the raw PID controller output (0-100) before PWM
	// conversion, set only for Reason == ReasonPID. Carried through to
	// telemetry; never read back by arbitration.
	PIDOutputPct *float64

	Reason   Reason
	RuleID   *int64
	ScheduleID *int64

	// NoChange indicates arbitration produced no candidate (default branch,
	// spec §4.1.3.5): the device retains whatever it is currently doing.
	NoChange bool
}
