package model

import "time"

// ClimatePhase is one of the four phases partitioning the 24-hour cycle
// (spec §4.5, GLOSSARY).
type ClimatePhase string

const (
	PhasePreDay   ClimatePhase = "PRE_DAY"
	PhaseDay      ClimatePhase = "DAY"
	PhasePreNight ClimatePhase = "PRE_NIGHT"
	PhaseNight    ClimatePhase = "NIGHT"
)

// Setpoint is the target value for controlled variables in a zone under a
// given climate phase (spec §3). A nil Phase denotes the zone-wide
// fallback setpoint used before any phase-specific one is configured.
type Setpoint struct {
	Zone  ZoneKey
	Phase *ClimatePhase

	HeatingSetpoint *float64 // degrees C
	CoolingSetpoint *float64 // degrees C
	VPD             *float64 // kPa
	CO2             *float64 // ppm
	RampInDuration  time.Duration
}

// Validation ranges (spec §3).
const (
	TempMinC = 10.0
	TempMaxC = 35.0

	CO2MinPPM = 400.0
	CO2MaxPPM = 2000.0

	VPDMinKPa = 0.0
	VPDMaxKPa = 5.0

	RampMin = 0 * time.Minute
	RampMax = 240 * time.Minute
)

// PIDParameters holds the tunable gains for a device type (and optionally a
// specific device), with provenance (spec §3, §6 pid:params:<device_type>).
type PIDParameters struct {
	DeviceType DeviceType
	Device     *DeviceKey // nil means the device-type default

	Kp, Ki, Kd float64

	UpdatedAt time.Time
	Source    string // e.g. "api", "config", "default"
}

// PIDLimits bounds valid gains per device type (spec §6
// control.pid_limits.<device_type>.{kp,ki,kd}_{min,max}).
type PIDLimits struct {
	KpMin, KpMax float64
	KiMin, KiMax float64
	KdMin, KdMax float64
}
