// Package config loads the control core's startup configuration (spec §6)
// from YAML, validates it, and produces an immutable Snapshot. Reload
// builds a brand new Snapshot and swaps it atomically between ticks (spec
// §9 REDESIGN FLAGS: "model config as an immutable snapshot"); the core
// never mutates a live Snapshot in place.
//
// Grounded on the teacher's two-stage load shape (cmd/mash-pics and
// pkg/usecase/resolve.go: gopkg.in/yaml.v3 unmarshal, then a typed resolve
// step) generalized from use-case definitions to the full startup config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// Raw is the YAML-level representation of the startup config (spec §6).
type Raw struct {
	Control struct {
		UpdateIntervalSeconds       float64 `yaml:"update_interval"`
		LastGoodHoldPeriodSeconds   float64 `yaml:"last_good_hold_period"`
		MaxDBLookbackSeconds        float64 `yaml:"max_db_lookback"`
		MissingAlarmPeriodSeconds   float64 `yaml:"missing_alarm_period"`
		FreshnessWindowSeconds      float64 `yaml:"freshness_window"`
		InterlockMaxPasses          int     `yaml:"interlock_max_passes"`
		FailsafeClearHoldSeconds    float64 `yaml:"failsafe_clear_hold"`

		RateLimit struct {
			PIDParamsPerDeviceTypeSeconds float64 `yaml:"pid_params_per_device_type_seconds"`
		} `yaml:"rate_limit"`

		PWM struct {
			MinOnSeconds  float64 `yaml:"min_on_seconds"`
			MinOffSeconds float64 `yaml:"min_off_seconds"`
		} `yaml:"pwm"`

		PIDLimits map[string]RawPIDLimit `yaml:"pid_limits"`
	} `yaml:"control"`

	Hardware struct {
		I2CBus     string          `yaml:"i2c_bus"`
		Simulation bool            `yaml:"simulation"`
		Boards     []RawBoard      `yaml:"boards"`
	} `yaml:"hardware"`

	StateBus struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"state_bus"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Devices map[string]map[string]RawDevice `yaml:"devices"` // zone "loc/cluster" -> name -> device

	Photoperiod map[string]RawPhotoperiod `yaml:"photoperiod"` // zone -> config
	ClimatePhases map[string]RawClimate   `yaml:"climate_phases"`

	Interlocks []RawInterlock `yaml:"interlocks"`
}

// RawPIDLimit is one device type's validated gain range (spec §6
// control.pid_limits.<device_type>.{kp,ki,kd}_{min,max}).
type RawPIDLimit struct {
	KpMin float64 `yaml:"kp_min"`
	KpMax float64 `yaml:"kp_max"`
	KiMin float64 `yaml:"ki_min"`
	KiMax float64 `yaml:"ki_max"`
	KdMin float64 `yaml:"kd_min"`
	KdMax float64 `yaml:"kd_max"`
}

// RawBoard names one hardware board's I2C address pair (spec §6
// hardware.boards[]).
type RawBoard struct {
	Name      string `yaml:"name"`
	RelayAddr uint16 `yaml:"relay_addr"`
	DACAddr   uint16 `yaml:"dac_addr"`
}

// RawDevice mirrors model.Device at the YAML level (spec §6
// devices.<zone>.<name>).
type RawDevice struct {
	Type      string         `yaml:"device_type"`
	Board     string         `yaml:"board"`
	Channel   int            `yaml:"channel"`
	ActiveLow bool           `yaml:"active_low"`

	Dimmable   bool   `yaml:"dimmable"`
	DACBoardID string `yaml:"dac_board_id"`
	DACChannel int    `yaml:"dac_channel"`

	PIDEnabled   bool           `yaml:"pid_enabled"`
	PIDSetpoints map[string]int `yaml:"pid_setpoints"`

	PWMPeriodSeconds float64 `yaml:"pwm_period_seconds"`

	InterlockWith []string `yaml:"interlock_with"`

	SafeState string `yaml:"safe_state"`
}

// RawPhotoperiod mirrors photoperiod.Config at the YAML level.
type RawPhotoperiod struct {
	DayStart          string  `yaml:"day_start"` // "HH:MM"
	DayEnd            string  `yaml:"day_end"`
	RampUpMinutes     float64 `yaml:"ramp_up_duration_min"`
	RampDownMinutes   float64 `yaml:"ramp_down_duration_min"`
	TargetIntensity   float64 `yaml:"target_intensity_pct"`
	LockedHours       *float64 `yaml:"locked_photoperiod_hours"`
}

// RawClimate mirrors climate.Config at the YAML level.
type RawClimate struct {
	PreDayMinutes   float64                       `yaml:"pre_day_duration_min"`
	PreNightMinutes float64                       `yaml:"pre_night_duration_min"`
	Setpoints       map[string]RawSetpoint        `yaml:"setpoints"` // phase -> tuple
}

// RawSetpoint mirrors model.Setpoint at the YAML level.
type RawSetpoint struct {
	Heating       *float64 `yaml:"heating_setpoint"`
	Cooling       *float64 `yaml:"cooling_setpoint"`
	VPD           *float64 `yaml:"vpd"`
	CO2           *float64 `yaml:"co2"`
	RampInMinutes float64  `yaml:"ramp_in_duration_min"`
}

// RawInterlock is an explicit ordered mutual-exclusion pair (spec §4.7,
// SPEC_FULL §12 "interlock priority configuration").
type RawInterlock struct {
	Zone   string `yaml:"zone"` // "loc/cluster"
	Winner string `yaml:"winner"`
	Loser  string `yaml:"loser"`
}

// Load reads and parses a YAML config file at path into a Raw struct.
func Load(path string) (*Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.New(coreerr.KindConfigInvalid, fmt.Sprintf("read config %q", path), err)
	}
	var raw Raw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, coreerr.New(coreerr.KindConfigInvalid, fmt.Sprintf("parse config %q", path), err)
	}
	return &raw, nil
}

func secondsOrDefault(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

// safeStateOrDefault maps the YAML safe_state string, defaulting to OFF.
func safeStateOrDefault(s string) model.SafeState {
	switch model.SafeState(s) {
	case model.SafeOn:
		return model.SafeOn
	case model.SafeLastKnown:
		return model.SafeLastKnown
	default:
		return model.SafeOff
	}
}
