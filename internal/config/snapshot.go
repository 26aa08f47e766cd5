package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/climate"
	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/interlock"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/photoperiod"
	"github.com/Phoenix5595/cea-automation-core/pkg/pwm"
)

// Snapshot is the immutable, fully-validated configuration the control
// worker reads at tick start (spec §9 REDESIGN FLAGS: "immutable
// snapshot" model, atomically swapped via atomic.Pointer[Snapshot] between
// ticks rather than mutated in place).
type Snapshot struct {
	UpdateInterval     time.Duration
	LastGoodHoldPeriod time.Duration
	MaxDBLookback      time.Duration
	MissingAlarmPeriod time.Duration
	FreshnessWindow    time.Duration
	InterlockMaxPasses int
	FailsafeClearHold  time.Duration

	PIDRateLimit time.Duration
	PWMMinOn     time.Duration
	PWMMinOff    time.Duration

	PIDLimits map[model.DeviceType]model.PIDLimits

	I2CBus     string
	Simulation bool
	Boards     []RawBoard

	StateBusAddr     string
	StateBusPassword string
	StateBusDB       int

	DatabasePath string

	Devices []model.Device

	Photoperiod map[model.ZoneKey]photoperiod.Config
	Climate     map[model.ZoneKey]climate.Config

	Interlocks []interlock.Rule

	// Zones is every zone named by any device, photoperiod, or climate
	// entry, sorted for deterministic iteration.
	Zones []model.ZoneKey
}

// Resolve validates raw and builds an immutable Snapshot (spec §7
// config_invalid blocks startup on any validation failure below).
func Resolve(raw *Raw) (*Snapshot, error) {
	s := &Snapshot{
		UpdateInterval:     secondsOrDefault(raw.Control.UpdateIntervalSeconds, 1*time.Second),
		LastGoodHoldPeriod: secondsOrDefault(raw.Control.LastGoodHoldPeriodSeconds, 30*time.Second),
		MaxDBLookback:      secondsOrDefault(raw.Control.MaxDBLookbackSeconds, 5*time.Minute),
		MissingAlarmPeriod: secondsOrDefault(raw.Control.MissingAlarmPeriodSeconds, 60*time.Second),
		FreshnessWindow:    secondsOrDefault(raw.Control.FreshnessWindowSeconds, 30*time.Second),
		InterlockMaxPasses: raw.Control.InterlockMaxPasses,
		FailsafeClearHold:  secondsOrDefault(raw.Control.FailsafeClearHoldSeconds, 60*time.Second),

		PIDRateLimit: secondsOrDefault(raw.Control.RateLimit.PIDParamsPerDeviceTypeSeconds, 5*time.Second),
		PWMMinOn:     secondsOrDefault(raw.Control.PWM.MinOnSeconds, pwm.DefaultMinOn),
		PWMMinOff:    secondsOrDefault(raw.Control.PWM.MinOffSeconds, pwm.DefaultMinOff),

		PIDLimits: make(map[model.DeviceType]model.PIDLimits, len(raw.Control.PIDLimits)),

		I2CBus:     raw.Hardware.I2CBus,
		Simulation: raw.Hardware.Simulation,
		Boards:     raw.Hardware.Boards,

		StateBusAddr:     raw.StateBus.Addr,
		StateBusPassword: raw.StateBus.Password,
		StateBusDB:       raw.StateBus.DB,

		DatabasePath: raw.Database.Path,

		Photoperiod: make(map[model.ZoneKey]photoperiod.Config),
		Climate:     make(map[model.ZoneKey]climate.Config),
	}
	if s.InterlockMaxPasses <= 0 {
		s.InterlockMaxPasses = interlock.MaxPasses
	}

	for dt, lim := range raw.Control.PIDLimits {
		s.PIDLimits[model.DeviceType(dt)] = model.PIDLimits{
			KpMin: lim.KpMin, KpMax: lim.KpMax,
			KiMin: lim.KiMin, KiMax: lim.KiMax,
			KdMin: lim.KdMin, KdMax: lim.KdMax,
		}
	}

	zones := make(map[model.ZoneKey]struct{})

	channelOwner := make(map[string]model.DeviceKey) // "board/channel" -> device
	for zoneStr, devs := range raw.Devices {
		zk, err := parseZone(zoneStr)
		if err != nil {
			return nil, err
		}
		zones[zk] = struct{}{}

		for name, rd := range devs {
			dk := model.DeviceKey{Zone: zk, Name: name}
			dev, err := resolveDevice(dk, rd)
			if err != nil {
				return nil, err
			}

			chanKey := fmt.Sprintf("%s/%d", dev.Board, dev.Channel)
			if owner, exists := channelOwner[chanKey]; exists {
				return nil, validationErr("channel", chanKey, nil, nil,
					fmt.Sprintf("channel %s already owned by %s (conflicting device %s)", chanKey, owner, dk))
			}
			channelOwner[chanKey] = dk

			s.Devices = append(s.Devices, dev)
		}
	}
	sort.Slice(s.Devices, func(i, j int) bool {
		if s.Devices[i].Key.Zone != s.Devices[j].Key.Zone {
			return s.Devices[i].Key.Zone.String() < s.Devices[j].Key.Zone.String()
		}
		return s.Devices[i].Key.Name < s.Devices[j].Key.Name
	})

	for zoneStr, rp := range raw.Photoperiod {
		zk, err := parseZone(zoneStr)
		if err != nil {
			return nil, err
		}
		zones[zk] = struct{}{}

		dayStart, err := parseTimeOfDay(rp.DayStart)
		if err != nil {
			return nil, validationErr("photoperiod.day_start", rp.DayStart, nil, nil, err.Error())
		}
		dayEnd, err := parseTimeOfDay(rp.DayEnd)
		if err != nil {
			return nil, validationErr("photoperiod.day_end", rp.DayEnd, nil, nil, err.Error())
		}

		cfg := photoperiod.Config{
			DayStart:           dayStart,
			DayEnd:             dayEnd,
			RampUp:             time.Duration(rp.RampUpMinutes * float64(time.Minute)),
			RampDown:           time.Duration(rp.RampDownMinutes * float64(time.Minute)),
			TargetIntensityPct: rp.TargetIntensity,
			LockedHours:        rp.LockedHours,
		}
		normalized, _ := cfg.Normalize()
		s.Photoperiod[zk] = normalized
	}

	for zoneStr, rc := range raw.ClimatePhases {
		zk, err := parseZone(zoneStr)
		if err != nil {
			return nil, err
		}
		zones[zk] = struct{}{}

		pp, hasPhoto := s.Photoperiod[zk]
		var dayStart, dayEnd time.Duration
		if hasPhoto {
			dayStart, dayEnd = pp.DayStart, pp.DayEnd
		}

		cc := climate.Config{
			DayStart:         dayStart,
			DayEnd:           dayEnd,
			PreDayDuration:   time.Duration(rc.PreDayMinutes * float64(time.Minute)),
			PreNightDuration: time.Duration(rc.PreNightMinutes * float64(time.Minute)),
			Setpoints:        make(map[model.ClimatePhase]model.Setpoint),
		}
		for phase, rs := range rc.Setpoints {
			if err := validateSetpoint(rs); err != nil {
				return nil, err
			}
			ph := model.ClimatePhase(phase)
			cc.Setpoints[ph] = model.Setpoint{
				Zone:            zk,
				Phase:           &ph,
				HeatingSetpoint: rs.Heating,
				CoolingSetpoint: rs.Cooling,
				VPD:             rs.VPD,
				CO2:             rs.CO2,
				RampInDuration:  time.Duration(rs.RampInMinutes * float64(time.Minute)),
			}
		}
		s.Climate[zk] = cc
	}

	for _, ri := range raw.Interlocks {
		zk, err := parseZone(ri.Zone)
		if err != nil {
			return nil, err
		}
		s.Interlocks = append(s.Interlocks, interlock.Rule{Zone: zk, Winner: ri.Winner, Loser: ri.Loser})
	}

	for z := range zones {
		s.Zones = append(s.Zones, z)
	}
	sort.Slice(s.Zones, func(i, j int) bool { return s.Zones[i].String() < s.Zones[j].String() })

	return s, nil
}

func resolveDevice(key model.DeviceKey, rd RawDevice) (model.Device, error) {
	dt := model.DeviceType(rd.Type)
	switch dt {
	case model.DeviceHeater, model.DeviceFan, model.DeviceExhaustFan,
		model.DeviceDehumidifier, model.DeviceHumidifier, model.DeviceCO2, model.DeviceLight:
	default:
		return model.Device{}, validationErr("device_type", rd.Type, nil, nil,
			fmt.Sprintf("device %s: unknown device_type %q", key, rd.Type))
	}
	if rd.Channel < 0 || rd.Channel > 15 {
		return model.Device{}, validationErr("channel", rd.Channel, 0, 15,
			fmt.Sprintf("device %s: channel out of range", key))
	}
	if rd.PIDEnabled && dt == model.DeviceLight {
		return model.Device{}, validationErr("pid_enabled", true, nil, nil,
			fmt.Sprintf("device %s: light devices never participate in PID", key))
	}
	if rd.Dimmable && dt != model.DeviceLight {
		return model.Device{}, validationErr("dimmable", true, nil, nil,
			fmt.Sprintf("device %s: only light devices may be dimmable", key))
	}

	period := secondsOrDefault(rd.PWMPeriodSeconds, pwm.DefaultPeriod)

	return model.Device{
		Key:           key,
		Type:          dt,
		Board:         rd.Board,
		Channel:       rd.Channel,
		ActiveLow:     rd.ActiveLow,
		Dimmable:      rd.Dimmable,
		Dimming:       model.DimmingDescriptor{BoardID: rd.DACBoardID, DACChannel: rd.DACChannel},
		PIDEnabled:    rd.PIDEnabled,
		PIDSetpoints:  rd.PIDSetpoints,
		PWMPeriod:     period,
		InterlockWith: rd.InterlockWith,
		SafeState:     safeStateOrDefault(rd.SafeState),
	}, nil
}

func validateSetpoint(rs RawSetpoint) error {
	if rs.Heating != nil && (*rs.Heating < model.TempMinC || *rs.Heating > model.TempMaxC) {
		return validationErr("heating_setpoint", *rs.Heating, model.TempMinC, model.TempMaxC, "")
	}
	if rs.Cooling != nil && (*rs.Cooling < model.TempMinC || *rs.Cooling > model.TempMaxC) {
		return validationErr("cooling_setpoint", *rs.Cooling, model.TempMinC, model.TempMaxC, "")
	}
	if rs.Heating != nil && rs.Cooling != nil && *rs.Heating > *rs.Cooling {
		return validationErr("heating_setpoint", *rs.Heating, nil, *rs.Cooling,
			"heating_setpoint must be <= cooling_setpoint")
	}
	if rs.CO2 != nil && (*rs.CO2 < model.CO2MinPPM || *rs.CO2 > model.CO2MaxPPM) {
		return validationErr("co2", *rs.CO2, model.CO2MinPPM, model.CO2MaxPPM, "")
	}
	if rs.VPD != nil && (*rs.VPD < model.VPDMinKPa || *rs.VPD > model.VPDMaxKPa) {
		return validationErr("vpd", *rs.VPD, model.VPDMinKPa, model.VPDMaxKPa, "")
	}
	rampIn := time.Duration(rs.RampInMinutes * float64(time.Minute))
	if rampIn < model.RampMin || rampIn > model.RampMax {
		return validationErr("ramp_in_duration_min", rs.RampInMinutes, model.RampMin.Minutes(), model.RampMax.Minutes(), "")
	}
	return nil
}

func validationErr(field string, value, min, max any, msg string) error {
	return coreerr.New(coreerr.KindConfigInvalid, field, &coreerrValidation{field: field, value: value, min: min, max: max, msg: msg})
}

// coreerrValidation adapts coreerr.ValidationError for wrapping under a
// config_invalid KindError at load time (startup rejects the whole file);
// the same ValidationError shape is reused unwrapped by the operator API
// boundary for a single rejected mutating call (spec §7).
type coreerrValidation struct {
	field string
	value any
	min   any
	max   any
	msg   string
}

func (e *coreerrValidation) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("field %q value %v out of range [%v, %v]", e.field, e.value, e.min, e.max)
}

func parseZone(s string) (model.ZoneKey, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.ZoneKey{}, validationErr("zone", s, nil, nil,
			fmt.Sprintf("zone key %q must be \"location/cluster\"", s))
	}
	return model.ZoneKey{Location: parts[0], Cluster: parts[1]}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time-of-day %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time-of-day %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
