// Package operator implements the control core's operator-facing contract
// (spec §6): the read/write functions an external API layer or interactive
// shell calls to inspect and mutate control state. Every mutating call is
// validated against config-derived ranges before it reaches any other
// component (spec §7 validation_failed: rejected with field/value/range).
//
// Grounded on mash-go's pkg/usecase layer: a thin façade over the
// lower-level managers (zone.Manager, relay.Manager, failsafe.Manager, …)
// that does nothing but validate, delegate, and translate, the same shape
// mash-go's use-case resolvers give the SHIP command handlers over
// pkg/zone/pkg/entity.
package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Phoenix5595/cea-automation-core/internal/config"
	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
	"github.com/Phoenix5595/cea-automation-core/pkg/relay"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

// Store is the persistence surface the operator API writes through
// (implemented by internal/tsdb).
type Store interface {
	UpsertSetpoint(ctx context.Context, sp model.Setpoint) error
	UpsertSchedule(ctx context.Context, s model.Schedule) (int64, error)
	UpsertRule(ctx context.Context, r model.Rule) (int64, error)
	UpsertPIDParams(ctx context.Context, p model.PIDParameters) error
	MarkAlarmAcknowledged(ctx context.Context, id, operatorName string, ackTS int64) error
}

// API is the operator-facing contract (spec §6): get_device_state,
// apply_manual, set_device_mode, upsert_setpoint, upsert_schedule,
// upsert_rule, set_pid_params, get_failsafe, clear_failsafe, ack_alarm.
type API struct {
	configStore *config.Store
	relayMgr    *relay.Manager
	zones       *zone.Manager
	failsafeMgr *failsafe.Manager
	pidBank     *pid.Bank
	store       Store
	log         zerolog.Logger
}

// New constructs an operator API over the running control core's managers.
func New(configStore *config.Store, relayMgr *relay.Manager, zones *zone.Manager, failsafeMgr *failsafe.Manager, pidBank *pid.Bank, store Store, log zerolog.Logger) *API {
	return &API{
		configStore: configStore,
		relayMgr:    relayMgr,
		zones:       zones,
		failsafeMgr: failsafeMgr,
		pidBank:     pidBank,
		store:       store,
		log:         log.With().Str("component", "operator").Logger(),
	}
}

// GetDeviceState returns the current DeviceState for a device.
func (a *API) GetDeviceState(key model.DeviceKey) (model.DeviceState, error) {
	st, ok := a.relayMgr.ReadState(key)
	if !ok {
		return model.DeviceState{}, relay.ErrDeviceNotFound
	}
	return st, nil
}

// ListDeviceStates returns every device's state, sorted by zone then name.
func (a *API) ListDeviceStates() []model.DeviceState {
	return a.relayMgr.AllStates()
}

// ApplyManual commits an immediate command for device and sets its mode to
// manual, so the Control Engine's arbitration never overrides it again
// until the operator clears manual mode (spec §6 apply_manual, I2 "manual
// is sticky").
func (a *API) ApplyManual(ctx context.Context, key model.DeviceKey, state bool, reason string, now time.Time) (model.DeviceState, error) {
	if err := a.relayMgr.SetMode(key, model.ModeManual); err != nil {
		return model.DeviceState{}, err
	}
	cmd := model.Command{Device: key, State: state, Reason: model.ReasonManual}
	res := a.relayMgr.Apply(ctx, cmd, now)
	if res.Err != nil {
		return model.DeviceState{}, res.Err
	}
	a.log.Info().Str("device", key.String()).Bool("state", state).Str("operator_reason", reason).Msg("operator: manual apply")
	return res.State, nil
}

// SetDeviceMode changes a device's per-device mode (spec §6 set_device_mode,
// §4.8 set_mode).
func (a *API) SetDeviceMode(key model.DeviceKey, mode model.Mode) error {
	return a.relayMgr.SetMode(key, mode)
}

// UpsertSetpoint validates a setpoint against spec §3 ranges and persists it
// (spec §6 upsert_setpoint, R1 round-trip).
func (a *API) UpsertSetpoint(ctx context.Context, sp model.Setpoint) error {
	if err := validateSetpoint(sp); err != nil {
		return err
	}
	return a.store.UpsertSetpoint(ctx, sp)
}

func validateSetpoint(sp model.Setpoint) error {
	if sp.HeatingSetpoint != nil && (*sp.HeatingSetpoint < model.TempMinC || *sp.HeatingSetpoint > model.TempMaxC) {
		return &coreerr.ValidationError{Field: "heating_setpoint", Value: *sp.HeatingSetpoint, Min: model.TempMinC, Max: model.TempMaxC}
	}
	if sp.CoolingSetpoint != nil && (*sp.CoolingSetpoint < model.TempMinC || *sp.CoolingSetpoint > model.TempMaxC) {
		return &coreerr.ValidationError{Field: "cooling_setpoint", Value: *sp.CoolingSetpoint, Min: model.TempMinC, Max: model.TempMaxC}
	}
	if sp.HeatingSetpoint != nil && sp.CoolingSetpoint != nil && *sp.HeatingSetpoint > *sp.CoolingSetpoint {
		return &coreerr.ValidationError{Field: "heating_setpoint", Value: *sp.HeatingSetpoint, Max: *sp.CoolingSetpoint,
			Message: "heating_setpoint must be <= cooling_setpoint"}
	}
	if sp.CO2 != nil && (*sp.CO2 < model.CO2MinPPM || *sp.CO2 > model.CO2MaxPPM) {
		return &coreerr.ValidationError{Field: "co2", Value: *sp.CO2, Min: model.CO2MinPPM, Max: model.CO2MaxPPM}
	}
	if sp.VPD != nil && (*sp.VPD < model.VPDMinKPa || *sp.VPD > model.VPDMaxKPa) {
		return &coreerr.ValidationError{Field: "vpd", Value: *sp.VPD, Min: model.VPDMinKPa, Max: model.VPDMaxKPa}
	}
	if sp.RampInDuration < model.RampMin || sp.RampInDuration > model.RampMax {
		return &coreerr.ValidationError{Field: "ramp_in_duration_min", Value: sp.RampInDuration.Minutes(), Min: model.RampMin.Minutes(), Max: model.RampMax.Minutes()}
	}
	return nil
}

// UpsertSchedule validates and persists a schedule (spec §6 upsert_schedule,
// B1/B2 boundary rules are enforced by Schedule.ActiveAt at evaluation
// time, not here).
func (a *API) UpsertSchedule(ctx context.Context, s model.Schedule) (int64, error) {
	if s.StartTime < 0 || s.StartTime >= 24*time.Hour {
		return 0, &coreerr.ValidationError{Field: "start_time", Value: s.StartTime, Min: 0, Max: 24 * time.Hour}
	}
	if s.EndTime < 0 || s.EndTime >= 24*time.Hour {
		return 0, &coreerr.ValidationError{Field: "end_time", Value: s.EndTime, Min: 0, Max: 24 * time.Hour}
	}
	snap := a.configStore.Current()
	if cfg, ok := snap.Photoperiod[s.Device.Zone]; ok && cfg.LockedHours != nil {
		if s.RampUpDuration+s.RampDownDuration > 0 && durationHours(s.EndTime-s.StartTime) != *cfg.LockedHours {
			return 0, &coreerr.ValidationError{Field: "duration", Value: durationHours(s.EndTime - s.StartTime), Message: "zone has a locked photoperiod duration"}
		}
	}
	return a.store.UpsertSchedule(ctx, s)
}

func durationHours(d time.Duration) float64 { return d.Hours() }

// UpsertRule validates and persists a rule (spec §6 upsert_rule).
func (a *API) UpsertRule(ctx context.Context, r model.Rule) (int64, error) {
	if r.Priority < 0 || r.Priority > 100 {
		return 0, &coreerr.ValidationError{Field: "priority", Value: r.Priority, Min: 0, Max: 100}
	}
	switch r.ConditionOperator {
	case model.OpLT, model.OpGT, model.OpLE, model.OpGE, model.OpEQ:
	default:
		return 0, &coreerr.ValidationError{Field: "condition_operator", Value: r.ConditionOperator, Message: "unknown comparison operator"}
	}
	return a.store.UpsertRule(ctx, r)
}

// SetPIDParams validates gains against the device type's configured limits
// and queues the update through the rate-limited PID bank, persisting the
// new gains for restart (spec §6 set_pid_params, §4.3 hot-reload).
func (a *API) SetPIDParams(ctx context.Context, p model.PIDParameters, now time.Time) error {
	snap := a.configStore.Current()
	if lim, ok := snap.PIDLimits[p.DeviceType]; ok {
		if p.Kp < lim.KpMin || p.Kp > lim.KpMax {
			return &coreerr.ValidationError{Field: "kp", Value: p.Kp, Min: lim.KpMin, Max: lim.KpMax}
		}
		if p.Ki < lim.KiMin || p.Ki > lim.KiMax {
			return &coreerr.ValidationError{Field: "ki", Value: p.Ki, Min: lim.KiMin, Max: lim.KiMax}
		}
		if p.Kd < lim.KdMin || p.Kd > lim.KdMax {
			return &coreerr.ValidationError{Field: "kd", Value: p.Kd, Min: lim.KdMin, Max: lim.KdMax}
		}
	}
	p.UpdatedAt = now
	if p.Source == "" {
		p.Source = "api"
	}
	a.pidBank.RequestParams(p.DeviceType, p, now)
	if a.store != nil {
		return a.store.UpsertPIDParams(ctx, p)
	}
	return nil
}

// GetFailsafe returns whether zone is currently in failsafe (spec §6
// get_failsafe).
func (a *API) GetFailsafe(z model.ZoneKey) bool {
	return a.failsafeMgr.IsFailsafe(z)
}

// ClearFailsafe attempts an operator-initiated failsafe clear (spec §6
// clear_failsafe, §4.9: "accepted only when conditions currently permit
// clearing").
func (a *API) ClearFailsafe(z model.ZoneKey, now time.Time) error {
	return a.failsafeMgr.ClearFailsafe(z, now)
}

// AckAlarm records operator acknowledgement of an alarm (spec §6
// ack_alarm).
func (a *API) AckAlarm(ctx context.Context, z model.ZoneKey, id, operatorName string, now time.Time) error {
	if err := a.failsafeMgr.AckAlarm(z, id, operatorName, now); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.MarkAlarmAcknowledged(ctx, id, operatorName, now.UnixMilli()); err != nil {
			return fmt.Errorf("operator: persist alarm ack: %w", err)
		}
	}
	return nil
}

// ActiveAlarms returns every currently-active alarm for a zone (spec §6,
// the read side of the alarm surface).
func (a *API) ActiveAlarms(z model.ZoneKey) []model.Alarm {
	return a.failsafeMgr.ActiveAlarms(z)
}
