package control

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Phoenix5595/cea-automation-core/internal/config"
	"github.com/Phoenix5595/cea-automation-core/internal/persistence"
	"github.com/Phoenix5595/cea-automation-core/internal/sensorcache"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/hysteresis"
	"github.com/Phoenix5595/cea-automation-core/pkg/interlock"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
	"github.com/Phoenix5595/cea-automation-core/pkg/pwm"
	"github.com/Phoenix5595/cea-automation-core/pkg/relay"
	"github.com/Phoenix5595/cea-automation-core/pkg/rules"
	"github.com/Phoenix5595/cea-automation-core/pkg/schedule"
)

// controlDeadband is the error magnitude below which a PID candidate does
// not qualify as the active setpoint for a multi-setpoint device (spec
// §4.3 multi-setpoint priority). Small enough to only guard against chatter
// exactly at the setpoint on single-setpoint devices.
const controlDeadband = 0.1

// MaxDeltaMultiple bounds a PID step's effective Δt as a multiple of the
// nominal tick interval after a gap (spec §5 ordering guarantees).
const MaxDeltaMultiple = 5

// Engine is the Control Engine (C13): the per-tick orchestrator composing
// every other component (spec §4.1).
type Engine struct {
	configStore  *config.Store
	sensors      *sensorcache.Cache
	ruleSchedule *RuleScheduleStore
	scheduleEng  *schedule.Engine
	pidBank      *pid.Bank
	interlockMgr *interlock.Manager
	failsafeMgr  *failsafe.Manager
	relayMgr     *relay.Manager
	writer       *persistence.Writer
	log          zerolog.Logger

	pwmSchedulers map[model.DeviceKey]*pwm.Scheduler

	devicesByZone map[model.ZoneKey][]model.Device

	tickErrors atomic.Uint64
}

// New constructs a Control Engine over its dependencies. devices fixes the
// zone groupings used for arbitration ordering (spec §5: devices are
// processed in a stable order, sorted by zone then device name).
func New(
	configStore *config.Store,
	sensors *sensorcache.Cache,
	ruleSchedule *RuleScheduleStore,
	pidBank *pid.Bank,
	interlockMgr *interlock.Manager,
	failsafeMgr *failsafe.Manager,
	relayMgr *relay.Manager,
	writer *persistence.Writer,
	devices []model.Device,
	log zerolog.Logger,
) *Engine {
	e := &Engine{
		configStore:   configStore,
		sensors:       sensors,
		ruleSchedule:  ruleSchedule,
		scheduleEng:   schedule.NewEngine(),
		pidBank:       pidBank,
		interlockMgr:  interlockMgr,
		failsafeMgr:   failsafeMgr,
		relayMgr:      relayMgr,
		writer:        writer,
		log:           log.With().Str("component", "control").Logger(),
		pwmSchedulers: make(map[model.DeviceKey]*pwm.Scheduler),
		devicesByZone: make(map[model.ZoneKey][]model.Device),
	}
	for _, d := range devices {
		e.devicesByZone[d.Key.Zone] = append(e.devicesByZone[d.Key.Zone], d)
	}
	for z, ds := range e.devicesByZone {
		sort.Slice(ds, func(i, j int) bool { return ds[i].Key.Name < ds[j].Key.Name })
		e.devicesByZone[z] = ds
	}
	return e
}

// TickErrors reports how many per-zone arbitration passes have failed with
// a recovered panic or error since startup.
func (e *Engine) TickErrors() uint64 { return e.tickErrors.Load() }

// Tick runs one full control cycle at wall time now: snapshot, per-zone
// failsafe gate, arbitration, interlock filter, commit, and telemetry
// (spec §4.1). A panic or error processing one zone is isolated to that
// zone and never aborts the rest of the tick.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	snap := e.configStore.Current()
	e.pidBank.Tick(now)

	zones := make([]model.ZoneKey, 0, len(e.devicesByZone))
	for z := range e.devicesByZone {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].String() < zones[j].String() })

	gate := scheduleGate{schedules: e.ruleSchedule.Schedules()}
	re := rules.NewEngine(e.sensors, gate)

	for _, z := range zones {
		e.processZoneSafe(ctx, snap, re, z, now)
	}
}

func (e *Engine) processZoneSafe(ctx context.Context, snap *config.Snapshot, re *rules.Engine, z model.ZoneKey, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.tickErrors.Add(1)
			e.log.Error().Interface("panic", r).Str("zone", z.String()).Msg("control: recovered panic processing zone")
		}
	}()
	if err := e.processZone(ctx, snap, re, z, now); err != nil {
		e.tickErrors.Add(1)
		e.log.Error().Err(err).Str("zone", z.String()).Msg("control: error processing zone")
	}
}

func (e *Engine) processZone(ctx context.Context, snap *config.Snapshot, re *rules.Engine, z model.ZoneKey, now time.Time) error {
	devices := e.devicesByZone[z]
	if len(devices) == 0 {
		return nil
	}

	current := make(map[string]model.DeviceState, len(devices))
	for _, dev := range devices {
		st, ok := e.relayMgr.ReadState(dev.Key)
		if !ok {
			return fmt.Errorf("no tracked state for device %s", dev.Key)
		}
		current[dev.Key.Name] = st
	}

	if e.failsafeMgr.IsFailsafe(z) {
		for _, dev := range devices {
			cur := current[dev.Key.Name]
			want := safeStateTarget(dev.SafeState, cur.State)
			cmd := model.Command{Device: dev.Key, State: want, Reason: model.ReasonFailsafe}
			e.commit(ctx, dev, cmd, cur, now)
		}
		return nil
	}

	climateCfg, hasClimate := snap.Climate[z]
	var activeSetpoint model.Setpoint
	if hasClimate {
		activeSetpoint = climateCfg.Active(timeOfDay(now))
	}

	rulesDecisions := re.Evaluate(e.ruleSchedule.Rules(), z, now)
	schedules := e.ruleSchedule.Schedules()

	candidates := make(map[string]model.Command, len(devices))
	for _, dev := range devices {
		cur := current[dev.Key.Name]
		candidates[dev.Key.Name] = e.arbitrate(dev, cur, z, now, rulesDecisions, schedules, activeSetpoint, hasClimate)
	}

	candidates = e.interlockMgr.Resolve(snap.Interlocks, z, candidates, current, now)

	for _, dev := range devices {
		cur := current[dev.Key.Name]
		final := candidates[dev.Key.Name]
		e.commit(ctx, dev, final, cur, now)
	}
	return nil
}

func safeStateTarget(safe model.SafeState, currentState bool) bool {
	switch safe {
	case model.SafeOn:
		return true
	case model.SafeLastKnown:
		return currentState
	default:
		return false
	}
}

// arbitrate determines the candidate command for one device in strict
// priority order: manual > rules > schedule/photoperiod > PID/hysteresis >
// default (spec §4.1.3).
func (e *Engine) arbitrate(
	dev model.Device,
	cur model.DeviceState,
	z model.ZoneKey,
	now time.Time,
	rulesDecisions map[string]rules.Decision,
	schedules []model.Schedule,
	activeSetpoint model.Setpoint,
	hasClimate bool,
) model.Command {
	noChange := model.Command{
		Device: dev.Key, State: cur.State, IntensityPct: dimIntensityPtr(dev, cur),
		DutyCyclePct: cur.DutyCyclePct, Reason: cur.LastReason, NoChange: true,
	}

	if cur.Mode == model.ModeManual {
		noChange.Reason = model.ReasonManual
		return noChange
	}

	if decision, ok := rulesDecisions[dev.Key.Name]; ok {
		id := decision.RuleID
		return model.Command{Device: dev.Key, State: decision.State, Reason: model.ReasonRule, RuleID: &id}
	}

	if dev.Type == model.DeviceLight {
		return e.lightCommand(dev, z, now, schedules, noChange)
	}

	if decision, ok := e.scheduleEng.Evaluate(schedules, dev.Key, now); ok {
		return model.Command{Device: dev.Key, State: decision.State, Reason: model.ReasonSchedule, ScheduleID: decision.ScheduleID}
	}

	if !hasClimate {
		return noChange
	}

	if dev.PIDEnabled {
		return e.pidCommand(dev, activeSetpoint, z, now, noChange)
	}

	return e.hysteresisCommand(dev, cur, activeSetpoint, z, now, noChange)
}

func dimIntensityPtr(dev model.Device, cur model.DeviceState) *float64 {
	if !dev.Dimmable {
		return nil
	}
	v := cur.IntensityPct
	return &v
}

// lightCommand arbitrates a light device once manual mode and rules have
// been ruled out. A zone's configured photoperiod always wins when present
// (spec §4.4); a schedule drives the light directly only when the zone has
// no photoperiod configured (spec: "schedules never override a configured
// photoperiod for a light unless the photoperiod is disabled for that
// zone").
func (e *Engine) lightCommand(dev model.Device, z model.ZoneKey, now time.Time, schedules []model.Schedule, noChange model.Command) model.Command {
	snap := e.configStore.Current()
	if cfg, ok := snap.Photoperiod[z]; ok {
		lc := cfg.Evaluate(timeOfDay(now))
		var intensity *float64
		if dev.Dimmable {
			v := lc.IntensityPct
			intensity = &v
		}
		return model.Command{Device: dev.Key, State: lc.State, IntensityPct: intensity, Reason: model.ReasonPhotoperiod}
	}

	if decision, ok := e.scheduleEng.Evaluate(schedules, dev.Key, now); ok {
		var intensity *float64
		if dev.Dimmable && decision.IntensityPct != nil {
			intensity = decision.IntensityPct
		}
		return model.Command{Device: dev.Key, State: decision.State, IntensityPct: intensity, Reason: model.ReasonSchedule, ScheduleID: decision.ScheduleID}
	}

	return noChange
}

func (e *Engine) pidCommand(dev model.Device, sp model.Setpoint, z model.ZoneKey, now time.Time, noChange model.Command) model.Command {
	cands := pidCandidates(dev, sp, func(sensorName string) (float64, bool) {
		return e.sensors.Value(z, sensorName, now)
	})
	if len(cands) == 0 {
		return noChange
	}

	snap := e.configStore.Current()
	maxDelta := snap.UpdateInterval * MaxDeltaMultiple

	u, _, ok := e.pidBank.ComputeDevice(dev.Key, dev.Type, cands, now, controlDeadband, maxDelta)
	if !ok {
		return noChange
	}

	sched := e.pwmSchedulerFor(dev, snap)
	on, duty := sched.Evaluate(u, now)
	return model.Command{Device: dev.Key, State: on, DutyCyclePct: &duty, PIDOutputPct: &u, Reason: model.ReasonPID}
}

func (e *Engine) hysteresisCommand(dev model.Device, cur model.DeviceState, sp model.Setpoint, z model.ZoneKey, now time.Time, noChange model.Command) model.Command {
	kind, sensorName, setpoint, ok := hysteresisLaw(dev, sp)
	if !ok {
		return noChange
	}
	value, fresh := e.sensors.Value(z, sensorName, now)
	if !fresh {
		return noChange
	}
	on := hysteresis.Evaluate(kind, cur.State, value, setpoint, hysteresis.Deadbands{})
	return model.Command{Device: dev.Key, State: on, Reason: model.ReasonPID}
}

func (e *Engine) pwmSchedulerFor(dev model.Device, snap *config.Snapshot) *pwm.Scheduler {
	s, ok := e.pwmSchedulers[dev.Key]
	if !ok {
		period := dev.PWMPeriod
		if period <= 0 {
			period = pwm.DefaultPeriod
		}
		s = pwm.NewScheduler(period, snap.PWMMinOn, snap.PWMMinOff)
		e.pwmSchedulers[dev.Key] = s
	}
	return s
}

// commit applies final to hardware when it differs meaningfully from cur
// (spec §4.1 step 5), then always emits a best-effort automation_state row
// and, on a committed state change, a control_history transition (step 6).
func (e *Engine) commit(ctx context.Context, dev model.Device, final model.Command, cur model.DeviceState, now time.Time) {
	apply := final.State != cur.State || (dev.Dimmable && final.IntensityPct != nil && *final.IntensityPct != cur.IntensityPct)

	newState := cur
	if apply {
		res := e.relayMgr.Apply(ctx, final, now)
		if res.Err != nil {
			e.log.Warn().Err(res.Err).Str("device", dev.Key.String()).Msg("control: apply failed")
		} else {
			newState = res.State
			if e.writer != nil && newState.State != cur.State {
				e.writer.EnqueueTransition(persistence.Transition{
					Device: dev.Key, Seq: newState.Seq, Timestamp: now,
					OldState: cur.State, NewState: newState.State,
					Reason: final.Reason, RuleID: final.RuleID, ScheduleID: final.ScheduleID,
				}, now)
			}
		}
	}

	if e.writer != nil {
		e.writer.EnqueueSnapshot(persistence.AutomationSnapshot{
			Device: dev.Key, Timestamp: now, State: newState.State, Mode: cur.Mode,
			DutyCycle: final.DutyCyclePct, PIDOutput: final.PIDOutputPct, RuleID: final.RuleID, ScheduleID: final.ScheduleID, Reason: final.Reason,
		}, now)
	}
}
