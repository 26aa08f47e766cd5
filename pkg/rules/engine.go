package rules

import (
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/priority"
)

// SensorLookup resolves a fresh sensor value for rule condition evaluation.
// Implemented by internal/sensorcache.
type SensorLookup interface {
	Value(zone model.ZoneKey, sensorName string, now time.Time) (value float64, fresh bool)
}

// ScheduleGate reports whether a gating schedule is currently active.
type ScheduleGate interface {
	Active(scheduleID int64, now time.Time) bool
}

// Decision is the winning rule's verdict for one device.
type Decision struct {
	State  bool
	RuleID int64
}

// candidate wraps a matching Rule for priority.Highest; the rule's own
// priority convention (highest number wins) is inverted here since
// priority.Highest picks the lowest Priority() value.
type candidate struct {
	rule model.Rule
}

func (c candidate) Priority() int      { return -c.rule.Priority }
func (c candidate) TieBreakID() int64  { return c.rule.ID }

// Engine evaluates the rule set for a tick (spec §4.1.3.2, C9).
type Engine struct {
	sensors SensorLookup
	gate    ScheduleGate
}

// NewEngine constructs a Rules Engine backed by the given sensor lookup and
// schedule gate.
func NewEngine(sensors SensorLookup, gate ScheduleGate) *Engine {
	return &Engine{sensors: sensors, gate: gate}
}

// Evaluate returns the winning Decision per device name, for rules
// belonging to the given zone. Devices with no matching rule are absent
// from the result (the caller falls through to schedules/PID/default).
func (e *Engine) Evaluate(rules []model.Rule, zone model.ZoneKey, now time.Time) map[string]Decision {
	byDevice := make(map[string][]candidate)

	for _, r := range rules {
		if !r.Enabled || r.Zone != zone {
			continue
		}
		if r.ScheduleID != nil && (e.gate == nil || !e.gate.Active(*r.ScheduleID, now)) {
			continue
		}
		value, fresh := e.sensors.Value(zone, r.ConditionSensor, now)
		if !fresh {
			continue
		}
		if !r.ConditionOperator.Evaluate(value, r.ConditionValue) {
			continue
		}
		byDevice[r.ActionDevice] = append(byDevice[r.ActionDevice], candidate{rule: r})
	}

	out := make(map[string]Decision, len(byDevice))
	for device, cands := range byDevice {
		winner, ok := priority.Highest(cands)
		if !ok {
			continue
		}
		out[device] = Decision{State: winner.rule.ActionState, RuleID: winner.rule.ID}
	}
	return out
}
