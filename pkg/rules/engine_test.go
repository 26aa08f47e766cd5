package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

type fakeSensors struct {
	values map[string]float64
	fresh  map[string]bool
}

func (f *fakeSensors) Value(zone model.ZoneKey, name string, now time.Time) (float64, bool) {
	return f.values[name], f.fresh[name]
}

type fakeGate struct{ active map[int64]bool }

func (g *fakeGate) Active(id int64, now time.Time) bool { return g.active[id] }

func zone() model.ZoneKey { return model.ZoneKey{Location: "gh1", Cluster: "a"} }

func TestHighestPriorityRuleWins(t *testing.T) {
	sensors := &fakeSensors{values: map[string]float64{"temp": 31}, fresh: map[string]bool{"temp": true}}
	e := NewEngine(sensors, nil)

	rules := []model.Rule{
		{ID: 1, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 10},
		{ID: 2, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 29, ActionDevice: "fan_1", ActionState: false, Priority: 50},
	}

	decisions := e.Evaluate(rules, zone(), time.Now())
	require.Equal(t, Decision{State: false, RuleID: 2}, decisions["fan_1"])
}

func TestTieBreaksByLowestRuleID(t *testing.T) {
	sensors := &fakeSensors{values: map[string]float64{"temp": 31}, fresh: map[string]bool{"temp": true}}
	e := NewEngine(sensors, nil)

	rules := []model.Rule{
		{ID: 5, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 20},
		{ID: 2, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: false, Priority: 20},
	}

	decisions := e.Evaluate(rules, zone(), time.Now())
	require.Equal(t, int64(2), decisions["fan_1"].RuleID)
}

func TestStaleSensorExcludesRule(t *testing.T) {
	sensors := &fakeSensors{values: map[string]float64{"temp": 31}, fresh: map[string]bool{"temp": false}}
	e := NewEngine(sensors, nil)

	rules := []model.Rule{
		{ID: 1, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 10},
	}
	decisions := e.Evaluate(rules, zone(), time.Now())
	require.Empty(t, decisions)
}

func TestScheduleGateExcludesUngatedRule(t *testing.T) {
	sensors := &fakeSensors{values: map[string]float64{"temp": 31}, fresh: map[string]bool{"temp": true}}
	gate := &fakeGate{active: map[int64]bool{1: false}}
	e := NewEngine(sensors, gate)

	sid := int64(1)
	rules := []model.Rule{
		{ID: 1, Enabled: true, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 10, ScheduleID: &sid},
	}
	decisions := e.Evaluate(rules, zone(), time.Now())
	require.Empty(t, decisions)
}

func TestDisabledAndOtherZoneRulesIgnored(t *testing.T) {
	sensors := &fakeSensors{values: map[string]float64{"temp": 31}, fresh: map[string]bool{"temp": true}}
	e := NewEngine(sensors, nil)

	other := model.ZoneKey{Location: "gh2", Cluster: "a"}
	rules := []model.Rule{
		{ID: 1, Enabled: false, Zone: zone(), ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 10},
		{ID: 2, Enabled: true, Zone: other, ConditionSensor: "temp", ConditionOperator: model.OpGT, ConditionValue: 30, ActionDevice: "fan_1", ActionState: true, Priority: 10},
	}
	decisions := e.Evaluate(rules, zone(), time.Now())
	require.Empty(t, decisions)
}
