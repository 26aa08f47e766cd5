package failsafe

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

// Escalation windows (spec §4.9 alarm taxonomy).
const (
	DefaultMissingWarn     = 60 * time.Second
	DefaultMissingCritical = 5 * time.Minute
	DefaultSensorLossAfter = 2 * time.Minute
	DefaultClearHold       = 60 * time.Second
)

var (
	ErrAlarmNotFound      = errors.New("alarm not found")
	ErrFailsafeNotClearable = errors.New("zone failsafe conditions have not cleared")
)

// Config tunes the manager's escalation and clearing windows (spec §6,
// §4.9).
type Config struct {
	MissingWarn     time.Duration
	MissingCritical time.Duration
	SensorLossAfter time.Duration
	ClearHold       time.Duration
}

// DefaultConfig returns spec-default escalation windows.
func DefaultConfig() Config {
	return Config{
		MissingWarn:     DefaultMissingWarn,
		MissingCritical: DefaultMissingCritical,
		SensorLossAfter: DefaultSensorLossAfter,
		ClearHold:       DefaultClearHold,
	}
}

// State is a zone's position in the failsafe state machine (package doc).
type State uint8

const (
	StateNormal State = iota
	StateWarning
	StateFailsafe
	StateClearing
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWarning:
		return "WARNING"
	case StateFailsafe:
		return "FAILSAFE"
	case StateClearing:
		return "CLEARING"
	default:
		return "UNKNOWN"
	}
}

type sensorTrack struct {
	missingSince time.Time // zero if currently fresh
}

type hwTrack struct {
	consecutiveFailures int
}

type zoneTrack struct {
	state         State
	clearingSince time.Time

	sensors          map[string]*sensorTrack
	allSensorsBadSince time.Time // zero if at least one sensor is fresh

	alarms map[string]*model.Alarm // keyed by alarm class (+ detail for sensor_missing)
}

// Manager is the control core's Alarm / Failsafe Manager (C12). It owns
// every ZoneMode transition into and out of model.ZoneFailsafe.
type Manager struct {
	mu sync.Mutex

	cfg   Config
	zones *zone.Manager

	tracks map[model.ZoneKey]*zoneTrack

	// hwFailures counts consecutive adapter failures per "zone/board:channel".
	hwFailures map[string]int

	onAlarm func(a model.Alarm, raised bool)
}

// NewManager creates an alarm manager bound to a zone.Manager, which it will
// call SetMode(ZoneFailsafe|ZoneAuto, ...) on as conditions escalate/clear.
func NewManager(zones *zone.Manager, cfg Config) *Manager {
	return &Manager{cfg: cfg, zones: zones, tracks: make(map[model.ZoneKey]*zoneTrack)}
}

// OnAlarm registers a callback invoked whenever an alarm is raised (true) or
// cleared (false); used to wire telemetry/state-bus/tsdb writes.
func (m *Manager) OnAlarm(fn func(a model.Alarm, raised bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlarm = fn
}

func (m *Manager) track(z model.ZoneKey) *zoneTrack {
	t, ok := m.tracks[z]
	if !ok {
		t = &zoneTrack{state: StateNormal, sensors: make(map[string]*sensorTrack), alarms: make(map[string]*model.Alarm)}
		m.tracks[z] = t
	}
	return t
}

// ReportSensor records a single sensor's freshness for zone z at time now
// (spec §4.2/§4.9: sensor_missing per sensor, sensor_loss when every sensor
// in the zone is missing).
func (m *Manager) ReportSensor(z model.ZoneKey, sensorName string, fresh bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(z)
	s, ok := t.sensors[sensorName]
	if !ok {
		s = &sensorTrack{}
		t.sensors[sensorName] = s
	}

	if fresh {
		if !s.missingSince.IsZero() {
			s.missingSince = time.Time{}
			m.clearAlarm(z, alarmKey(model.AlarmSensorMissing, sensorName), now)
		}
	} else if s.missingSince.IsZero() {
		s.missingSince = now
	}

	anyFresh := false
	for _, st := range t.sensors {
		if st.missingSince.IsZero() {
			anyFresh = true
			break
		}
	}
	if anyFresh {
		t.allSensorsBadSince = time.Time{}
		m.clearAlarm(z, string(model.AlarmSensorLoss), now)
	} else if t.allSensorsBadSince.IsZero() {
		t.allSensorsBadSince = now
	}

	m.evaluateSensors(z, now)
}

func alarmKey(class model.AlarmClass, detail string) string {
	if detail == "" {
		return string(class)
	}
	return string(class) + ":" + detail
}

func (m *Manager) evaluateSensors(z model.ZoneKey, now time.Time) {
	t := m.track(z)

	for name, s := range t.sensors {
		if s.missingSince.IsZero() {
			continue
		}
		age := now.Sub(s.missingSince)
		switch {
		case age >= m.cfg.MissingCritical:
			m.raiseAlarm(z, model.AlarmSensorMissing, model.SeverityCritical, name,
				fmt.Sprintf("sensor %q missing for %s", name, age.Round(time.Second)), now)
		case age >= m.cfg.MissingWarn:
			m.raiseAlarm(z, model.AlarmSensorMissing, model.SeverityWarning, name,
				fmt.Sprintf("sensor %q missing for %s", name, age.Round(time.Second)), now)
		}
	}

	if !t.allSensorsBadSince.IsZero() && now.Sub(t.allSensorsBadSince) >= m.cfg.SensorLossAfter {
		m.raiseAlarm(z, model.AlarmSensorLoss, model.SeverityCritical, "",
			fmt.Sprintf("all sensors in zone %s missing for %s", z, now.Sub(t.allSensorsBadSince).Round(time.Second)), now)
	}

	m.recompute(z, now)
}

// ReportHardwareResult records the outcome of a hardware apply on
// (board, channel); three consecutive failures raise hardware_fault (spec
// §4.8, §4.9).
func (m *Manager) ReportHardwareResult(z model.ZoneKey, board string, channel int, ok bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s:%d", board, channel)
	m.track(z) // ensure the zone is tracked even before any failure
	if ok {
		if m.hwFailures != nil {
			delete(m.hwFailures, z.String()+"/"+key)
		}
		m.clearAlarm(z, alarmKey(model.AlarmHardwareFault, key), now)
		m.recompute(z, now)
		return
	}

	m.hwFailure(z, key, now)
}

func (m *Manager) hwFailure(z model.ZoneKey, key string, now time.Time) {
	if m.hwFailures == nil {
		m.hwFailures = make(map[string]int)
	}
	counterKey := z.String() + "/" + key
	m.hwFailures[counterKey]++
	if m.hwFailures[counterKey] >= 3 {
		m.raiseAlarm(z, model.AlarmHardwareFault, model.SeverityCritical, key,
			fmt.Sprintf("channel %s failed 3 consecutive applies", key), now)
	}
	m.recompute(z, now)
}

// ReportDBBufferUsage records the in-memory transition buffer occupancy
// (spec §4.9 db_loss, §5 back-pressure: warn at 80%, the caller drops
// oldest at 100% independently).
func (m *Manager) ReportDBBufferUsage(z model.ZoneKey, fraction float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fraction >= 0.8 {
		m.raiseAlarm(z, model.AlarmDBLoss, model.SeverityWarning, "",
			fmt.Sprintf("transition buffer %.0f%% full", fraction*100), now)
	} else {
		m.clearAlarm(z, string(model.AlarmDBLoss), now)
	}
}

// ReportDBWriteSuccess clears db_loss once a write succeeds (spec table).
func (m *Manager) ReportDBWriteSuccess(z model.ZoneKey, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearAlarm(z, string(model.AlarmDBLoss), now)
}

// ReportInterlockPasses records the pass count of one interlock resolution
// (spec §4.7); more than 8 raises interlock_cycle.
func (m *Manager) ReportInterlockPasses(z model.ZoneKey, passes int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if passes > 8 {
		m.raiseAlarm(z, model.AlarmInterlockCycle, model.SeverityWarning, "",
			fmt.Sprintf("interlock resolution exceeded 8 passes (%d)", passes), now)
	} else {
		m.clearAlarm(z, string(model.AlarmInterlockCycle), now)
	}
}

// ReportSetpointRejected raises an informational setpoint_out_of_range
// alarm (spec table: informational only, never forces failsafe).
func (m *Manager) ReportSetpointRejected(z model.ZoneKey, field string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raiseAlarm(z, model.AlarmSetpointOutOfRange, model.SeverityWarning, field,
		fmt.Sprintf("rejected setpoint write for %q", field), now)
}

func (m *Manager) raiseAlarm(z model.ZoneKey, class model.AlarmClass, sev model.AlarmSeverity, detail, msg string, now time.Time) {
	t := m.track(z)
	key := alarmKey(class, detail)
	if existing, ok := t.alarms[key]; ok && existing.IsActive() {
		existing.Severity = sev
		existing.Message = msg
		return
	}
	a := &model.Alarm{
		ID:       uuid.NewString(),
		Zone:     z,
		Class:    class,
		Severity: sev,
		Message:  msg,
		RaisedTS: now,
	}
	t.alarms[key] = a
	if m.onAlarm != nil {
		m.onAlarm(*a, true)
	}
}

func (m *Manager) clearAlarm(z model.ZoneKey, key string, now time.Time) {
	t := m.track(z)
	a, ok := t.alarms[key]
	if !ok || !a.IsActive() {
		return
	}
	cleared := now
	a.ClearedTS = &cleared
	if m.onAlarm != nil {
		m.onAlarm(*a, false)
	}
}

// isCriticalActive reports whether a failsafe-triggering condition
// (sensor_loss or hardware_fault, both critical) is currently active.
func (t *zoneTrack) isCriticalActive() bool {
	for _, a := range t.alarms {
		if !a.IsActive() {
			continue
		}
		if (a.Class == model.AlarmSensorLoss || a.Class == model.AlarmHardwareFault) && a.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

// recompute advances the zone's failsafe state machine and, when it
// crosses into or out of Failsafe, calls zone.Manager.SetMode.
func (m *Manager) recompute(z model.ZoneKey, now time.Time) {
	t := m.track(z)
	critical := t.isCriticalActive()

	switch t.state {
	case StateNormal, StateWarning:
		if critical {
			t.state = StateFailsafe
			_ = m.zones.SetMode(z, model.ZoneFailsafe, "alarm:critical")
		}
	case StateFailsafe:
		if !critical {
			t.state = StateClearing
			t.clearingSince = now
		}
	case StateClearing:
		if critical {
			t.state = StateFailsafe
			t.clearingSince = time.Time{}
			return
		}
		if now.Sub(t.clearingSince) >= m.cfg.ClearHold {
			t.state = StateNormal
			t.clearingSince = time.Time{}
			_ = m.zones.SetMode(z, model.ZoneAuto, "failsafe:cleared")
		}
	}
}

// State returns the zone's current failsafe state-machine position.
func (m *Manager) State(z model.ZoneKey) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track(z).state
}

// IsFailsafe reports whether the zone is currently forcing devices to their
// safe_state.
func (m *Manager) IsFailsafe(z model.ZoneKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track(z).state == StateFailsafe
}

// ActiveAlarms returns every currently-active alarm for a zone.
func (m *Manager) ActiveAlarms(z model.ZoneKey) []model.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(z)
	out := make([]model.Alarm, 0, len(t.alarms))
	for _, a := range t.alarms {
		if a.IsActive() {
			out = append(out, *a)
		}
	}
	return out
}

// AckAlarm records operator acknowledgement of an alarm (spec §6 ack_alarm,
// §12 supplemented feature): it stamps AcknowledgedTS/AcknowledgedBy but
// does not clear the alarm, matching the taxonomy table where clearing is
// always condition-driven.
func (m *Manager) AckAlarm(z model.ZoneKey, id, operator string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(z)
	for _, a := range t.alarms {
		if a.ID == id {
			a.AcknowledgedTS = &now
			a.AcknowledgedBy = operator
			return nil
		}
	}
	return ErrAlarmNotFound
}

// ClearFailsafe handles an operator-initiated clear (spec §4.9, §6
// clear_failsafe): it only succeeds if no critical alarm is currently
// active for the zone.
func (m *Manager) ClearFailsafe(z model.ZoneKey, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(z)
	if t.isCriticalActive() {
		return ErrFailsafeNotClearable
	}
	if t.state == StateNormal {
		return nil
	}
	t.state = StateNormal
	t.clearingSince = time.Time{}
	return m.zones.SetMode(z, model.ZoneAuto, "operator:clear_failsafe")
}
