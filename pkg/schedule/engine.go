package schedule

import (
	"sort"
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/photoperiod"
)

// Decision is the schedule step's verdict for one device (spec §4.1.3.3).
type Decision struct {
	State      bool
	ScheduleID *int64

	// IntensityPct is set when the active schedule drives a dimmable light
	// directly (Schedule.TargetIntensityPct configured) rather than through
	// the photoperiod engine: the schedule's own ramp-up/ramp-down window is
	// evaluated the same way a zone's configured photoperiod is.
	IntensityPct *float64
}

// Engine evaluates schedule windows for a device.
type Engine struct{}

// NewEngine constructs a Schedule Engine. It is stateless; schedules are
// supplied per call.
func NewEngine() *Engine { return &Engine{} }

// Evaluate returns the schedule decision for device at time now. ok is
// false when the device has no configured schedules at all, meaning this
// arbitration step does not apply and the caller should fall through to
// PID/default (spec §4.1.3, step order).
func (e *Engine) Evaluate(schedules []model.Schedule, device model.DeviceKey, now time.Time) (Decision, bool) {
	tod := timeOfDay(now)
	wd := now.Weekday()

	var relevant []model.Schedule
	for _, s := range schedules {
		if s.Device == device {
			relevant = append(relevant, s)
		}
	}
	if len(relevant) == 0 {
		return Decision{}, false
	}

	var active []model.Schedule
	for _, s := range relevant {
		if s.ActiveAt(tod, wd) {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return Decision{State: false}, true
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	winner := active[0]
	dec := Decision{State: true, ScheduleID: &winner.ID}

	if winner.TargetIntensityPct != nil {
		cfg, _ := photoperiod.Config{
			DayStart:           winner.StartTime,
			DayEnd:             winner.EndTime,
			RampUp:             winner.RampUpDuration,
			RampDown:           winner.RampDownDuration,
			TargetIntensityPct: *winner.TargetIntensityPct,
		}.Normalize()
		v := cfg.Intensity(tod)
		dec.IntensityPct = &v
	}

	return dec, true
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
