package control

import (
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// scheduleGate implements rules.ScheduleGate: a rule with a schedule_id
// gate is only eligible while that schedule is active (spec §4.1.3.2).
type scheduleGate struct {
	schedules []model.Schedule
}

func (g scheduleGate) Active(scheduleID int64, now time.Time) bool {
	tod := timeOfDay(now)
	wd := now.Weekday()
	for i := range g.schedules {
		if g.schedules[i].ID == scheduleID {
			return g.schedules[i].ActiveAt(tod, wd)
		}
	}
	return false
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
