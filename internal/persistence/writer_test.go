package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Phoenix5595/cea-automation-core/internal/testutil"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

type fakeAlarm struct {
	usageCalls []float64
	successes  int
}

func newFakeAlarm() *fakeAlarm { return &fakeAlarm{} }

func (f *fakeAlarm) ReportDBBufferUsage(_ model.ZoneKey, fraction float64, _ time.Time) {
	f.usageCalls = append(f.usageCalls, fraction)
}

func (f *fakeAlarm) ReportDBWriteSuccess(_ model.ZoneKey, _ time.Time) {
	f.successes++
}

func testDevice() model.DeviceKey {
	return model.DeviceKey{Zone: model.ZoneKey{Location: "veg", Cluster: "a"}, Name: "heater_1"}
}

func TestEnqueueSnapshotInvokesOnSnapshotHookSynchronously(t *testing.T) {
	w := NewWriter(testutil.NewFakeSink(), nil, 10, 1)

	var seen *AutomationSnapshot
	w.OnSnapshot(func(s AutomationSnapshot) { seen = &s })

	duty := 55.0
	w.EnqueueSnapshot(AutomationSnapshot{Device: testDevice(), DutyCycle: &duty, Reason: model.ReasonPID}, time.Now())

	require.NotNil(t, seen, "OnSnapshot callback must fire before EnqueueSnapshot returns")
	require.Equal(t, 55.0, *seen.DutyCycle)
}

func TestEnqueueDrainsThroughSink(t *testing.T) {
	sink := testutil.NewFakeSink()
	w := NewWriter(sink, nil, 10, 2)

	w.EnqueueSnapshot(AutomationSnapshot{Device: testDevice(), Reason: model.ReasonSchedule}, time.Now())
	w.Flush()

	_, snapshots := sink.Count()
	require.Equal(t, 1, snapshots)
}

func TestEnqueueReportsBufferUsageToAlarmManager(t *testing.T) {
	sink := testutil.NewFakeSink()
	alarm := newFakeAlarm()
	w := NewWriter(sink, alarm, 10, 2)

	w.EnqueueSnapshot(AutomationSnapshot{Device: testDevice(), Reason: model.ReasonSchedule}, time.Now())
	w.Flush()

	require.NotEmpty(t, alarm.usageCalls)
	require.Equal(t, 1, alarm.successes)
}

func TestEnqueueDropsOldestBeyondCapacity(t *testing.T) {
	sink := testutil.NewFakeSink()
	w := NewWriter(sink, nil, 2, 1)

	now := time.Now()
	for i := 0; i < 5; i++ {
		w.EnqueueTransition(Transition{Device: testDevice(), Seq: uint64(i)}, now)
	}
	w.Flush()

	require.LessOrEqual(t, w.Depth(), 2)
}
