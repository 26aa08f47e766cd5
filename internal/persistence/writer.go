// Package persistence implements the Persistence Writer (spec §4.1 step 6,
// C14): it appends control_history and automation_state rows to the
// persistent store without ever blocking the control worker (spec §5:
// "the control worker is never blocked by DB — it enqueues and proceeds").
//
// Grounded on ManuGH-xg2g's internal/proxy.streamLimiter
// (golang.org/x/sync/semaphore.Weighted bounding concurrent stream
// connections): here a Weighted semaphore bounds concurrent DB write
// goroutines, and a simple ring buffer in front of it implements the
// spec's "bounded queue, drop-oldest beyond queue" back-pressure policy.
package persistence

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// DefaultQueueCapacity bounds the in-memory transition buffer (spec §5
// back-pressure: "if the DB transition buffer exceeds 80% capacity, raise
// db_loss ... at 100%, drop oldest").
const DefaultQueueCapacity = 10_000

// DefaultWorkers bounds concurrent DB write goroutines (spec §5: "a pool
// of I/O workers").
const DefaultWorkers = 4

// Sink is the persistent-store dependency the writer buffers against
// (implemented by internal/tsdb).
type Sink interface {
	AppendControlHistory(ctx context.Context, t Transition) error
	AppendAutomationState(ctx context.Context, s AutomationSnapshot) error
}

// Transition is one append-only control_history row (spec §3 DeviceState,
// I9: "strictly increasing ... every logged transition has old_state !=
// new_state").
type Transition struct {
	Device     model.DeviceKey
	Seq        uint64
	Timestamp  time.Time
	OldState   bool
	NewState   bool
	Reason     model.Reason
	RuleID     *int64
	ScheduleID *int64
}

// AutomationSnapshot is one best-effort automation_state row, appended for
// every device on every tick regardless of whether it changed (spec §4.1
// step 6).
type AutomationSnapshot struct {
	Device      model.DeviceKey
	Timestamp   time.Time
	State       bool
	Mode        model.Mode
	DutyCycle   *float64
	PIDOutput   *float64
	RuleID      *int64
	ScheduleID  *int64
	Reason      model.Reason
}

type job struct {
	transition *Transition
	snapshot   *AutomationSnapshot
}

// BufferUsageReporter receives the queue's fill fraction so the Alarm
// Manager can raise db_loss (spec §4.9 table).
type BufferUsageReporter interface {
	ReportDBBufferUsage(zone model.ZoneKey, fraction float64, now time.Time)
	ReportDBWriteSuccess(zone model.ZoneKey, now time.Time)
}

// Writer buffers writes in a bounded, drop-oldest queue and drains them
// through a weighted-semaphore-limited worker pool, so a stalled or
// unreachable DB never blocks the control worker (spec §4.1 step 6, §5).
type Writer struct {
	mu       sync.Mutex
	queue    []job
	capacity int

	sink  Sink
	sem   *semaphore.Weighted
	alarm BufferUsageReporter

	wg      sync.WaitGroup
	closing chan struct{}

	onSnapshot func(AutomationSnapshot)
}

// OnSnapshot registers a callback invoked with every automation_state row
// as it is enqueued (before the background write attempt), so telemetry
// can sample PID output and duty cycle without reading back from the DB.
func (w *Writer) OnSnapshot(fn func(AutomationSnapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSnapshot = fn
}

// NewWriter constructs a Writer over sink with the given queue capacity and
// worker concurrency (0 selects the spec defaults).
func NewWriter(sink Sink, alarm BufferUsageReporter, capacity, workers int) *Writer {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Writer{
		capacity: capacity,
		sink:     sink,
		alarm:    alarm,
		sem:      semaphore.NewWeighted(int64(workers)),
		closing:  make(chan struct{}),
	}
}

// EnqueueTransition buffers a control_history row for background write
// (spec §4.1 step 6 "transitions also append to control_history").
func (w *Writer) EnqueueTransition(t Transition, now time.Time) {
	w.enqueue(job{transition: &t}, t.Device.Zone, now)
}

// EnqueueSnapshot buffers an automation_state row (spec §4.1 step 6
// "append one row per device ... best-effort").
func (w *Writer) EnqueueSnapshot(s AutomationSnapshot, now time.Time) {
	w.mu.Lock()
	cb := w.onSnapshot
	w.mu.Unlock()
	if cb != nil {
		cb(s)
	}
	w.enqueue(job{snapshot: &s}, s.Device.Zone, now)
}

func (w *Writer) enqueue(j job, zone model.ZoneKey, now time.Time) {
	w.mu.Lock()
	if len(w.queue) >= w.capacity {
		// Drop-oldest beyond the bound (spec §5 back-pressure); the
		// snapshot stream is explicitly best-effort and never blocks
		// control.
		w.queue = w.queue[1:]
	}
	w.queue = append(w.queue, j)
	fraction := float64(len(w.queue)) / float64(w.capacity)
	w.mu.Unlock()

	if w.alarm != nil {
		w.alarm.ReportDBBufferUsage(zone, fraction, now)
	}

	w.wg.Add(1)
	go w.drainOne(zone, now)
}

func (w *Writer) drainOne(zone model.ZoneKey, now time.Time) {
	defer w.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.sem.Release(1)

	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	j := w.queue[0]
	w.queue = w.queue[1:]
	w.mu.Unlock()

	var err error
	if j.transition != nil {
		err = w.sink.AppendControlHistory(ctx, *j.transition)
	} else if j.snapshot != nil {
		err = w.sink.AppendAutomationState(ctx, *j.snapshot)
	}

	if err == nil && w.alarm != nil {
		w.alarm.ReportDBWriteSuccess(zone, now)
	}
}

// Flush blocks until every currently-enqueued job has been attempted.
// Intended for shutdown and for tests; not on the control worker's path.
func (w *Writer) Flush() {
	w.wg.Wait()
}

// Depth reports the current queue length, for telemetry.
func (w *Writer) Depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
