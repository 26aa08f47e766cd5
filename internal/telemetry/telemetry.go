// Package telemetry exposes the control core's Prometheus metrics: tick
// duration, PID output per device, alarm counts, interlock pass counts, and
// DB write-buffer occupancy.
//
// Grounded on the retrieval pack's prometheus.NewGaugeVec/CounterVec +
// prometheus.MustRegister style (stapelberg-hmgo's ccu.go lastContact /
// packetsDecoded gauges and counters), generalized from one device-polling
// loop to the control core's tick/PID/alarm/interlock/DB surfaces.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every gauge/counter/histogram the control core emits.
type Metrics struct {
	TickDuration   prometheus.Histogram
	TickErrors     prometheus.Counter
	PIDOutput      *prometheus.GaugeVec // labels: zone, device
	DutyCycle      *prometheus.GaugeVec // labels: zone, device
	AlarmsRaised   *prometheus.CounterVec // labels: zone, class, severity
	InterlockPasses prometheus.Histogram
	DBBufferDepth  prometheus.Gauge
	PIDCoalesced   *prometheus.CounterVec // labels: device_type
	HardwareErrors *prometheus.CounterVec // labels: board, op
}

// New constructs and registers every metric against reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ceacore",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one control tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ceacore",
			Name:      "tick_errors_total",
			Help:      "Per-zone arbitration passes that failed with a recovered panic or error.",
		}),
		PIDOutput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ceacore",
			Name:      "pid_output_percent",
			Help:      "Most recent PID output (0-100%) per device.",
		}, []string{"zone", "device"}),
		DutyCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ceacore",
			Name:      "pwm_duty_cycle_percent",
			Help:      "Most recent PWM duty cycle (0-100%) per device.",
		}, []string{"zone", "device"}),
		AlarmsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceacore",
			Name:      "alarms_raised_total",
			Help:      "Alarms raised, by zone, class, and severity.",
		}, []string{"zone", "class", "severity"}),
		InterlockPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ceacore",
			Name:      "interlock_passes",
			Help:      "Number of interlock resolution passes per tick per zone.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		}),
		DBBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceacore",
			Name:      "db_write_buffer_depth",
			Help:      "Current depth of the persistence writer's in-memory queue.",
		}),
		PIDCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceacore",
			Name:      "pid_param_updates_coalesced_total",
			Help:      "PID parameter updates discarded in favor of a newer one within the rate-limit window.",
		}, []string{"device_type"}),
		HardwareErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceacore",
			Name:      "hardware_errors_total",
			Help:      "Hardware adapter call failures, by board and operation.",
		}, []string{"board", "op"}),
	}

	reg.MustRegister(
		m.TickDuration, m.TickErrors, m.PIDOutput, m.DutyCycle,
		m.AlarmsRaised, m.InterlockPasses, m.DBBufferDepth, m.PIDCoalesced, m.HardwareErrors,
	)
	return m
}

// Handler returns an HTTP handler serving reg's metrics in the Prometheus
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
