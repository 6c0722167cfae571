package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Lifecycle metrics
	UnitsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aeon_units_total",
			Help: "Number of registered units by lifecycle state",
		},
		[]string{"state"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeon_lifecycle_transitions_total",
			Help: "Total number of lifecycle transitions by unit and target state",
		},
		[]string{"unit", "state"},
	)

	HooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeon_hooks_invoked_total",
			Help: "Total number of lifecycle hooks invoked by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	HookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aeon_hook_duration_seconds",
			Help:    "Hook execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// Scheduler metrics
	WavesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aeon_scheduler_waves_total",
			Help: "Total number of scheduler waves executed",
		},
	)

	WaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aeon_scheduler_wave_duration_seconds",
			Help:    "Wave execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UnitsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aeon_units_failed_total",
			Help: "Total number of units that entered the FAILED state",
		},
	)

	// State store metrics
	StateWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aeon_state_writes_total",
			Help: "Total number of durable state store writes",
		},
	)

	StateWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aeon_state_write_duration_seconds",
			Help:    "State store write duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Config metrics
	ConfigResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aeon_config_resolutions_total",
			Help: "Total number of config resolutions by source layer",
		},
		[]string{"source"},
	)
)

// Register registers all metrics with Prometheus
func Register() {
	prometheus.MustRegister(
		UnitsTotal,
		TransitionsTotal,
		HooksTotal,
		HookDuration,
		WavesTotal,
		WaveDuration,
		UnitsFailed,
		StateWrites,
		StateWriteDuration,
		ConfigResolutions,
	)
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration since the timer was created
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
