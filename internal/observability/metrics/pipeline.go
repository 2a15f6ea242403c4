// Package metrics provides the Prometheus collectors for trackid components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt outcomes.
const (
	OutcomeIdentified = "identified"
	OutcomeDuplicate  = "duplicate"
	OutcomeMiss       = "miss"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected"
)

// Pipeline phases.
const (
	PhaseGraph    = "graph"
	PhaseRecord   = "record"
	PhaseIdentify = "identify"
	PhaseTotal    = "total"
)

// PipelineMetrics tracks identification attempts.
type PipelineMetrics struct {
	Attempts          *prometheus.CounterVec
	Failures          *prometheus.CounterVec
	PhaseDuration     *prometheus.HistogramVec
	SampleSize        prometheus.Histogram
	TapDroppedBytes   prometheus.Counter
	HistoryEntries    prometheus.Gauge
	PlaybackConnected prometheus.Gauge
	SchedulerArmed    prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline collectors.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackid_attempts_total",
			Help: "Identification attempts by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackid_failures_total",
			Help: "Failed identification attempts by error category",
		}, []string{"category"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trackid_phase_duration_seconds",
			Help:    "Duration of pipeline phases",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
		}, []string{"phase"}),
		SampleSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trackid_sample_size_bytes",
			Help:    "Size of encoded samples submitted for recognition",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		TapDroppedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trackid_tap_dropped_bytes_total",
			Help: "PCM bytes dropped because the capture tap was full",
		}),
		HistoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackid_history_entries",
			Help: "Number of tracks in the in-memory history",
		}),
		PlaybackConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackid_playback_connected",
			Help: "1 when the stream is connected",
		}),
		SchedulerArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trackid_scheduler_armed",
			Help: "1 when auto-identify is armed",
		}),
	}
	collectors := []prometheus.Collector{
		m.Attempts, m.Failures, m.PhaseDuration, m.SampleSize,
		m.TapDroppedBytes, m.HistoryEntries, m.PlaybackConnected, m.SchedulerArmed,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
		}
	}
	return m, nil
}

func (m *PipelineMetrics) RecordAttempt(trigger, outcome string) {
	m.Attempts.WithLabelValues(trigger, outcome).Inc()
}

func (m *PipelineMetrics) RecordFailure(category string) {
	m.Failures.WithLabelValues(category).Inc()
}

func (m *PipelineMetrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *PipelineMetrics) ObserveSample(bytes int) {
	m.SampleSize.Observe(float64(bytes))
}

func (m *PipelineMetrics) AddTapDrops(n int) {
	m.TapDroppedBytes.Add(float64(n))
}

func (m *PipelineMetrics) SetHistorySize(n int) {
	m.HistoryEntries.Set(float64(n))
}

func (m *PipelineMetrics) SetConnected(connected bool) {
	m.PlaybackConnected.Set(boolToFloat(connected))
}

func (m *PipelineMetrics) SetSchedulerArmed(armed bool) {
	m.SchedulerArmed.Set(boolToFloat(armed))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
