package tasks

import (
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for generation runs. It implements [tools.Observer].
type Metrics struct {
	ToolCalls      *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec
	TracksAccepted *prometheus.CounterVec
	Tiers          *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtape",
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mixtape",
			Name:      "tool_duration_seconds",
			Help:      "Tool call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"tool"}),
		TracksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtape",
			Name:      "tracks_accepted_total",
			Help:      "Tracks that passed the post-filter, by tool.",
		}, []string{"tool"}),
		Tiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtape",
			Name:      "fallback_tiers_total",
			Help:      "Fallback tiers entered, by phase.",
		}, []string{"phase"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixtape",
			Name:      "runs_total",
			Help:      "Generation runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mixtape",
			Name:      "run_duration_seconds",
			Help:      "End-to-end generation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ToolCalls, m.ToolDuration, m.TracksAccepted, m.Tiers, m.Runs, m.RunDuration)
	}
	return m
}

func (m *Metrics) ToolFinished(tool models.ToolName, tracks int, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(string(tool), outcome).Inc()
	m.ToolDuration.WithLabelValues(string(tool)).Observe(elapsed.Seconds())
	if err == nil && tool != models.ToolAdjustDistribution {
		m.TracksAccepted.WithLabelValues(string(tool)).Add(float64(tracks))
	}
}

// TierEntered counts a fallback tier.
func (m *Metrics) TierEntered(phase Phase) {
	m.Tiers.WithLabelValues(phase.String()).Inc()
}

// RunFinished records a run's outcome: done, fallback or failed.
func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
