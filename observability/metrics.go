package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stewardMetricsOnce sync.Once
	stewardRegistry    *StewardMetrics
)

// StewardMetrics wraps collectors tracking the payout steward's health.
type StewardMetrics struct {
	cycles        prometheus.Counter
	programs      *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	budgetLeft    *prometheus.GaugeVec
	payoutLatency prometheus.Histogram
}

// Steward exposes the lazily initialised metrics registry for stewardd.
func Steward() *StewardMetrics {
	stewardMetricsOnce.Do(func() {
		stewardRegistry = &StewardMetrics{
			cycles: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "cycles_total",
				Help:      "Count of orchestration cycles started.",
			}),
			programs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "programs_total",
				Help:      "Programs evaluated per cycle segmented by outcome.",
			}, []string{"outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "plan_rejections_total",
				Help:      "Plans rejected by policy verification segmented by failure code.",
			}, []string{"code"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "payouts_total",
				Help:      "On-chain payout attempts segmented by outcome.",
			}, []string{"outcome"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "settlements_total",
				Help:      "Cross-chain settlement attempts segmented by mode and outcome.",
			}, []string{"mode", "outcome"}),
			budgetLeft: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "program_budget_remaining_tokens",
				Help:      "Program budget left after the latest verified plan, in whole tokens.",
			}, []string{"program_id"}),
			payoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "cronosquity",
				Subsystem: "stewardd",
				Name:      "payout_latency_seconds",
				Help:      "Latency distribution for confirmed payouts.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			stewardRegistry.cycles,
			stewardRegistry.programs,
			stewardRegistry.rejections,
			stewardRegistry.payouts,
			stewardRegistry.settlements,
			stewardRegistry.budgetLeft,
			stewardRegistry.payoutLatency,
		)
	})
	return stewardRegistry
}

// RecordCycle counts a started orchestration cycle.
func (m *StewardMetrics) RecordCycle() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

// RecordProgram counts an evaluated program. Outcome should be a stable string
// such as "executed", "dry_run", "rejected", or "skipped".
func (m *StewardMetrics) RecordProgram(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.programs.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a plan rejection for the supplied failure code.
func (m *StewardMetrics) RecordRejection(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.rejections.WithLabelValues(code).Inc()
}

// RecordPayout counts a payout attempt with the supplied outcome.
func (m *StewardMetrics) RecordPayout(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.payoutLatency.Observe(duration.Seconds())
	}
}

// SetBudgetRemaining records how much of a program's budget is left after the
// latest verified plan, in whole tokens.
func (m *StewardMetrics) SetBudgetRemaining(programID string, tokens float64) {
	if m == nil {
		return
	}
	m.budgetLeft.WithLabelValues(programID).Set(tokens)
}

// RecordSettlement counts a cross-chain settlement attempt. Mode is "mock" or
// "real".
func (m *StewardMetrics) RecordSettlement(mode, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(mode, outcome).Inc()
}
