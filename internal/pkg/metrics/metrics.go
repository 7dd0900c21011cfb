// Package metrics 定义撮合引擎的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "neighborly"

// Metrics 汇总引擎的所有计数器和直方图。
// 通过 Registerer 注入，测试中可以使用独立的 Registry。
type Metrics struct {
	MatchesCreated  *prometheus.CounterVec
	MatchDuplicates *prometheus.CounterVec
	SurveyDegraded  *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
	SweepFailures   prometheus.Counter
	LedgerAwards    *prometheus.CounterVec
	Closures        *prometheus.CounterVec
	PairsFlagged    prometheus.Counter
	WorkItems       *prometheus.CounterVec
	SideEffectFails *prometheus.CounterVec
}

// New 创建并注册全部指标。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MatchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches created, by strategy.",
		}, []string{"strategy"}),
		MatchDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_duplicates_total",
			Help:      "Match creations that hit the unique offer/need pair.",
		}, []string{"strategy"}),
		SurveyDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "survey_degraded_total",
			Help:      "Scores computed with at least one malformed survey.",
		}, []string{"component"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one community sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_pair_failures_total",
			Help:      "Pairs skipped in a sweep because match creation failed.",
		}),
		LedgerAwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_awards_total",
			Help:      "Reward award attempts, by result (awarded|duplicate).",
		}, []string{"result"}),
		Closures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_closures_total",
			Help:      "Match transitions, by resulting status.",
		}, []string{"status"}),
		PairsFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pair_flagged_total",
			Help:      "Closures whose member pair crossed the repetition threshold.",
		}),
		WorkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_total",
			Help:      "Consumed work items, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed (notify, channel).",
		}, []string{"effect"}),
	}

	reg.MustRegister(
		m.MatchesCreated,
		m.MatchDuplicates,
		m.SurveyDegraded,
		m.SweepDuration,
		m.SweepFailures,
		m.LedgerAwards,
		m.Closures,
		m.PairsFlagged,
		m.WorkItems,
		m.SideEffectFails,
	)
	return m
}

// NewNop 返回注册在一次性 Registry 上的指标，供测试使用。
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
