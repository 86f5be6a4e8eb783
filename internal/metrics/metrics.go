// Package metrics exposes campaign progress as Prometheus collectors.
//
// Collectors are registered on the Registerer passed to New so that several
// campaigns, and tests, can hold isolated registries. A nil *Campaign is a
// valid no-op recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clonebo"

// Candidate outcomes.
const (
	OutcomeProposed      = "proposed"
	OutcomeInvalid       = "invalid"
	OutcomeDuplicate     = "duplicate"
	OutcomeEncodingError = "encoding_error"
	OutcomeSelected      = "selected"
	OutcomeEvaluated     = "evaluated"
)

type Campaign struct {
	RoundsTotal      *prometheus.CounterVec
	OracleCallsTotal prometheus.Counter
	CandidatesTotal  *prometheus.CounterVec
	BestFitness      prometheus.Gauge
	RoundDuration    prometheus.Histogram
	PartialRounds    prometheus.Counter
}

func New(reg prometheus.Registerer) *Campaign {
	factory := promauto.With(reg)
	return &Campaign{
		RoundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Completed optimization rounds by mode.",
		}, []string{"mode"}),
		OracleCallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_evaluations_total",
			Help:      "Sequences submitted to the fitness oracle.",
		}),
		CandidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates by pipeline outcome.",
		}, []string{"outcome"}),
		BestFitness: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Highest oracle fitness observed so far.",
		}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of one optimization round.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600, 3600},
		}),
		PartialRounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_rounds_total",
			Help:      "Rounds in which the oracle returned fewer results than requested.",
		}),
	}
}

func (m *Campaign) Candidates(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(outcome).Add(float64(n))
}

func (m *Campaign) OracleCalls(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OracleCallsTotal.Add(float64(n))
}

// Round records a finished round. coldStart selects the mode label.
func (m *Campaign) Round(coldStart, partial bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	mode := "surrogate"
	if coldStart {
		mode = "cold_start"
	}
	m.RoundsTotal.WithLabelValues(mode).Inc()
	m.RoundDuration.Observe(elapsed.Seconds())
	if partial {
		m.PartialRounds.Inc()
	}
}

func (m *Campaign) Best(fitness float64) {
	if m == nil {
		return
	}
	m.BestFitness.Set(fitness)
}
