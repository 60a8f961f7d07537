// Package metrics exposes the business counters to prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	transitions *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	reconciles  *prometheus.CounterVec
}

func NewRecorder(reg prometheus.Registerer, namespace string) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_transitions_total",
			Help:      "Payment intent state transitions.",
		}, []string{"strategy", "from", "to"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access decisions on gated content.",
		}, []string{"granted"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_intents_total",
			Help:      "Intents handled by the reconciler, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.transitions, r.decisions, r.reconciles)
	return r
}

func (r *Recorder) RecordTransition(strategy, from, to string) {
	if from == "" {
		from = "none"
	}
	r.transitions.WithLabelValues(strategy, from, to).Inc()
}

func (r *Recorder) RecordDecision(granted bool) {
	r.decisions.WithLabelValues(strconv.FormatBool(granted)).Inc()
}

func (r *Recorder) RecordReconcile(outcome string, n int) {
	if n > 0 {
		r.reconciles.WithLabelValues(outcome).Add(float64(n))
	}
}
