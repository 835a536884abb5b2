// Package telemetry holds the process-wide Prometheus metrics and the
// OpenTelemetry tracer shared by the proving pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Tracer is used for per-example spans in grounding and answering.
var Tracer = otel.Tracer("stochlog")

var (
	proofsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stochlog_proofs_total",
		Help: "Total proofs by prover and outcome",
	}, []string{"prover", "outcome"})

	proveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stochlog_prove_duration_seconds",
		Help:    "Prove duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
	}, []string{"prover"})

	nodesExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stochlog_proofgraph_nodes_expanded_total",
		Help: "Total proof-graph nodes whose outlinks were computed",
	})

	examplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stochlog_examples_total",
		Help: "Total grounded or answered examples by stage and result",
	}, []string{"stage", "result"})
)

// ObserveProof records one finished proof.
func ObserveProof(prover string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	proofsTotal.WithLabelValues(prover, outcome).Inc()
	proveDuration.WithLabelValues(prover).Observe(time.Since(started).Seconds())
}

// NodeExpanded counts one proof-graph expansion.
func NodeExpanded() { nodesExpanded.Inc() }

// Example counts one example outcome. stage is "ground" or "answer"; result
// is "ok", "skipped", "timeout" or "error".
func Example(stage, result string) { examplesTotal.WithLabelValues(stage, result).Inc() }
