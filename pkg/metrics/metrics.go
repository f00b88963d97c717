// Package metrics defines and registers Prometheus gauges and counters for
// queue depth per stage, DLQ depth, active LLM calls, evidence-counter
// writes, and outbox publish lag, and serves them through Handler. No
// package in this module updates these collectors, so they stay at zero.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codegraph_queue_depth",
			Help: "Pending jobs per queue",
		},
		[]string{"queue"},
	)

	DeadLetterDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codegraph_dead_letter_depth",
			Help: "Dead-lettered jobs per queue",
		},
		[]string{"queue"},
	)

	ActiveLLMCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegraph_active_llm_calls",
			Help: "LLM completions currently in flight",
		},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegraph_llm_calls_total",
			Help: "Completed LLM calls by outcome",
		},
		[]string{"outcome"}, // ok, retried, unparseable, error
	)

	OutboxPublishLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codegraph_outbox_publish_lag_seconds",
			Help:    "Time between an outbox row's creation and its publish",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvidenceRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegraph_evidence_recorded_total",
			Help: "Relationship evidence rows appended, by analysis pass",
		},
		[]string{"pass"},
	)

	FilesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codegraph_files_failed_total",
			Help: "Files that exhausted retries and were dead-lettered",
		},
	)

	GraphNodesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codegraph_graph_nodes_written_total",
			Help: "POI nodes MERGEd into GraphStore",
		},
	)

	GraphEdgesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codegraph_graph_edges_written_total",
			Help: "Relationship edges MERGEd into GraphStore",
		},
	)
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		DeadLetterDepth,
		ActiveLLMCalls,
		LLMCallsTotal,
		OutboxPublishLagSeconds,
		EvidenceRecorded,
		FilesFailedTotal,
		GraphNodesWritten,
		GraphEdgesWritten,
	)
}

// Handler returns the /metrics HTTP handler for cmd/codegraph to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
