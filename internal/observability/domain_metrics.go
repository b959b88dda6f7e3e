package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LLM call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeMalformed   = "malformed"
	OutcomeCanceled    = "canceled"
)

var (
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_llm_calls_total",
			Help: "Total number of language model calls by call site and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_llm_call_duration_seconds",
			Help:    "Language model call latency by call site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"kind"},
	)
	degradedParsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_degraded_parses_total",
			Help: "Model answers that did not match the expected shape and produced an empty or partial result.",
		},
		[]string{"kind"},
	)
	gateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_sql_gate_rejections_total",
			Help: "Statements rejected by the read-only SQL gate by reason.",
		},
		[]string{"reason"},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_auth_failures_total",
			Help: "Requests rejected by API key authentication by reason.",
		},
		[]string{"reason"},
	)
	sampledRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_sampler_input_rows",
			Help:    "Row count of tables handed to the diversity sampler.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		},
	)
	sampleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_sampler_duration_seconds",
			Help:    "Diversity sampler latency.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)
	warehouseQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_warehouse_query_duration_seconds",
			Help:    "Warehouse statement latency by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		llmCallsTotal,
		llmCallDurationSeconds,
		degradedParsesTotal,
		gateRejectionsTotal,
		authFailuresTotal,
		sampledRows,
		sampleDurationSeconds,
		warehouseQueryDurationSeconds,
	)
}

func ObserveLLMCall(kind, outcome string, elapsed time.Duration) {
	llmCallsTotal.WithLabelValues(kind, outcome).Inc()
	llmCallDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func IncrementDegradedParse(kind string) {
	degradedParsesTotal.WithLabelValues(kind).Inc()
}

func IncrementGateRejection(reason string) {
	gateRejectionsTotal.WithLabelValues(reason).Inc()
}

func IncrementAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

// AuthFailuresCounter exposes one reason's counter for tests.
func AuthFailuresCounter(reason string) prometheus.Counter {
	return authFailuresTotal.WithLabelValues(reason)
}

func ObserveSample(inputRows int, elapsed time.Duration) {
	if inputRows < 0 {
		inputRows = 0
	}
	sampledRows.Observe(float64(inputRows))
	sampleDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveWarehouseQuery(operation string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = "error"
	}
	warehouseQueryDurationSeconds.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}
