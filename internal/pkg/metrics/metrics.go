package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytradekey_signatures_total",
		Help: "Signing attempts by operation type and outcome",
	}, []string{"type", "outcome"})

	GuardRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytradekey_guard_rejects_total",
		Help: "Guard rejections by gate (blocked, rate, volume)",
	}, []string{"gate"})

	ValidationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytradekey_validation_rejects_total",
		Help: "Activity validation rejections by reason",
	}, []string{"reason"})

	SignerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytradekey_signer_errors_total",
		Help: "Remote signer call failures",
	})

	ReplayConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copytradekey_replay_conflicts_total",
		Help: "Replay-flag commits lost to a concurrent duplicate request",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "copytradekey_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
