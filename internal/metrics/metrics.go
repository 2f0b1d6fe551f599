// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the tubescribe daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broadcast

	// SubscribersActive tracks the number of currently attached stream clients.
	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubescribe_broadcast_subscribers",
		Help: "Current number of attached broadcast subscribers.",
	})

	// BroadcastChunksTotal counts published audio chunks.
	BroadcastChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubescribe_broadcast_chunks_total",
		Help: "Total number of audio chunks published to the broadcaster.",
	})

	// BroadcastDropsTotal counts chunks dropped by the slow-consumer policy.
	BroadcastDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubescribe_broadcast_drops_total",
		Help: "Total number of chunks dropped from slow subscriber queues.",
	})

	// Ingest

	// IngestStartTotal counts ingest session starts by result.
	IngestStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_ingest_start_total",
		Help: "Total number of ingest session starts, by result.",
	}, []string{"result"})

	// IngestExitTotal counts ingest session exits by reason.
	IngestExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_ingest_exit_total",
		Help: "Total number of ingest session exits, by reason (eof/stopped/error).",
	}, []string{"reason"})

	// PrefetchTotal counts pre-fetch warm attempts by result.
	PrefetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_prefetch_total",
		Help: "Total number of capture pre-fetch attempts, by result.",
	}, []string{"result"})

	// Process supervision

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_proc_terminate_total",
		Help: "Total number of child process termination signals, by signal and outcome.",
	}, []string{"signal", "outcome"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_proc_wait_total",
		Help: "Total number of child process wait results, by category.",
	}, []string{"category"})

	// Jobs

	// JobTransitionsTotal counts job state transitions.
	JobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_job_transitions_total",
		Help: "Total number of job state transitions, by target state.",
	}, []string{"state"})

	// JobRetriesTotal counts provider-call retries inside job stages.
	JobRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_job_retries_total",
		Help: "Total number of stage retries, by stage.",
	}, []string{"stage"})

	// JobsPending tracks the depth of the job queue.
	JobsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tubescribe_jobs_pending",
		Help: "Current number of jobs waiting for the worker.",
	})

	// Retention

	// RetentionDeletesTotal counts capture files deleted by LRU retention.
	RetentionDeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tubescribe_retention_deletes_total",
		Help: "Total number of capture files deleted by retention.",
	})

	// Providers

	// ProviderRequestsTotal counts external provider calls by provider and outcome.
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tubescribe_provider_requests_total",
		Help: "Total number of external provider requests, by provider and outcome.",
	}, []string{"provider", "outcome"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, outcome string) {
	ProcTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records a child process wait result.
func IncProcWait(category string) {
	ProcWaitTotal.WithLabelValues(category).Inc()
}

// RecordJobTransition records a job state transition.
func RecordJobTransition(state string) {
	JobTransitionsTotal.WithLabelValues(state).Inc()
}
