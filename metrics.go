package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine internals exposed on /metrics.
var (
	metricEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_events_processed_total",
		Help: "Log lines successfully parsed, per tailed file.",
	}, []string{"file"})

	metricParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_parse_failures_total",
		Help: "Log lines that could not be parsed, per tailed file.",
	}, []string{"file"})

	metricRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_log_rotations_total",
		Help: "Detected truncations or rotations of tailed files.",
	}, []string{"file"})

	metricAlertsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suridash_alerts_inserted_total",
		Help: "Alert rows written to the database.",
	})

	metricAlertsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suridash_alerts_deduplicated_total",
		Help: "Alert events skipped because an identical row already exists.",
	})

	metricTaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_task_runs_total",
		Help: "Background task executions, per task.",
	}, []string{"task"})

	metricTaskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_task_errors_total",
		Help: "Background task executions that returned an error, per task.",
	}, []string{"task"})

	metricTaskPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_task_panics_total",
		Help: "Background task executions that panicked and were recovered, per task.",
	}, []string{"task"})

	metricProcessUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "suridash_process_running",
		Help: "1 when the supervised suricata process is running, 0 otherwise.",
	})

	metricRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "suridash_process_restarts_total",
		Help: "Automatic restart attempts after a detected crash.",
	})

	metricRetentionDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "suridash_retention_deleted_total",
		Help: "Rows removed by the retention sweep, per table.",
	}, []string{"table"})

	metricDBFallback = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "suridash_db_fallback_active",
		Help: "1 when the configured database was unreachable and the local sqlite fallback is in use.",
	})
)
