// Package metrics exposes sync run metrics through Prometheus. A run is a
// batch job, so metrics are pushed to a Pushgateway or written to a
// node-exporter textfile rather than scraped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/agentstation/rowsync/pkg/dispatch"
	"github.com/agentstation/rowsync/pkg/errors"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

const namespace = "rowsync"

// SyncMetrics holds the instruments for sync runs.
type SyncMetrics struct {
	registry *prometheus.Registry

	duration   *prometheus.HistogramVec
	records    *prometheus.GaugeVec
	planned    *prometheus.GaugeVec
	applied    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	chunks     *prometheus.CounterVec
	lastRun    *prometheus.GaugeVec
	lastStatus *prometheus.GaugeVec
}

// New creates SyncMetrics on a fresh registry.
func New() *SyncMetrics {
	m := &SyncMetrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"sync_job", "success"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records seen by the last run, by kind.",
		}, []string{"sync_job", "kind"}),
		planned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "planned_writes",
			Help:      "Writes planned by the last run.",
		}, []string{"sync_job", "op"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applied_writes_total",
			Help:      "Writes the destination acknowledged.",
		}, []string{"sync_job", "op"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_writes_total",
			Help:      "Writes in failed chunks.",
		}, []string{"sync_job", "op"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Dispatched chunks by outcome.",
		}, []string{"sync_job", "op", "outcome"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}, []string{"sync_job"}),
		lastStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run finished without failures.",
		}, []string{"sync_job"}),
	}
	m.registry.MustRegister(m.duration, m.records, m.planned, m.applied, m.failed, m.chunks, m.lastRun, m.lastStatus)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Attach registers the metrics on the run hooks.
func (m *SyncMetrics) Attach(h *rowsync.Hooks) {
	if m == nil || h == nil {
		return
	}
	h.OnChunk(m.RecordChunk)
	h.OnComplete(m.RecordResult)
}

// RecordChunk counts a dispatched chunk.
func (m *SyncMetrics) RecordChunk(job, op string, chunk dispatch.ChunkResult) {
	if m == nil {
		return
	}
	outcome := "applied"
	if chunk.Err != nil {
		outcome = "failed"
	}
	m.chunks.WithLabelValues(job, op, outcome).Inc()
}

// RecordResult records the report of a finished run.
func (m *SyncMetrics) RecordResult(r *rowsync.Result) {
	if m == nil || r == nil {
		return
	}
	s := r.Summary()
	success := !r.HasFailures()

	m.duration.WithLabelValues(r.Job, boolLabel(success)).Observe(r.Duration().Seconds())
	m.records.WithLabelValues(r.Job, "fetched").Set(float64(s.Fetched))
	m.records.WithLabelValues(r.Job, "snapshot").Set(float64(s.Snapshot))
	m.records.WithLabelValues(r.Job, "unchanged").Set(float64(s.Unchanged))
	m.records.WithLabelValues(r.Job, "skipped").Set(float64(s.Skipped))
	m.planned.WithLabelValues(r.Job, "insert").Set(float64(r.Inserts.Planned))
	m.planned.WithLabelValues(r.Job, "update").Set(float64(r.Updates.Planned))
	m.applied.WithLabelValues(r.Job, "insert").Add(float64(r.Inserts.Applied))
	m.applied.WithLabelValues(r.Job, "update").Add(float64(r.Updates.Applied))
	m.failed.WithLabelValues(r.Job, "insert").Add(float64(len(r.Inserts.Failed)))
	m.failed.WithLabelValues(r.Job, "update").Add(float64(len(r.Updates.Failed)))
	m.lastRun.WithLabelValues(r.Job).Set(float64(r.FinishedAt.Unix()))
	m.lastStatus.WithLabelValues(r.Job).Set(boolValue(success))
}

// Push sends the metrics to a Pushgateway under the given job name.
func (m *SyncMetrics) Push(ctx context.Context, gatewayURL, job string, timeout time.Duration) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return errors.WrapResource("push", "metrics", gatewayURL, err)
	}
	return nil
}

// WriteTextfile writes the metrics in text exposition format to path.
func (m *SyncMetrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
