package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/internal/metrics"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// Mock implements Application with overridable functions. Nil functions
// return zero values, a no-op logger, or a fresh builder.
type Mock struct {
	JobFileFunc        func() (*jobs.File, error)
	BuilderFunc        func(ctx context.Context, f *jobs.File) (*jobs.Builder, error)
	SyncOptionsFunc    func() []rowsync.Option
	MetricsFunc        func() *metrics.SyncMetrics
	PublishMetricsFunc func(ctx context.Context, job string) error
	LoggerFunc         func() *zerolog.Logger
	OutputFormatFunc   func() string
}

var _ Application = (*Mock)(nil)

// JobFile implements Application.
func (m *Mock) JobFile() (*jobs.File, error) {
	if m.JobFileFunc != nil {
		return m.JobFileFunc()
	}
	return &jobs.File{}, nil
}

// Builder implements Application.
func (m *Mock) Builder(ctx context.Context, f *jobs.File) (*jobs.Builder, error) {
	if m.BuilderFunc != nil {
		return m.BuilderFunc(ctx, f)
	}
	return jobs.NewBuilder(f, jobs.WithLogger(m.Logger())), nil
}

// SyncOptions implements Application.
func (m *Mock) SyncOptions() []rowsync.Option {
	if m.SyncOptionsFunc != nil {
		return m.SyncOptionsFunc()
	}
	return []rowsync.Option{rowsync.WithLogger(m.Logger())}
}

// Metrics implements Application.
func (m *Mock) Metrics() *metrics.SyncMetrics {
	if m.MetricsFunc != nil {
		return m.MetricsFunc()
	}
	return nil
}

// PublishMetrics implements Application.
func (m *Mock) PublishMetrics(ctx context.Context, job string) error {
	if m.PublishMetricsFunc != nil {
		return m.PublishMetricsFunc(ctx, job)
	}
	return nil
}

// Logger implements Application.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat implements Application.
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Version implements Application.
func (m *Mock) Version() string { return "test" }

// Commit implements Application.
func (m *Mock) Commit() string { return "unknown" }

// Date implements Application.
func (m *Mock) Date() string { return "unknown" }

// BuiltBy implements Application.
func (m *Mock) BuiltBy() string { return "test" }
