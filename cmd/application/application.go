// Package application defines what rowsync commands need from the running
// application.
//
// Commands accept the Application interface rather than the concrete App,
// so they can be tested against a Mock:
//
//	mock := &application.Mock{
//	    JobFileFunc: func() (*jobs.File, error) {
//	        return jobs.Load("testdata/jobs.yaml")
//	    },
//	}
//	cmd := list.NewCommand(mock)
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/internal/metrics"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// Application provides configuration and shared services to commands.
// All methods must be safe for concurrent use.
type Application interface {
	// JobFile returns the parsed job file named by --jobs or jobs_file.
	JobFile() (*jobs.File, error)

	// Builder returns a builder for f, with a secret resolver attached when
	// the file references secrets. The caller closes it.
	Builder(ctx context.Context, f *jobs.File) (*jobs.Builder, error)

	// SyncOptions returns engine options from configuration, with metrics
	// hooks attached.
	SyncOptions() []rowsync.Option

	// Metrics returns the run metrics collector.
	Metrics() *metrics.SyncMetrics

	// PublishMetrics pushes or writes metrics for job when configured.
	PublishMetrics(ctx context.Context, job string) error

	// Logger returns the configured logger.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
