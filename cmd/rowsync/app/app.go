// Package app wires configuration, logging, secrets, and metrics into the
// rowsync commands.
package app

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/internal/metrics"
	"github.com/agentstation/rowsync/internal/secrets"
	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// App holds the configuration and the services shared by all commands.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
	flags  GlobalFlags

	metrics *metrics.SyncMetrics
	hooks   *rowsync.Hooks

	mu      sync.Mutex
	jobFile *jobs.File
	secrets jobs.SecretResolver
}

var _ application.Application = (*App)(nil)

// New creates an App with configuration loaded from the default locations.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		metrics: metrics.New(),
		hooks:   rowsync.NewHooks(),
	}
	app.metrics.Attach(app.hooks)

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Commit returns the git commit hash.
func (a *App) Commit() string { return a.commit }

// Date returns the build date.
func (a *App) Date() string { return a.date }

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string { return a.builtBy }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string { return a.config.Format }

// Metrics returns the run metrics collector.
func (a *App) Metrics() *metrics.SyncMetrics { return a.metrics }

// JobFile loads the job file once.
func (a *App) JobFile() (*jobs.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.jobFile != nil {
		return a.jobFile, nil
	}
	f, err := jobs.Load(a.config.JobsFile)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().Str("path", a.config.JobsFile).Int("jobs", len(f.Jobs)).Msg("Loaded job file")
	a.jobFile = f
	return f, nil
}

// Builder returns a job builder for f. An AWS Secrets Manager resolver is
// created the first time a file references secrets.
func (a *App) Builder(ctx context.Context, f *jobs.File) (*jobs.Builder, error) {
	opts := []jobs.BuilderOption{jobs.WithLogger(a.logger)}
	if f.NeedsSecrets() {
		r, err := a.secretResolver(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, jobs.WithSecrets(r))
	}
	return jobs.NewBuilder(f, opts...), nil
}

func (a *App) secretResolver(ctx context.Context) (jobs.SecretResolver, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.secrets != nil {
		return a.secrets, nil
	}
	r, err := secrets.NewAWSResolver(ctx, a.config.AWSRegion)
	if err != nil {
		return nil, err
	}
	a.secrets = r
	return r, nil
}

// SyncOptions returns engine options from configuration. Unset values keep
// the engine defaults.
func (a *App) SyncOptions() []rowsync.Option {
	c := a.config
	opts := []rowsync.Option{
		rowsync.WithLogger(a.logger),
		rowsync.WithHooks(a.hooks),
		rowsync.WithDryRun(c.DryRun),
		rowsync.WithFoldIdentity(c.FoldIdentity),
	}
	if c.ChunkSize > 0 {
		opts = append(opts, rowsync.WithChunkSize(c.ChunkSize))
	}
	if c.BatchPause > 0 {
		opts = append(opts, rowsync.WithBatchPause(c.BatchPause))
	}
	if c.PageSize > 0 {
		opts = append(opts, rowsync.WithPageSize(c.PageSize))
	}
	if c.Retry.MaxAttempts > 0 {
		opts = append(opts, rowsync.WithRetryPolicy(c.Retry))
	}
	if c.Timeout > 0 {
		opts = append(opts, rowsync.WithTimeout(c.Timeout))
	}
	return opts
}

// PublishMetrics pushes metrics to the configured Pushgateway and writes the
// configured textfile. Neither is required.
func (a *App) PublishMetrics(ctx context.Context, job string) error {
	var errs []error
	if url := a.config.Pushgateway; url != "" {
		if err := a.metrics.Push(ctx, url, job, constants.MetricsPushTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if path := a.config.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Option configures an App.
type Option func(*App) error

// WithConfig replaces the loaded configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger replaces the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithSecretResolver replaces the AWS secret resolver.
func WithSecretResolver(r jobs.SecretResolver) Option {
	return func(a *App) error {
		a.secrets = r
		return nil
	}
}
