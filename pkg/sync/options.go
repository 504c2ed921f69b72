// Package sync runs reconciliation jobs end to end: it reads the
// destination snapshot, fetches and merges source records, fingerprints and
// diffs them, then dispatches the resulting writes in paced chunks.
package sync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/dispatch"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/retry"
)

// Options controls a sync run.
type Options struct {
	// Orchestration control
	DryRun  bool          // Diff and report without writing
	Timeout time.Duration // Timeout for the entire run (zero means none)

	// Write pacing
	ChunkSize  int           // Maximum writes per destination call
	BatchPause time.Duration // Pause between consecutive chunks

	// Source paging
	PageSize int // Records requested per source page

	// Remote call retry
	Retry retry.Policy

	// Identity matching
	FoldIdentity bool // Match identities case-insensitively

	// Collaborators
	Hooks   *Hooks
	Logger  *zerolog.Logger
	Clock   func() time.Time
	Sleeper dispatch.Sleeper
}

// Apply applies the given options to the sync options.
func (s *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the default sync options.
func Defaults() *Options {
	return &Options{
		DryRun:     false,
		Timeout:    0,
		ChunkSize:  constants.DefaultChunkSize,
		BatchPause: constants.DefaultBatchPause,
		PageSize:   constants.DefaultPageSize,
		Retry:      retry.DefaultPolicy(),
		Hooks:      NewHooks(),
		Logger:     logging.Default(),
		Clock:      time.Now,
		Sleeper:    dispatch.Sleep,
	}
}

// Option is a function that configures sync Options.
type Option func(*Options)

// Validate checks if the sync options are valid.
func (s *Options) Validate() error {
	if s.Timeout < 0 {
		return &errors.ValidationError{
			Field:   "Timeout",
			Value:   s.Timeout,
			Message: "timeout must be non-negative",
		}
	}
	if s.ChunkSize <= 0 {
		return &errors.ValidationError{
			Field:   "ChunkSize",
			Value:   s.ChunkSize,
			Message: "chunk size must be positive",
		}
	}
	if s.BatchPause < 0 {
		return &errors.ValidationError{
			Field:   "BatchPause",
			Value:   s.BatchPause,
			Message: "batch pause must be non-negative",
		}
	}
	if s.PageSize <= 0 || s.PageSize > constants.MaxPageSize {
		return &errors.ValidationError{
			Field:   "PageSize",
			Value:   s.PageSize,
			Message: "page size out of range",
		}
	}
	return s.Retry.Validate()
}

// WithDryRun configures dry run mode.
func WithDryRun(dryRun bool) Option {
	return func(opts *Options) {
		opts.DryRun = dryRun
	}
}

// WithTimeout configures the run timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithChunkSize configures the maximum number of writes per chunk.
func WithChunkSize(n int) Option {
	return func(opts *Options) {
		opts.ChunkSize = n
	}
}

// WithBatchPause configures the pause between chunks.
func WithBatchPause(d time.Duration) Option {
	return func(opts *Options) {
		opts.BatchPause = d
	}
}

// WithPageSize configures the source page size.
func WithPageSize(n int) Option {
	return func(opts *Options) {
		opts.PageSize = n
	}
}

// WithRetryPolicy configures retry for every remote call in the run.
func WithRetryPolicy(p retry.Policy) Option {
	return func(opts *Options) {
		opts.Retry = p
	}
}

// WithFoldIdentity configures case-insensitive identity matching.
func WithFoldIdentity(fold bool) Option {
	return func(opts *Options) {
		opts.FoldIdentity = fold
	}
}

// WithHooks configures the hooks notified during the run.
func WithHooks(h *Hooks) Option {
	return func(opts *Options) {
		if h != nil {
			opts.Hooks = h
		}
	}
}

// WithLogger configures the run logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(opts *Options) {
		if l != nil {
			opts.Logger = l
		}
	}
}

// WithClock configures the time source for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		if now != nil {
			opts.Clock = now
		}
	}
}

// WithSleeper configures how the run waits between chunks.
func WithSleeper(s dispatch.Sleeper) Option {
	return func(opts *Options) {
		if s != nil {
			opts.Sleeper = s
		}
	}
}
