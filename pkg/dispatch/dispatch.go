// Package dispatch submits write operations to a destination in bounded,
// paced chunks.
//
// Chunks are sent strictly in order, one at a time, with a pause between
// consecutive submissions. A failed chunk is recorded and dispatch moves on;
// every chunk's outcome ends up in the returned Outcome.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
)

// ApplyFunc submits one chunk and returns how many operations the
// destination reports as applied.
type ApplyFunc[T any] func(ctx context.Context, chunk []T) (int, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Dispatcher holds chunking and pacing settings.
type Dispatcher struct {
	chunkSize int
	pause     time.Duration
	sleep     Sleeper
	logger    *zerolog.Logger
	onChunk   func(ChunkResult)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkSize sets the maximum number of operations per chunk.
func WithChunkSize(n int) Option {
	return func(d *Dispatcher) { d.chunkSize = n }
}

// WithPause sets the pause between consecutive chunks.
func WithPause(p time.Duration) Option {
	return func(d *Dispatcher) { d.pause = p }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithLogger sets the logger for per-chunk events.
func WithLogger(l *zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithChunkHook registers a callback invoked after every chunk.
func WithChunkHook(fn func(ChunkResult)) Option {
	return func(d *Dispatcher) { d.onChunk = fn }
}

// New creates a Dispatcher with a 500-operation chunk size and a 100ms pause
// unless overridden.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		chunkSize: constants.DefaultChunkSize,
		pause:     constants.DefaultBatchPause,
		sleep:     Sleep,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chunkSize <= 0 {
		return nil, errors.NewValidationError("chunk_size", d.chunkSize, "must be positive")
	}
	if d.pause < 0 {
		return nil, errors.NewValidationError("pause", d.pause, "must not be negative")
	}
	return d, nil
}

// ChunkSize returns the configured chunk size.
func (d *Dispatcher) ChunkSize() int {
	return d.chunkSize
}

// Run submits ops in chunks through apply. A chunk that returns an error or
// applies nothing is recorded as failed and the next chunk is still sent.
// If ctx is cancelled, the current and remaining chunks are recorded as
// failed and the context error is returned along with the outcome.
func Run[T any](ctx context.Context, d *Dispatcher, label string, ops []T, apply ApplyFunc[T]) (*Outcome, error) {
	outcome := &Outcome{Label: label, Total: len(ops)}

	chunks, err := Chunk(ops, d.chunkSize)
	if err != nil {
		return outcome, err
	}
	outcome.Chunks = len(chunks)

	offset := 0
	for i, chunk := range chunks {
		if i > 0 && d.pause > 0 {
			if err := d.sleep(ctx, d.pause); err != nil {
				abandon(outcome, label, chunks[i:], i, offset, err)
				return outcome, err
			}
		}
		if err := ctx.Err(); err != nil {
			abandon(outcome, label, chunks[i:], i, offset, err)
			return outcome, err
		}

		applied, applyErr := apply(ctx, chunk)
		if applyErr == nil && applied == 0 {
			applyErr = errors.ErrNothingApplied
		}

		res := ChunkResult{Index: i, Offset: offset, Size: len(chunk), Applied: applied}
		if applyErr != nil {
			res.Err = errors.NewChunkError(label, i, len(chunk), applyErr)
			outcome.Failed = append(outcome.Failed, ChunkFailure{Index: i, Offset: offset, Size: len(chunk), Err: res.Err})
			d.logger.Error().
				Err(applyErr).
				Str("label", label).
				Int("chunk", i).
				Int("offset", offset).
				Int("size", len(chunk)).
				Msg("Chunk failed")
		} else {
			outcome.Applied += applied
			d.logger.Debug().
				Str("label", label).
				Int("chunk", i).
				Int("size", len(chunk)).
				Int("applied", applied).
				Msg("Chunk applied")
		}
		if d.onChunk != nil {
			d.onChunk(res)
		}
		offset += len(chunk)
	}

	return outcome, nil
}

// Sleep pauses for d, returning early with the context error if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
