package sync

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/agentstation/utc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/dispatch"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/fingerprint"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/reconcile"
	"github.com/agentstation/rowsync/pkg/record"
	"github.com/agentstation/rowsync/pkg/retry"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Run reconciles the job's sources against its destination table and
// writes the inserts and updates the diff produces.
//
// A fatal error while reading the snapshot or the sources aborts the run:
// the partial Result is returned together with a *errors.SyncError. Write
// failures never abort; they are reported per chunk in the Result.
func Run(ctx context.Context, job Job, opts ...Option) (*Result, error) {
	r, err := newRunner(job.Name, job.Table, job.Destination, opts)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := r.context(ctx)
	defer cancel()

	idLabel, _ := job.Mapping.Label(job.IdentityField)
	fpLabel, _ := job.Mapping.Label(job.FingerprintField)

	// FETCH_DESTINATION_SNAPSHOT
	rows, err := r.snapshot(ctx, job.Window)
	if err != nil {
		return r.abort(err)
	}
	entries := make([]reconcile.Entry, 0, len(rows))
	for _, row := range rows {
		id := destinations.CellText(row.Fields[idLabel])
		if id == nil || *id == "" {
			continue
		}
		entries = append(entries, reconcile.Entry{
			RowID:       row.RowID,
			Identity:    *id,
			Fingerprint: destinations.CellText(row.Fields[fpLabel]),
		})
	}
	snapshot := reconcile.FromEntries(entries)
	r.result.SnapshotEntries = snapshot.Len()
	r.result.DuplicateRows = snapshot.Duplicates()

	// FETCH_SOURCE_RECORDS
	batches, err := r.fetch(ctx, job.Sources, job.Filters)
	if err != nil {
		return r.abort(err)
	}
	merged := sources.Merge(job.IdentityField, batches...)
	r.result.SourceRecords = len(merged.Records)
	for id, n := range merged.Shadowed {
		r.result.Shadowed[id] = n
	}

	// NORMALIZE
	r.enter(StageNormalize)
	fields := withoutField(job.Mapping.Sources(), job.FingerprintField)
	stamped := make([]record.Record, len(merged.Records))
	for i, rec := range merged.Records {
		stamped[i] = rec.With(job.FingerprintField, fingerprint.Of(rec.Project(fields...)))
	}

	// RECONCILE
	r.enter(StageReconcile)
	var diffOpts []reconcile.Option
	if r.opts.FoldIdentity {
		diffOpts = append(diffOpts, reconcile.WithFoldIdentity())
	}
	diff := reconcile.Diff(stamped, snapshot, job.IdentityField, job.FingerprintField, diffOpts...)
	diff.Log(r.logger)
	r.result.Unchanged = len(diff.Unchanged)
	for _, s := range diff.Skipped {
		r.result.Skipped = append(r.result.Skipped, Skipped{Index: s.Index, Identity: s.Identity, Reason: reason(s.Err)})
	}

	inserts := make([]destinations.Fields, len(diff.ToInsert))
	insertIDs := make([]string, len(diff.ToInsert))
	for i, ins := range diff.ToInsert {
		inserts[i] = job.Mapping.Apply(ins.Record)
		insertIDs[i] = ins.Identity
	}
	updates := make([]destinations.RowUpdate, len(diff.ToUpdate))
	updateIDs := make([]string, len(diff.ToUpdate))
	for i, up := range diff.ToUpdate {
		updates[i] = destinations.RowUpdate{RowID: up.RowID, Fields: job.Mapping.Apply(up.Record)}
		updateIDs[i] = up.Identity
	}
	r.result.Inserts.Planned = len(inserts)
	r.result.Updates.Planned = len(updates)

	// DISPATCH_INSERTS
	r.enter(StageDispatchInserts)
	if err := r.dispatchInserts(ctx, inserts, insertIDs); err != nil {
		if !r.opts.DryRun {
			r.result.Updates.Failed = append(r.result.Updates.Failed, updateIDs...)
		}
		return r.abort(err)
	}

	// DISPATCH_UPDATES
	r.enter(StageDispatchUpdates)
	if err := r.dispatchUpdates(ctx, updates, updateIDs); err != nil {
		return r.abort(err)
	}

	return r.finish(), nil
}

// runner carries the state shared by the stages of one run.
type runner struct {
	opts   *Options
	job    string
	table  string
	dest   destinations.Destination
	logger *zerolog.Logger
	result *Result
}

func newRunner(job, table string, dest destinations.Destination, opts []Option) (*runner, error) {
	o := Defaults().Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.Must(uuid.NewV7()).String()
	result := newResult(runID, job, o.DryRun, o.Clock())
	result.Table = table
	return &runner{
		opts:   o,
		job:    job,
		table:  table,
		dest:   dest,
		logger: logging.ForRun(o.Logger, runID, job, table),
		result: result,
	}, nil
}

func (r *runner) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = logging.WithRunID(logging.WithLogger(ctx, r.logger), r.result.RunID)
	if r.opts.Timeout > 0 {
		return context.WithTimeout(ctx, r.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (r *runner) enter(stage Stage) {
	r.result.Stage = stage
	r.logger.Debug().Str("stage", stage.String()).Msg("Entering stage")
	r.opts.Hooks.stage(r.job, stage)
}

// snapshot resolves the table and reads the destination rows.
func (r *runner) snapshot(ctx context.Context, window *destinations.Window) ([]destinations.Row, error) {
	r.enter(StageSnapshot)
	if resolver, ok := r.dest.(destinations.Resolver); ok {
		table, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (string, error) {
			return resolver.ResolveTable(ctx, r.table)
		}, r.retryOptions("resolve "+r.table)...)
		if err != nil {
			return nil, err
		}
		if table != r.table {
			r.logger.Debug().Str("table_id", table).Msg("Resolved table")
			r.result.TableID = table
		}
		r.table = table
	}

	rows, err := r.listRows(ctx, window)
	if err != nil {
		return nil, err
	}
	r.result.SnapshotRows = len(rows)
	r.logger.Info().
		Str("destination", r.dest.ID()).
		Int("rows", len(rows)).
		Msg("Read destination snapshot")
	return rows, nil
}

// fetch pages every source in priority order.
func (r *runner) fetch(ctx context.Context, srcs []sources.Source, filters map[string]string) ([]sources.Batch, error) {
	r.enter(StageFetch)
	batches := make([]sources.Batch, 0, len(srcs))
	for _, src := range srcs {
		recs, err := sources.Paginate(ctx, src, sources.PaginateOptions{
			PageSize: r.opts.PageSize,
			Filters:  filters,
			Retry:    r.opts.Retry,
			Logger:   r.logger,
		})
		if err != nil {
			return nil, err
		}
		r.result.Fetched[src.ID()] = len(recs)
		r.logger.Info().
			Str("source", src.ID().String()).
			Int("records", len(recs)).
			Msg("Fetched source records")
		batches = append(batches, sources.Batch{Source: src.ID(), Records: recs})
	}
	return batches, nil
}

func (r *runner) dispatcher(label string) (*dispatch.Dispatcher, error) {
	size := r.opts.ChunkSize
	if limit := r.dest.MaxBatchSize(); limit > 0 && limit < size {
		size = limit
	}
	return dispatch.New(
		dispatch.WithChunkSize(size),
		dispatch.WithPause(r.opts.BatchPause),
		dispatch.WithSleeper(r.opts.Sleeper),
		dispatch.WithLogger(r.logger),
		dispatch.WithChunkHook(func(res dispatch.ChunkResult) {
			r.opts.Hooks.chunk(r.job, label, res)
		}),
	)
}

func (r *runner) dispatchInserts(ctx context.Context, ops []destinations.Fields, ids []string) error {
	if r.opts.DryRun || len(ops) == 0 {
		return nil
	}
	d, err := r.dispatcher("insert")
	if err != nil {
		return err
	}
	outcome, err := dispatch.Run(ctx, d, "insert", ops, func(ctx context.Context, chunk []destinations.Fields) (int, error) {
		return retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (int, error) {
			return r.dest.ApplyInserts(ctx, r.table, chunk)
		}, r.retryOptions("insert "+r.table)...)
	})
	r.result.Inserts = tally(r.result.Inserts, outcome, ids)
	return err
}

func (r *runner) dispatchUpdates(ctx context.Context, ops []destinations.RowUpdate, ids []string) error {
	if r.opts.DryRun || len(ops) == 0 {
		return nil
	}
	d, err := r.dispatcher("update")
	if err != nil {
		return err
	}
	outcome, err := dispatch.Run(ctx, d, "update", ops, func(ctx context.Context, chunk []destinations.RowUpdate) (int, error) {
		return retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (int, error) {
			return r.dest.ApplyUpdates(ctx, r.table, chunk)
		}, r.retryOptions("update "+r.table)...)
	})
	r.result.Updates = tally(r.result.Updates, outcome, ids)
	return err
}

// listRows reads the snapshot, retrying page by page when the destination
// pages its reads and retrying the whole listing otherwise.
func (r *runner) listRows(ctx context.Context, window *destinations.Window) ([]destinations.Row, error) {
	pager, ok := r.dest.(destinations.RowPager)
	if !ok {
		return retry.Do(ctx, r.opts.Retry, func(ctx context.Context) ([]destinations.Row, error) {
			return r.dest.ListRows(ctx, r.table, window)
		}, r.retryOptions("list "+r.table)...)
	}

	type page struct {
		rows []destinations.Row
		next string
	}
	var (
		rows  []destinations.Row
		token string
	)
	for {
		p, err := retry.Do(ctx, r.opts.Retry, func(ctx context.Context) (page, error) {
			got, next, err := pager.ListRowsPage(ctx, r.table, window, token)
			return page{rows: got, next: next}, err
		}, r.retryOptions("list "+r.table)...)
		if err != nil {
			return nil, err
		}
		rows = append(rows, p.rows...)
		if p.next == "" {
			return rows, nil
		}
		token = p.next
	}
}

func (r *runner) retryOptions(op string) []retry.Option {
	return []retry.Option{retry.WithOperation(op), retry.WithLogger(r.logger)}
}

// abort stops the run at the current stage.
func (r *runner) abort(err error) (*Result, error) {
	err = &errors.SyncError{Job: r.job, Stage: r.result.Stage.String(), Err: err}
	r.result.Err = err
	r.result.FinishedAt = r.now()
	r.result.Log(r.logger)
	r.opts.Hooks.complete(r.result)
	return r.result, err
}

func (r *runner) finish() *Result {
	r.enter(StageReport)
	r.result.FinishedAt = r.now()
	r.result.Log(r.logger)
	r.opts.Hooks.complete(r.result)
	return r.result
}

func (r *runner) now() utc.Time {
	return utc.Time{Time: r.opts.Clock().UTC()}
}

// tally folds a dispatch outcome into the stage report, naming the
// identities of every failed chunk.
func tally(w Writes, outcome *dispatch.Outcome, ids []string) Writes {
	if outcome == nil {
		return w
	}
	w.Outcome = outcome
	w.Applied = outcome.Applied
	w.Chunks = outcome.Chunks
	for _, span := range outcome.FailedRanges() {
		for i := span[0]; i < span[1] && i < len(ids); i++ {
			w.Failed = append(w.Failed, ids[i])
		}
	}
	return w
}

func withoutField(fields []string, drop string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != drop {
			out = append(out, f)
		}
	}
	return out
}

func reason(err error) string {
	var malformed *errors.MalformedRecordError
	if stderrors.As(err, &malformed) && malformed.Reason != "" {
		return malformed.Reason
	}
	if err == nil {
		return "skipped"
	}
	return fmt.Sprint(err)
}
