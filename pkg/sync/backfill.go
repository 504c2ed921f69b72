package sync

import (
	"context"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/reconcile"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Backfill fills TargetLabel on destination rows where it is empty, using
// the value the sources hold for the row's identity. Rows that already
// carry a value are counted as unchanged; rows without an identity or a
// source value are reported as skipped. Backfill never inserts.
func Backfill(ctx context.Context, job BackfillJob, opts ...Option) (*Result, error) {
	r, err := newRunner(job.Name, job.Table, job.Destination, opts)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := r.context(ctx)
	defer cancel()

	rows, err := r.snapshot(ctx, job.Window)
	if err != nil {
		return r.abort(err)
	}

	batches, err := r.fetch(ctx, job.Sources, job.Filters)
	if err != nil {
		return r.abort(err)
	}
	for _, b := range batches {
		r.result.SourceRecords += len(b.Records)
	}

	r.enter(StageNormalize)
	var fold func(string) string
	if r.opts.FoldIdentity {
		fold = reconcile.Fold
	}
	values := sources.Lookup(job.IdentityField, job.ValueField, fold, batches...)

	r.enter(StageReconcile)
	var (
		updates []destinations.RowUpdate
		ids     []string
	)
	for i, row := range rows {
		id := destinations.CellText(row.Fields[job.IdentityLabel])
		if id == nil || *id == "" {
			r.result.Skipped = append(r.result.Skipped, Skipped{Index: i, Reason: "missing identity"})
			continue
		}
		r.result.SnapshotEntries++
		if !destinations.IsEmptyCell(row.Fields[job.TargetLabel]) {
			r.result.Unchanged++
			continue
		}
		key := *id
		if fold != nil {
			key = fold(key)
		}
		raw, ok := values[key]
		if !ok {
			r.result.Skipped = append(r.result.Skipped, Skipped{Index: i, Identity: *id, Reason: "no source value"})
			continue
		}
		v := normalize.Value(job.Kind, raw)
		if v == nil {
			r.result.Skipped = append(r.result.Skipped, Skipped{Index: i, Identity: *id, Reason: "source value does not normalize"})
			continue
		}
		updates = append(updates, destinations.RowUpdate{
			RowID:  row.RowID,
			Fields: destinations.Fields{job.TargetLabel: v},
		})
		ids = append(ids, *id)
	}
	r.result.Updates.Planned = len(updates)

	r.enter(StageDispatchUpdates)
	if err := r.dispatchUpdates(ctx, updates, ids); err != nil {
		return r.abort(err)
	}

	return r.finish(), nil
}
