// Package reconcile diffs source records against a destination snapshot and
// classifies every record as an insert, an update, or unchanged.
//
// Records are matched by identity key and compared by fingerprint. The
// engine never mutates its inputs; records that cannot be matched are
// reported as skipped instead of being written.
package reconcile

import (
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
)

// Update is a source record whose fingerprint differs from the destination.
type Update struct {
	RowID    string
	Identity string
	Record   record.Record
	Previous *string
}

// Insert is a source record with no destination counterpart.
type Insert struct {
	Identity string
	Record   record.Record
}

// Skip is a source record that was left out of the diff.
type Skip struct {
	Index    int
	Identity string
	Err      error
}

// Result is the outcome of a diff.
type Result struct {
	ToInsert  []Insert
	ToUpdate  []Update
	Unchanged []string
	Skipped   []Skip

	// DuplicateSnapshot counts destination entries shadowed by a later entry
	// with the same identity.
	DuplicateSnapshot int
}

// ToUpsert returns the records to write: inserts first, then updates.
func (r *Result) ToUpsert() []record.Record {
	out := make([]record.Record, 0, len(r.ToInsert)+len(r.ToUpdate))
	for _, ins := range r.ToInsert {
		out = append(out, ins.Record)
	}
	for _, upd := range r.ToUpdate {
		out = append(out, upd.Record)
	}
	return out
}

// HasChanges reports whether the diff found anything to write.
func (r *Result) HasChanges() bool {
	return len(r.ToInsert) > 0 || len(r.ToUpdate) > 0
}

// Summary holds the counts of a diff.
type Summary struct {
	Inserts   int
	Updates   int
	Unchanged int
	Skipped   int
}

// Summary returns the counts of the diff.
func (r *Result) Summary() Summary {
	return Summary{
		Inserts:   len(r.ToInsert),
		Updates:   len(r.ToUpdate),
		Unchanged: len(r.Unchanged),
		Skipped:   len(r.Skipped),
	}
}

// Log writes the diff counts to logger.
func (r *Result) Log(logger *zerolog.Logger) {
	s := r.Summary()
	event := logger.Info()
	if s.Skipped > 0 || r.DuplicateSnapshot > 0 {
		event = logger.Warn()
	}
	event.
		Int("insert", s.Inserts).
		Int("update", s.Updates).
		Int("unchanged", s.Unchanged).
		Int("skipped", s.Skipped).
		Int("duplicate_snapshot", r.DuplicateSnapshot).
		Msg("Reconciled records")
}

// Option configures a diff.
type Option func(*options)

type options struct {
	fold               bool
	requireFingerprint bool
}

// WithFoldIdentity matches identities case-insensitively using Unicode case
// folding on both sides.
func WithFoldIdentity() Option {
	return func(o *options) { o.fold = true }
}

// WithRequireFingerprint skips source records that carry no fingerprint
// instead of comparing them as null.
func WithRequireFingerprint() Option {
	return func(o *options) { o.requireFingerprint = true }
}

// Fold returns the Unicode case-folded form of an identity.
func Fold(identity string) string {
	return cases.Fold().String(identity)
}

// Diff classifies each source record against the snapshot. identityField
// and fingerprintField name the source fields holding the identity key and
// the fingerprint.
//
// A record whose identity is missing, or repeats an identity already seen in
// source, is skipped with a MalformedRecordError. Every other record lands
// in exactly one of ToInsert, ToUpdate, or Unchanged. A null fingerprint on
// either side differs from any string fingerprint.
func Diff(source []record.Record, snapshot Snapshot, identityField, fingerprintField string, opts ...Option) *Result {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	key := func(s string) string { return s }
	if o.fold {
		key = Fold
		snapshot = snapshot.fold(key)
	}

	result := &Result{DuplicateSnapshot: snapshot.Duplicates()}
	seen := make(map[string]bool, len(source))

	for i, rec := range source {
		id, ok := record.Identity(rec, identityField)
		if !ok {
			result.Skipped = append(result.Skipped, Skip{
				Index: i,
				Err:   errors.NewMalformedRecordError(i, "", identityField, "missing identity"),
			})
			continue
		}
		k := key(id)
		if seen[k] {
			result.Skipped = append(result.Skipped, Skip{
				Index:    i,
				Identity: id,
				Err:      errors.NewMalformedRecordError(i, id, identityField, "duplicate identity"),
			})
			continue
		}
		seen[k] = true

		fp := record.OptionalText(rec, fingerprintField)
		if fp == nil && o.requireFingerprint {
			result.Skipped = append(result.Skipped, Skip{
				Index:    i,
				Identity: id,
				Err:      errors.NewMalformedRecordError(i, id, fingerprintField, "missing fingerprint"),
			})
			continue
		}

		existing, found := snapshot.Lookup(k)
		switch {
		case !found:
			result.ToInsert = append(result.ToInsert, Insert{Identity: id, Record: rec})
		case !sameFingerprint(existing.Fingerprint, fp):
			result.ToUpdate = append(result.ToUpdate, Update{
				RowID:    existing.RowID,
				Identity: id,
				Record:   rec,
				Previous: existing.Fingerprint,
			})
		default:
			result.Unchanged = append(result.Unchanged, id)
		}
	}

	return result
}

func sameFingerprint(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
