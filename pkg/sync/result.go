package sync

import (
	"fmt"
	"sort"
	"time"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/dispatch"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Stage is a step of a sync run.
type Stage string

// Run stages, in execution order.
const (
	StageSnapshot        Stage = "FETCH_DESTINATION_SNAPSHOT"
	StageFetch           Stage = "FETCH_SOURCE_RECORDS"
	StageNormalize       Stage = "NORMALIZE"
	StageReconcile       Stage = "RECONCILE"
	StageDispatchInserts Stage = "DISPATCH_INSERTS"
	StageDispatchUpdates Stage = "DISPATCH_UPDATES"
	StageReport          Stage = "REPORT"
)

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// Skipped describes a source record or destination row left out of the run.
type Skipped struct {
	Index    int    `json:"index"               yaml:"index"`
	Identity string `json:"identity,omitempty"  yaml:"identity,omitempty"`
	Reason   string `json:"reason"              yaml:"reason"`
}

// Writes reports one write stage.
type Writes struct {
	Planned int               `json:"planned"          yaml:"planned"`
	Applied int               `json:"applied"          yaml:"applied"`
	Chunks  int               `json:"chunks"           yaml:"chunks"`
	Failed  []string          `json:"failed,omitempty" yaml:"failed,omitempty"` // identities in failed chunks
	Outcome *dispatch.Outcome `json:"-"                yaml:"-"`
}

// HasFailures reports whether any write in the stage failed.
func (w Writes) HasFailures() bool {
	return len(w.Failed) > 0
}

// Result is the report of a sync or backfill run.
type Result struct {
	RunID      string   `json:"run_id"      yaml:"run_id"`
	Job        string   `json:"job"         yaml:"job"`
	Table      string   `json:"table"       yaml:"table"`
	// TableID is the id the destination resolved Table to, when it differs.
	TableID    string   `json:"table_id,omitempty" yaml:"table_id,omitempty"`
	DryRun     bool     `json:"dry_run"     yaml:"dry_run"`
	StartedAt  utc.Time `json:"started_at"  yaml:"started_at"`
	FinishedAt utc.Time `json:"finished_at" yaml:"finished_at"`

	// Stage is the last stage the run entered.
	Stage Stage `json:"stage" yaml:"stage"`

	Fetched         map[sources.ID]int `json:"fetched"            yaml:"fetched"`
	Shadowed        map[sources.ID]int `json:"shadowed,omitempty" yaml:"shadowed,omitempty"`
	SourceRecords   int                `json:"source_records"     yaml:"source_records"`
	SnapshotRows    int                `json:"snapshot_rows"      yaml:"snapshot_rows"`
	SnapshotEntries int                `json:"snapshot_entries"   yaml:"snapshot_entries"`
	DuplicateRows   int                `json:"duplicate_rows"     yaml:"duplicate_rows"`

	Unchanged int       `json:"unchanged"         yaml:"unchanged"`
	Skipped   []Skipped `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Inserts   Writes    `json:"inserts"           yaml:"inserts"`
	Updates   Writes    `json:"updates"           yaml:"updates"`

	Err error `json:"-" yaml:"-"`
}

func newResult(runID, job string, dryRun bool, started time.Time) *Result {
	return &Result{
		RunID:     runID,
		Job:       job,
		DryRun:    dryRun,
		StartedAt: utc.Time{Time: started.UTC()},
		Fetched:   make(map[sources.ID]int),
		Shadowed:  make(map[sources.ID]int),
	}
}

// Aborted reports whether the run stopped before REPORT.
func (r *Result) Aborted() bool {
	return r.Err != nil
}

// HasChanges reports whether the run planned any write.
func (r *Result) HasChanges() bool {
	return r.Inserts.Planned > 0 || r.Updates.Planned > 0
}

// HasFailures reports whether the run aborted or any chunk failed.
func (r *Result) HasFailures() bool {
	return r.Aborted() || r.Inserts.HasFailures() || r.Updates.HasFailures()
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Time.Sub(r.StartedAt.Time)
}

// FailedIdentities returns the identities of all failed writes, sorted.
func (r *Result) FailedIdentities() []string {
	out := make([]string, 0, len(r.Inserts.Failed)+len(r.Updates.Failed))
	out = append(out, r.Inserts.Failed...)
	out = append(out, r.Updates.Failed...)
	sort.Strings(out)
	return out
}

// Summary is a flat view of the run counts.
type Summary struct {
	Fetched   int `json:"fetched"   yaml:"fetched"`
	Snapshot  int `json:"snapshot"  yaml:"snapshot"`
	Inserts   int `json:"inserts"   yaml:"inserts"`
	Updates   int `json:"updates"   yaml:"updates"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Skipped   int `json:"skipped"   yaml:"skipped"`
	Applied   int `json:"applied"   yaml:"applied"`
	Failed    int `json:"failed"    yaml:"failed"`
}

// Summary returns the run counts.
func (r *Result) Summary() Summary {
	return Summary{
		Fetched:   r.SourceRecords,
		Snapshot:  r.SnapshotEntries,
		Inserts:   r.Inserts.Planned,
		Updates:   r.Updates.Planned,
		Unchanged: r.Unchanged,
		Skipped:   len(r.Skipped),
		Applied:   r.Inserts.Applied + r.Updates.Applied,
		Failed:    len(r.Inserts.Failed) + len(r.Updates.Failed),
	}
}

// String returns a one-line summary.
func (r *Result) String() string {
	s := r.Summary()
	out := fmt.Sprintf("%s: %d inserts, %d updates, %d unchanged, %d skipped",
		r.Job, s.Inserts, s.Updates, s.Unchanged, s.Skipped)
	if r.DryRun {
		return out + " (dry run)"
	}
	out += fmt.Sprintf(", %d applied, %d failed", s.Applied, s.Failed)
	if r.Err != nil {
		out += fmt.Sprintf(", aborted during %s", r.Stage)
	}
	return out
}

// Log writes the run report to a logger already scoped with logging.ForRun.
func (r *Result) Log(logger *zerolog.Logger) {
	s := r.Summary()
	ev := logger.Info()
	if r.HasFailures() {
		ev = logger.Warn()
	}
	ev.Str("stage", r.Stage.String()).
		Bool("dry_run", r.DryRun).
		Int("fetched", s.Fetched).
		Int("snapshot", s.Snapshot).
		Int("inserts", s.Inserts).
		Int("updates", s.Updates).
		Int("unchanged", s.Unchanged).
		Int("skipped", s.Skipped).
		Int("applied", s.Applied).
		Int("failed", s.Failed).
		Dur("duration", r.Duration()).
		AnErr("abort", r.Err).
		Msg("Sync finished")
}
