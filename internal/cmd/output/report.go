package output

import (
	"strconv"
	"time"

	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// RunReport is the printable summary of one sync or backfill run.
type RunReport struct {
	RunID    string `json:"run_id"   yaml:"run_id"`
	Job      string `json:"job"      yaml:"job"`
	Table    string `json:"table"    yaml:"table"`
	DryRun   bool   `json:"dry_run"  yaml:"dry_run"`
	Stage    string `json:"stage"    yaml:"stage"`
	Duration string `json:"duration" yaml:"duration"`

	rowsync.Summary `yaml:",inline"`

	FailedIdentities []string          `json:"failed_identities,omitempty" yaml:"failed_identities,omitempty"`
	Skips            []rowsync.Skipped `json:"skips,omitempty"             yaml:"skips,omitempty"`
	Error            string            `json:"error,omitempty"             yaml:"error,omitempty"`
}

// NewRunReport summarizes r.
func NewRunReport(r *rowsync.Result) RunReport {
	rep := RunReport{
		RunID:            r.RunID,
		Job:              r.Job,
		Table:            r.Table,
		DryRun:           r.DryRun,
		Stage:            r.Stage.String(),
		Duration:         r.Duration().Round(time.Millisecond).String(),
		Summary:          r.Summary(),
		FailedIdentities: r.FailedIdentities(),
		Skips:            r.Skipped,
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}

// Reports is a list of run reports.
type Reports []RunReport

// NewReports summarizes every result, skipping nils.
func NewReports(results ...*rowsync.Result) Reports {
	out := make(Reports, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, NewRunReport(r))
		}
	}
	return out
}

// Table implements Tabular.
func (rs Reports) Table() Data {
	d := Data{
		Headers: []string{"Job", "Table", "Fetched", "Snapshot", "Inserts", "Updates", "Unchanged", "Skipped", "Applied", "Failed", "Duration", "Status"},
		ColumnAlignment: []Align{
			AlignLeft, AlignLeft,
			AlignRight, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight,
			AlignRight, AlignLeft,
		},
	}
	for _, r := range rs {
		d.Rows = append(d.Rows, []string{
			r.Job,
			r.Table,
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Snapshot),
			strconv.Itoa(r.Inserts),
			strconv.Itoa(r.Updates),
			strconv.Itoa(r.Unchanged),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Applied),
			strconv.Itoa(r.Failed),
			r.Duration,
			r.Status(),
		})
	}
	return d
}

// Status is a one-word outcome: ok, dry-run, failed, or aborted at a stage.
func (r RunReport) Status() string {
	switch {
	case r.Error != "":
		return "aborted (" + r.Stage + ")"
	case r.Failed > 0:
		return "failed"
	case r.DryRun:
		return "dry-run"
	}
	return "ok"
}
