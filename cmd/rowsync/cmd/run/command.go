package run

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/jobs"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(app application.Application) *cobra.Command {
	var flags *Flags

	cmd := &cobra.Command{
		Use:     "sync [job...]",
		GroupID: "core",
		Short:   "Reconcile source records into destination tables",
		Long: `Sync runs sync jobs from the job file, all of them when none are named.

For each job rowsync will:
  1. Read the destination table (within the job's date window, if any)
  2. Fetch every page from each source, earlier sources winning on identity
  3. Fingerprint each record over its mapped fields
  4. Insert records whose identity is new and update rows whose fingerprint changed
  5. Report planned, applied, and failed writes

Writes go out in chunks with a pause between them. Rate-limited and
transient failures are retried; a chunk that still fails is reported and the
remaining chunks continue.`,
		Example: `  rowsync sync                         # Run every sync job
  rowsync sync products --dry          # Plan without writing
  rowsync sync orders --from 2025-01-01 --to 2025-01-31
  rowsync sync -o json > report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, app, jobs.ModeSync, args, flags, runSync)
		},
	}
	flags = addFlags(cmd)
	return cmd
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(app application.Application) *cobra.Command {
	var flags *Flags

	cmd := &cobra.Command{
		Use:     "backfill [job...]",
		GroupID: "core",
		Short:   "Fill an empty destination column from source values",
		Long: `Backfill runs backfill jobs from the job file, all of them when none are named.

Each destination row whose target column is empty receives the value of the
source record with the same identity. Rows that already have a value, or
that have no matching source record, are left alone.`,
		Example: `  rowsync backfill order-costs --dry
  rowsync backfill --from 2025-01-01 --to 2025-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, app, jobs.ModeBackfill, args, flags, runBackfill)
		},
	}
	flags = addFlags(cmd)
	return cmd
}
