package run

import (
	"time"

	"github.com/spf13/cobra"

	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// Flags are the engine overrides shared by sync and backfill.
type Flags struct {
	DryRun       bool
	ChunkSize    int
	Pause        time.Duration
	PageSize     int
	From         string
	To           string
	FoldIdentity bool
}

func addFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	fs := cmd.Flags()
	fs.BoolVar(&f.DryRun, "dry", false, "plan writes without applying them")
	fs.IntVar(&f.ChunkSize, "chunk-size", 0, "rows per write request")
	fs.DurationVar(&f.Pause, "pause", 0, "pause between write requests")
	fs.IntVar(&f.PageSize, "page-size", 0, "records per source page")
	fs.StringVar(&f.From, "from", "", "window start date (YYYY-MM-DD), replaces the job's")
	fs.StringVar(&f.To, "to", "", "window end date (YYYY-MM-DD), inclusive")
	fs.BoolVar(&f.FoldIdentity, "fold-identity", false, "match identities case-insensitively")
	return f
}

// options returns engine options for the flags the user set.
func (f *Flags) options(cmd *cobra.Command) []rowsync.Option {
	fs := cmd.Flags()
	var opts []rowsync.Option
	if fs.Changed("dry") {
		opts = append(opts, rowsync.WithDryRun(f.DryRun))
	}
	if fs.Changed("chunk-size") {
		opts = append(opts, rowsync.WithChunkSize(f.ChunkSize))
	}
	if fs.Changed("pause") {
		opts = append(opts, rowsync.WithBatchPause(f.Pause))
	}
	if fs.Changed("page-size") {
		opts = append(opts, rowsync.WithPageSize(f.PageSize))
	}
	if fs.Changed("fold-identity") {
		opts = append(opts, rowsync.WithFoldIdentity(f.FoldIdentity))
	}
	return opts
}
