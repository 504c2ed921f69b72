// Package run implements the sync and backfill commands.
package run

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/cmd/output"
	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/pkg/errors"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// runner runs one job spec with the given builder and options.
type runner func(ctx context.Context, b *jobs.Builder, spec jobs.Spec, r jobs.Range, opts []rowsync.Option) (*rowsync.Result, error)

// execute runs every selected job of mode in file order, prints one report
// per job, and returns an error when any job aborted or left failed writes.
// A failing job does not stop the jobs after it; cancellation does.
func execute(cmd *cobra.Command, app application.Application, mode jobs.Mode, names []string, flags *Flags, run runner) error {
	ctx := cmd.Context()
	logger := app.Logger()

	f, err := app.JobFile()
	if err != nil {
		return err
	}
	specs, err := f.Select(mode, names...)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return errors.NewNotFoundError(string(mode)+" job", "any")
	}
	// Jobs are selected; failures from here on are not usage errors.
	cmd.SilenceUsage = true

	b, err := app.Builder(ctx, f)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close destinations")
		}
	}()

	base := append(app.SyncOptions(), flags.options(cmd)...)
	window := jobs.Range{From: flags.From, To: flags.To}

	var (
		results []*rowsync.Result
		failed  int
	)
	for _, spec := range specs {
		opts := base
		if spec.FoldIdentity && !cmd.Flags().Changed("fold-identity") {
			opts = append(opts[:len(opts):len(opts)], rowsync.WithFoldIdentity(true))
		}

		res, err := run(ctx, b, spec, window, opts)
		if res != nil {
			results = append(results, res)
		}
		if err := app.PublishMetrics(ctx, spec.Name); err != nil {
			logger.Warn().Err(err).Str("job", spec.Name).Msg("Failed to publish metrics")
		}
		if err != nil || (res != nil && res.HasFailures()) {
			failed++
			logger.Error().Err(err).Str("job", spec.Name).Msg("Job did not complete cleanly")
		}
		if ctx.Err() != nil {
			break
		}
	}

	formatter := output.NewFormatter(output.DetectFormat(app.OutputFormat()))
	if err := formatter.Format(cmd.OutOrStdout(), output.NewReports(results...)); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %s jobs did not complete cleanly", failed, len(specs), mode)
	}
	return ctx.Err()
}

func runSync(ctx context.Context, b *jobs.Builder, spec jobs.Spec, r jobs.Range, opts []rowsync.Option) (*rowsync.Result, error) {
	job, err := b.Sync(ctx, spec, r)
	if err != nil {
		return nil, err
	}
	return rowsync.Run(ctx, job, opts...)
}

func runBackfill(ctx context.Context, b *jobs.Builder, spec jobs.Spec, r jobs.Range, opts []rowsync.Option) (*rowsync.Result, error) {
	job, err := b.Backfill(ctx, spec, r)
	if err != nil {
		return nil, err
	}
	return rowsync.Backfill(ctx, job, opts...)
}
