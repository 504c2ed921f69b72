package sources

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/rowsync/pkg/constants"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/record"
	"github.com/agentstation/rowsync/pkg/retry"
)

// PaginateOptions controls Paginate.
type PaginateOptions struct {
	PageSize int
	Filters  map[string]string
	Retry    retry.Policy
	Logger   *zerolog.Logger

	// MaxPages stops pagination after this many pages. Zero is unlimited.
	MaxPages int
}

// Paginate fetches every page from src. The cursor starts at zero and
// advances by the number of records received. Pagination stops on an empty
// page, a page shorter than PageSize, or a page with HasMore unset. Each
// page call is retried according to opts.Retry.
func Paginate(ctx context.Context, src Source, opts PaginateOptions) ([]record.Record, error) {
	if opts.PageSize == 0 {
		opts.PageSize = constants.DefaultPageSize
	}
	if opts.PageSize < 0 || opts.PageSize > constants.MaxPageSize {
		return nil, errors.NewValidationError("page_size", opts.PageSize, "out of range")
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	var all []record.Record
	for pageNum := 0; opts.MaxPages == 0 || pageNum < opts.MaxPages; pageNum++ {
		cursor := len(all)
		page, err := retry.Do(ctx, opts.Retry, func(ctx context.Context) (Page, error) {
			return src.FetchPage(ctx, cursor, opts.PageSize, opts.Filters)
		}, retry.WithOperation("fetch "+src.ID().String()), retry.WithLogger(logger))
		if err != nil {
			return all, errors.WrapResource("fetch", "page", src.ID().String(), err)
		}

		all = append(all, page.Items...)
		logger.Debug().
			Str("source", src.ID().String()).
			Int("cursor", cursor).
			Int("received", len(page.Items)).
			Int("total", len(all)).
			Msg("Fetched page")

		if len(page.Items) == 0 || len(page.Items) < opts.PageSize || !page.HasMore {
			break
		}
	}
	return all, nil
}
