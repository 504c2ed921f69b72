// Package destinations defines the contract between the sync engine and a
// tabular store that receives writes.
package destinations

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
)

// Fields is the column label -> value map written to a destination row.
type Fields map[string]any

// Row is one row read back from a destination.
type Row struct {
	RowID  string
	Fields Fields
}

// RowUpdate is a write to an existing row.
type RowUpdate struct {
	RowID  string
	Fields Fields
}

// Window restricts a snapshot read to rows whose Field lies strictly
// between From and To. A zero bound is open.
type Window struct {
	Field string
	From  time.Time
	To    time.Time
}

// Validate checks that the window names a field and that its bounds are ordered.
func (w *Window) Validate() error {
	if w == nil {
		return nil
	}
	if w.Field == "" {
		return errors.NewValidationError("window.field", nil, "field is required")
	}
	if !w.From.IsZero() && !w.To.IsZero() && !w.From.Before(w.To) {
		return errors.NewValidationError("window", fmt.Sprintf("%s..%s", w.From, w.To), "from must be before to")
	}
	return nil
}

// Pad returns a copy of the window widened by d on both sides.
func (w *Window) Pad(d time.Duration) *Window {
	if w == nil {
		return nil
	}
	out := *w
	if !out.From.IsZero() {
		out.From = out.From.Add(-d)
	}
	if !out.To.IsZero() {
		out.To = out.To.Add(d)
	}
	return &out
}

// Contains reports whether t lies strictly inside the window.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	if !w.From.IsZero() && !t.After(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Destination is a tabular store that can list its rows and accept batched
// inserts and updates. Apply methods return the number of rows the store
// reports as written.
type Destination interface {
	// ID identifies the destination in logs and reports.
	ID() string

	// ListRows returns every row of table, restricted to window when set.
	ListRows(ctx context.Context, table string, window *Window) ([]Row, error)

	// ApplyInserts creates one row per entry.
	ApplyInserts(ctx context.Context, table string, rows []Fields) (int, error)

	// ApplyUpdates writes fields onto existing rows.
	ApplyUpdates(ctx context.Context, table string, rows []RowUpdate) (int, error)

	// MaxBatchSize is the largest batch a single apply call accepts.
	MaxBatchSize() int
}

// Resolver is implemented by destinations whose tables are addressed by an
// ID that differs from their display name.
type Resolver interface {
	ResolveTable(ctx context.Context, name string) (string, error)
}

// RowPager is implemented by destinations that read rows one remote page
// at a time. token is empty for the first page; an empty next token ends the
// listing.
type RowPager interface {
	ListRowsPage(ctx context.Context, table string, window *Window, token string) (rows []Row, next string, err error)
}

// CellText reduces a destination cell to clean text. Rich text cells arrive
// as [{"text": ...}] or {"text": ..., "value": ...}; both reduce to their
// first text (or value). The result is trimmed with CR/LF removed; nil
// means the cell is empty.
func CellText(v any) *string {
	var raw any
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		if len(x) == 0 {
			return nil
		}
		raw = firstText(x[0])
	case []map[string]any:
		if len(x) == 0 {
			return nil
		}
		raw = firstText(x[0])
	case map[string]any:
		raw = firstText(x)
	default:
		raw = x
	}
	if raw == nil {
		return nil
	}
	s := record.CleanText(record.Text(raw))
	if s == "" {
		return nil
	}
	return &s
}

func firstText(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if t, ok := m["text"]; ok && t != nil {
		return t
	}
	if t, ok := m["value"]; ok && t != nil {
		return t
	}
	return nil
}

// IsEmptyCell reports whether a cell holds nothing useful: absent, null,
// blank text, or a numeric zero.
func IsEmptyCell(v any) bool {
	txt := CellText(v)
	if txt == nil {
		return true
	}
	f, err := strconv.ParseFloat(*txt, 64)
	return err == nil && f == 0
}
