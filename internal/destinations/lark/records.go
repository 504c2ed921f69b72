package lark

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
)

type condition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type filter struct {
	Conjunction string      `json:"conjunction"`
	Conditions  []condition `json:"conditions"`
}

// windowFilter restricts a search to rows whose date field lies strictly
// inside the window. Bounds are epoch milliseconds.
func windowFilter(w *destinations.Window) *filter {
	if w == nil {
		return nil
	}
	f := &filter{Conjunction: "and"}
	if !w.From.IsZero() {
		f.Conditions = append(f.Conditions, condition{
			FieldName: w.Field,
			Operator:  "isGreater",
			Value:     []string{"ExactDate", strconv.FormatInt(w.From.UnixMilli(), 10)},
		})
	}
	if !w.To.IsZero() {
		f.Conditions = append(f.Conditions, condition{
			FieldName: w.Field,
			Operator:  "isLess",
			Value:     []string{"ExactDate", strconv.FormatInt(w.To.UnixMilli(), 10)},
		})
	}
	if len(f.Conditions) == 0 {
		return nil
	}
	return f
}

type searchItem struct {
	RecordID string          `json:"record_id"`
	Fields   json.RawMessage `json:"fields"`
}

type searchPage struct {
	Items     []searchItem `json:"items"`
	HasMore   bool         `json:"has_more"`
	PageToken string       `json:"page_token"`
	Total     int          `json:"total"`
}

// ListRows implements destinations.Destination using the record search
// endpoint, following page tokens until the last page.
func (d *Destination) ListRows(ctx context.Context, table string, window *destinations.Window) ([]destinations.Row, error) {
	var rows []destinations.Row
	token := ""
	for {
		page, next, err := d.ListRowsPage(ctx, table, window, token)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if next == "" {
			return rows, nil
		}
		token = next
	}
}

// ListRowsPage implements destinations.RowPager with one records/search call.
func (d *Destination) ListRowsPage(ctx context.Context, table string, window *destinations.Window, token string) ([]destinations.Row, string, error) {
	endpoint := d.appPath() + "/tables/" + table + "/records/search"
	body := map[string]any{}
	if f := windowFilter(window); f != nil {
		body["filter"] = f
	}
	q := map[string]string{
		"page_size":    strconv.Itoa(d.cfg.PageSize),
		"user_id_type": "open_id",
	}
	if token != "" {
		q["page_token"] = token
	}

	var page searchPage
	if err := d.call(ctx, http.MethodPost, endpoint, q, body, &page); err != nil {
		return nil, "", err
	}
	rows := make([]destinations.Row, 0, len(page.Items))
	for _, item := range page.Items {
		fields := destinations.Fields{}
		if len(item.Fields) > 0 && string(item.Fields) != "null" {
			rec, err := record.DecodeObject(item.Fields)
			if err != nil {
				return nil, "", err
			}
			fields = destinations.Fields(rec)
		}
		rows = append(rows, destinations.Row{RowID: item.RecordID, Fields: fields})
	}
	d.logger.Debug().
		Str("table", table).
		Int("page", len(page.Items)).
		Bool("has_more", page.HasMore).
		Msg("Fetched record page")
	if !page.HasMore {
		return rows, "", nil
	}
	return rows, page.PageToken, nil
}

type writeRecord struct {
	RecordID string             `json:"record_id,omitempty"`
	Fields   destinations.Fields `json:"fields"`
}

type writeResult struct {
	Records []writeRecord `json:"records"`
}

var writeQuery = map[string]string{
	"ignore_consistency_check": "true",
	"user_id_type":             "open_id",
}

// ApplyInserts implements destinations.Destination.
func (d *Destination) ApplyInserts(ctx context.Context, table string, rows []destinations.Fields) (int, error) {
	if len(rows) > MaxBatchSize {
		return 0, errors.NewValidationError("rows", len(rows), "batch exceeds the Lark limit")
	}
	records := make([]writeRecord, len(rows))
	for i, f := range rows {
		records[i] = writeRecord{Fields: f}
	}
	return d.write(ctx, table, "batch_create", records)
}

// ApplyUpdates implements destinations.Destination.
func (d *Destination) ApplyUpdates(ctx context.Context, table string, rows []destinations.RowUpdate) (int, error) {
	if len(rows) > MaxBatchSize {
		return 0, errors.NewValidationError("rows", len(rows), "batch exceeds the Lark limit")
	}
	records := make([]writeRecord, len(rows))
	for i, u := range rows {
		records[i] = writeRecord{RecordID: u.RowID, Fields: u.Fields}
	}
	return d.write(ctx, table, "batch_update", records)
}

func (d *Destination) write(ctx context.Context, table, op string, records []writeRecord) (int, error) {
	endpoint := d.appPath() + "/tables/" + table + "/records/" + op
	var res writeResult
	if err := d.call(ctx, http.MethodPost, endpoint, writeQuery, map[string]any{"records": records}, &res); err != nil {
		return 0, err
	}
	return len(res.Records), nil
}
