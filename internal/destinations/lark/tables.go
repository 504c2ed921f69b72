package lark

import (
	"context"
	"net/http"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/normalize"
)

// Table is a table of the Base.
type Table struct {
	ID   string `json:"table_id"`
	Name string `json:"name"`
}

type tablePage struct {
	Items     []Table `json:"items"`
	HasMore   bool    `json:"has_more"`
	PageToken string  `json:"page_token"`
}

// Tables lists every table of the Base.
func (d *Destination) Tables(ctx context.Context) ([]Table, error) {
	var out []Table
	token := ""
	for {
		q := map[string]string{"page_size": "100"}
		if token != "" {
			q["page_token"] = token
		}
		var page tablePage
		if err := d.call(ctx, http.MethodGet, d.appPath()+"/tables", q, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			return out, nil
		}
		token = page.PageToken
	}
}

// ResolveTable implements destinations.Resolver. name may be a table name or
// a table id. Unknown names are created when CreateMissing is set. Resolved
// ids are remembered for tableCacheTTL.
func (d *Destination) ResolveTable(ctx context.Context, name string) (string, error) {
	if id, ok := d.tableIDs.Get(name); ok {
		return id.(string), nil
	}
	tables, err := d.Tables(ctx)
	if err != nil {
		return "", err
	}
	for _, t := range tables {
		d.tableIDs.SetDefault(t.Name, t.ID)
		d.tableIDs.SetDefault(t.ID, t.ID)
	}
	if id, ok := d.tableIDs.Get(name); ok {
		return id.(string), nil
	}
	if !d.cfg.CreateMissing {
		return "", errors.NewNotFoundError("table", name)
	}
	id, err := d.createTable(ctx, name)
	if err != nil {
		return "", err
	}
	d.tableIDs.SetDefault(name, id)
	return id, nil
}

type fieldSpec struct {
	Name string `json:"field_name"`
	Type int    `json:"type"`
}

// fieldType maps a value kind onto a Lark column type.
func fieldType(k normalize.Kind) int {
	switch k {
	case normalize.KindNumber:
		return 2
	case normalize.KindBoolean:
		return 7
	case normalize.KindDatetime:
		return 5
	default:
		return 1
	}
}

func (d *Destination) createTable(ctx context.Context, name string) (string, error) {
	fields := make([]fieldSpec, 0, len(d.cfg.Schema))
	for _, f := range d.cfg.Schema {
		fields = append(fields, fieldSpec{Name: f.Label, Type: fieldType(f.Kind)})
	}
	body := map[string]any{
		"table": map[string]any{
			"name":              name,
			"default_view_name": "Grid",
			"fields":            fields,
		},
	}
	var created struct {
		TableID string `json:"table_id"`
	}
	if err := d.call(ctx, http.MethodPost, d.appPath()+"/tables", nil, body, &created); err != nil {
		return "", err
	}
	if created.TableID == "" {
		return "", errors.NewResourceError("create", "table", name, errors.New("no table_id returned"))
	}
	d.logger.Info().Str("table", name).Str("table_id", created.TableID).Msg("Created table")
	return created.TableID, nil
}
