// Package jsonfile serves records from a local JSON file. The file holds an
// array of objects, or an object whose Root path selects that array.
package jsonfile

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
	"github.com/agentstation/rowsync/pkg/sources"
)

// Config configures a JSON file source.
type Config struct {
	ID   sources.ID
	Path string
	// Root is a gjson path to the record array inside the document.
	Root string
	// Fields optionally projects each object through gjson paths.
	Fields map[string]string
}

// Source reads the file once and pages over it in memory.
type Source struct {
	cfg Config

	once    sync.Once
	records []record.Record
	err     error
}

var _ sources.Source = (*Source)(nil)

// New creates a JSON file source.
func New(cfg Config) (*Source, error) {
	if cfg.ID == "" {
		return nil, errors.NewValidationError("id", nil, "source id is required")
	}
	if cfg.Path == "" {
		return nil, errors.NewValidationError("path", nil, "path is required")
	}
	return &Source{cfg: cfg}, nil
}

// ID implements sources.Source.
func (s *Source) ID() sources.ID {
	return s.cfg.ID
}

// FetchPage implements sources.Source. Filters match top-level fields by
// their text form.
func (s *Source) FetchPage(ctx context.Context, cursor, pageSize int, filters map[string]string) (sources.Page, error) {
	if err := ctx.Err(); err != nil {
		return sources.Page{}, err
	}
	s.once.Do(func() { s.records, s.err = s.load() })
	if s.err != nil {
		return sources.Page{}, s.err
	}

	all := s.records
	if len(filters) > 0 {
		all = filter(all, filters)
	}
	if cursor >= len(all) {
		return sources.Page{}, nil
	}
	end := min(cursor+pageSize, len(all))
	return sources.Page{Items: all[cursor:end], HasMore: end < len(all)}, nil
}

func (s *Source) load() ([]record.Record, error) {
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, errors.WrapIO("read", s.cfg.Path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.NewParseError("json", s.cfg.Path, "invalid JSON", nil)
	}

	doc := gjson.ParseBytes(data)
	if s.cfg.Root != "" {
		doc = doc.Get(s.cfg.Root)
	}
	if !doc.IsArray() {
		return nil, errors.NewParseError("json", s.cfg.Path, "expected an array of records", nil)
	}

	if s.cfg.Fields == nil {
		return record.Decode(strings.NewReader(doc.Raw))
	}
	items := doc.Array()
	out := make([]record.Record, 0, len(items))
	for _, item := range items {
		out = append(out, record.FromJSON(item.Raw, s.cfg.Fields))
	}
	return out, nil
}

func filter(recs []record.Record, filters map[string]string) []record.Record {
	out := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		keep := true
		for k, want := range filters {
			v, ok := rec[k]
			if !ok || record.Text(v) != want {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out
}
