package normalize

import (
	"fmt"
	"sort"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
)

// Field maps one source field onto one destination column.
type Field struct {
	Source string `yaml:"source" json:"source"`
	Label  string `yaml:"label" json:"label"`
	Kind   Kind   `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// Mapping is an ordered list of field mappings.
type Mapping []Field

// NewMapping builds a Mapping from a source->label map and a source->kind
// map. Fields without a kind default to text. Order is by source name.
func NewMapping(labels map[string]string, kinds map[string]Kind) Mapping {
	sources := make([]string, 0, len(labels))
	for src := range labels {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	m := make(Mapping, 0, len(sources))
	for _, src := range sources {
		kind, ok := kinds[src]
		if !ok {
			kind = KindText
		}
		m = append(m, Field{Source: src, Label: labels[src], Kind: kind})
	}
	return m
}

// Validate checks that every field has a source and a label and that
// neither is repeated.
func (m Mapping) Validate() error {
	if len(m) == 0 {
		return errors.NewValidationError("mapping", nil, "at least one field is required")
	}
	sources := make(map[string]bool, len(m))
	labels := make(map[string]bool, len(m))
	for i, f := range m {
		if f.Source == "" || f.Label == "" {
			return errors.NewValidationError(fmt.Sprintf("mapping[%d]", i), f, "source and label are required")
		}
		if sources[f.Source] {
			return errors.NewValidationError(fmt.Sprintf("mapping[%d]", i), f.Source, "duplicate source field")
		}
		if labels[f.Label] {
			return errors.NewValidationError(fmt.Sprintf("mapping[%d]", i), f.Label, "duplicate label")
		}
		sources[f.Source] = true
		labels[f.Label] = true
	}
	return nil
}

// Sources returns the mapped source field names in mapping order.
func (m Mapping) Sources() []string {
	out := make([]string, len(m))
	for i, f := range m {
		out[i] = f.Source
	}
	return out
}

// Label returns the destination label of a source field.
func (m Mapping) Label(source string) (string, bool) {
	for _, f := range m {
		if f.Source == source {
			return f.Label, true
		}
	}
	return "", false
}

// Lookup returns the mapping entry for a source field.
func (m Mapping) Lookup(source string) (Field, bool) {
	for _, f := range m {
		if f.Source == source {
			return f, true
		}
	}
	return Field{}, false
}

// Apply maps rec onto destination fields. Source fields that are absent or
// null are skipped so they never overwrite destination values.
func (m Mapping) Apply(rec record.Record) destinations.Fields {
	out := make(destinations.Fields, len(m))
	for _, f := range m {
		raw, ok := rec[f.Source]
		if !ok || raw == nil {
			continue
		}
		kind := f.Kind
		if kind == "" {
			kind = KindText
		}
		out[f.Label] = Value(kind, raw)
	}
	return out
}
