// Package record defines the unit of data that flows through a sync run.
//
// A Record is a plain field map. A field may be absent (key missing) or
// null (key present, nil value); the distinction matters for field mapping,
// which skips both, and for fingerprints, which hash null explicitly.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentstation/rowsync/pkg/errors"
)

// Record is a single source or destination record keyed by field name.
type Record map[string]any

// Get returns the value of field and whether the key is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}

// Has reports whether field is present and non-null.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// With returns a copy of r with field set to value. r is not modified.
func (r Record) With(field string, value any) Record {
	out := make(Record, len(r)+1)
	maps.Copy(out, r)
	out[field] = value
	return out
}

// Without returns a copy of r with the given fields removed.
func (r Record) Without(fields ...string) Record {
	out := maps.Clone(r)
	if out == nil {
		out = Record{}
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Project returns a copy of r restricted to the given fields. Fields absent
// from r stay absent.
func (r Record) Project(fields ...string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Keys returns the field names of r in lexicographic order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identity derives the identity key of r from field. The value is rendered
// as a string, trimmed, and stripped of CR/LF. ok is false when the field is
// missing, null, or blank.
func Identity(r Record, field string) (string, bool) {
	v, present := r[field]
	if !present || v == nil {
		return "", false
	}
	id := CleanText(Text(v))
	return id, id != ""
}

// OptionalText renders field as a trimmed string, or nil when the field is
// missing, null, or blank.
func OptionalText(r Record, field string) *string {
	v, ok := r[field]
	if !ok || v == nil {
		return nil
	}
	s := strings.TrimSpace(Text(v))
	if s == "" {
		return nil
	}
	return &s
}

// CleanText trims s and removes carriage returns and line feeds.
func CleanText(s string) string {
	s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	return strings.TrimSpace(s)
}

// Text renders a scalar or structured value as text. Strings are returned
// as-is, numbers by their literal form, structures as canonical JSON.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return fmt.Sprint(x)
	case fmt.Stringer:
		return x.String()
	default:
		if s, err := CanonicalJSON(x); err == nil {
			return s
		}
		return fmt.Sprint(x)
	}
}

// IsStructured reports whether v is a nested map, slice or array, whatever
// its element type.
func IsStructured(v any) bool {
	switch v.(type) {
	case nil:
		return false
	case map[string]any, Record, []any, []map[string]any, []string, []Record:
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// CanonicalJSON encodes v as compact JSON with sorted object keys and no
// HTML escaping.
func CanonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode reads a JSON array of objects from r. Numbers keep their literal
// form as json.Number.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []Record
	if err := dec.Decode(&out); err != nil {
		return nil, errors.WrapParse("json", "", err)
	}
	return out, nil
}

// DecodeObject parses a single JSON object. Numbers keep their literal form.
func DecodeObject(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out Record
	if err := dec.Decode(&out); err != nil {
		return nil, errors.WrapParse("json", "", err)
	}
	return out, nil
}

// FromJSON projects a raw JSON object into a Record using gjson paths.
// paths maps output field -> path (e.g. "inventories.0.cost"). Paths that
// do not resolve are left absent; JSON null becomes nil.
func FromJSON(raw string, paths map[string]string) Record {
	out := make(Record, len(paths))
	for field, path := range paths {
		res := gjson.Get(raw, path)
		if !res.Exists() {
			continue
		}
		out[field] = Value(res)
	}
	return out
}

// Value converts a gjson result into the value types a Record carries.
func Value(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(res.Raw)
	case gjson.String:
		return res.Str
	case gjson.JSON:
		var v any
		dec := json.NewDecoder(strings.NewReader(res.Raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return res.Raw
		}
		return v
	}
	return nil
}
