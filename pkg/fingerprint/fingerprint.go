// Package fingerprint computes deterministic content hashes of records.
//
// A fingerprint is the lowercase hex SHA-256 of a canonical serialization:
// fields sorted by name, nulls kept as JSON null, nested structures embedded
// as their own canonical JSON text. Two records with the same content hash
// identically regardless of key order.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/agentstation/rowsync/pkg/record"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Of returns the fingerprint of v. Values that are not records hash to the
// empty string.
func Of(v any) string {
	rec, ok := asRecord(v)
	if !ok {
		return ""
	}
	canonical, err := canonical(rec)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Without returns the fingerprint of rec with the given fields removed.
// Use it to keep a stored fingerprint field from hashing itself.
func Without(rec record.Record, fields ...string) string {
	if rec == nil {
		return ""
	}
	return Of(rec.Without(fields...))
}

// Canonical returns the serialization that Of hashes.
func Canonical(v any) (string, error) {
	rec, ok := asRecord(v)
	if !ok {
		return "", fmt.Errorf("fingerprint: %T is not a record", v)
	}
	return canonical(rec)
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func asRecord(v any) (record.Record, bool) {
	switch x := v.(type) {
	case record.Record:
		return x, x != nil
	case map[string]any:
		return record.Record(x), x != nil
	}
	return nil, false
}

func canonical(rec record.Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range rec.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshal(key)
		if err != nil {
			return "", err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v, err := marshal(flatten(rec[key]))
		if err != nil {
			return "", err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// flatten replaces nested structures with their canonical JSON text so the
// top-level serialization is a flat object of primitives.
func flatten(v any) any {
	if v == nil {
		return nil
	}
	if record.IsStructured(v) {
		s, err := record.CanonicalJSON(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return s
	}
	switch v.(type) {
	case string, bool, json.Number,
		float64, float32, int, int64, int32, int16, int8,
		uint, uint64, uint32, uint16, uint8:
		return v
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
