package normalize_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/record"
)

func TestValue(t *testing.T) {
	ts := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		kind normalize.Kind
		raw  any
		want any
	}{
		{"nil is nil", normalize.KindText, nil, nil},
		{"empty string is nil", normalize.KindNumber, "", nil},
		{"empty string is nil for text", normalize.KindText, "", nil},

		{"number from string", normalize.KindNumber, "123", float64(123)},
		{"number from padded string", normalize.KindNumber, " 12.5 ", 12.5},
		{"number from json.Number", normalize.KindNumber, json.Number("50000"), float64(50000)},
		{"number from int", normalize.KindNumber, 7, float64(7)},
		{"number from bool", normalize.KindNumber, true, float64(1)},
		{"number rejects text", normalize.KindNumber, "abc", nil},
		{"number rejects NaN", normalize.KindNumber, math.NaN(), nil},
		{"number rejects maps", normalize.KindNumber, map[string]any{"a": 1}, nil},

		{"datetime from RFC3339", normalize.KindDatetime, "2025-01-20T10:00:00Z", int64(1737367200000)},
		{"datetime from offset", normalize.KindDatetime, "2025-01-20T17:00:00+07:00", int64(1737367200000)},
		{"datetime from date", normalize.KindDatetime, "2025-01-20", int64(1737331200000)},
		{"datetime from space layout", normalize.KindDatetime, "2025-01-20 10:00:00", int64(1737367200000)},
		{"datetime from epoch ms", normalize.KindDatetime, json.Number("1737367200000"), int64(1737367200000)},
		{"datetime from epoch string", normalize.KindDatetime, "1737367200000", int64(1737367200000)},
		{"datetime from time.Time", normalize.KindDatetime, ts, int64(1737367200000)},
		{"datetime from utc.Time", normalize.KindDatetime, utc.Time{Time: ts}, int64(1737367200000)},
		{"datetime rejects garbage", normalize.KindDatetime, "not a date", nil},
		{"datetime rejects bool", normalize.KindDatetime, true, nil},

		{"boolean true", normalize.KindBoolean, true, true},
		{"boolean false", normalize.KindBoolean, false, false},
		{"boolean zero", normalize.KindBoolean, json.Number("0"), false},
		{"boolean nonzero", normalize.KindBoolean, 3, true},
		{"boolean text is truthy", normalize.KindBoolean, "false", true},
		{"boolean NaN", normalize.KindBoolean, math.NaN(), false},

		{"json object", normalize.KindJSON, map[string]any{"b": 1, "a": []any{"x"}}, `{"a":["x"],"b":1}`},
		{"json string kept", normalize.KindJSON, `{"raw":true}`, `{"raw":true}`},
		{"json number", normalize.KindJSON, 5, "5"},

		{"text from number", normalize.KindText, json.Number("123"), "123"},
		{"text from float", normalize.KindText, 1.5, "1.5"},
		{"text from bool", normalize.KindText, false, "false"},
		{"text from object", normalize.KindText, map[string]any{"a": 1}, `{"a":1}`},
		{"unknown kind is text", normalize.Kind("rating"), 9, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.Value(tt.kind, tt.raw))
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]normalize.Kind{
		"text":     normalize.KindText,
		"1":        normalize.KindText,
		"2":        normalize.KindNumber,
		"3":        normalize.KindBoolean,
		"4":        normalize.KindJSON,
		"5":        normalize.KindDatetime,
		"Number":   normalize.KindNumber,
		"date":     normalize.KindDatetime,
		"bool":     normalize.KindBoolean,
		"":         normalize.KindText,
		" json ":   normalize.KindJSON,
		"datetime": normalize.KindDatetime,
	}
	for in, want := range tests {
		got, err := normalize.ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := normalize.ParseKind("9")
	assert.True(t, errors.IsValidationError(err))
	_, err = normalize.ParseKind("currency")
	assert.True(t, errors.IsValidationError(err))

	assert.Equal(t, 5, normalize.KindDatetime.Code())
	assert.Equal(t, "text", normalize.Kind("").String())
}

func TestKindUnmarshalText(t *testing.T) {
	var k normalize.Kind
	require.NoError(t, k.UnmarshalText([]byte("2")))
	assert.Equal(t, normalize.KindNumber, k)
	assert.Error(t, k.UnmarshalText([]byte("nope")))
}

func TestParseTime(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	got, ok := normalize.ParseTime("2025-03-01", hcm)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 2, 28, 17, 0, 0, 0, time.UTC), got.UTC())

	_, ok = normalize.ParseTime("03/01/2025", nil)
	assert.False(t, ok)
}

func TestMappingApply(t *testing.T) {
	mapping := normalize.Mapping{
		{Source: "id", Label: "ID", Kind: normalize.KindText},
		{Source: "cost", Label: "Cost", Kind: normalize.KindNumber},
		{Source: "note", Label: "Note"},
		{Source: "gone", Label: "Gone", Kind: normalize.KindNumber},
		{Source: "empty", Label: "Empty", Kind: normalize.KindNumber},
	}
	rec := record.Record{
		"id":    json.Number("123"),
		"cost":  "50000",
		"note":  map[string]any{"x": 1},
		"gone":  nil,
		"empty": "",
		"other": "unmapped",
	}

	got := mapping.Apply(rec)
	assert.Equal(t, destinations.Fields{
		"ID":    "123",
		"Cost":  float64(50000),
		"Note":  `{"x":1}`,
		"Empty": nil,
	}, got)
	assert.Len(t, rec, 6, "input untouched")
}

func TestNewMapping(t *testing.T) {
	m := normalize.NewMapping(
		map[string]string{"id": "ID", "cost": "Cost"},
		map[string]normalize.Kind{"cost": normalize.KindNumber},
	)
	require.NoError(t, m.Validate())
	assert.Equal(t, []string{"cost", "id"}, m.Sources())

	f, ok := m.Lookup("id")
	require.True(t, ok)
	assert.Equal(t, normalize.KindText, f.Kind)

	label, ok := m.Label("cost")
	assert.True(t, ok)
	assert.Equal(t, "Cost", label)
	_, ok = m.Label("nope")
	assert.False(t, ok)
}

func TestMappingValidate(t *testing.T) {
	assert.Error(t, normalize.Mapping{}.Validate())
	assert.Error(t, normalize.Mapping{{Source: "a"}}.Validate())
	assert.Error(t, normalize.Mapping{{Source: "a", Label: "A"}, {Source: "a", Label: "B"}}.Validate())
	assert.Error(t, normalize.Mapping{{Source: "a", Label: "A"}, {Source: "b", Label: "A"}}.Validate())
}
