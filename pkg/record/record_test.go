package record_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/record"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name   string
		rec    record.Record
		want   string
		wantOK bool
	}{
		{"string", record.Record{"sku": "A-1"}, "A-1", true},
		{"trimmed", record.Record{"sku": "  A-1 \t"}, "A-1", true},
		{"line breaks removed", record.Record{"sku": "A-\r\n1"}, "A-1", true},
		{"number literal", record.Record{"sku": json.Number("9007199254740993")}, "9007199254740993", true},
		{"int", record.Record{"sku": 42}, "42", true},
		{"missing", record.Record{"name": "x"}, "", false},
		{"null", record.Record{"sku": nil}, "", false},
		{"blank", record.Record{"sku": "   "}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := record.Identity(tt.rec, "sku")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionalText(t *testing.T) {
	assert.Nil(t, record.OptionalText(record.Record{}, "hash"))
	assert.Nil(t, record.OptionalText(record.Record{"hash": nil}, "hash"))
	assert.Nil(t, record.OptionalText(record.Record{"hash": " "}, "hash"))

	got := record.OptionalText(record.Record{"hash": " abc "}, "hash")
	require.NotNil(t, got)
	assert.Equal(t, "abc", *got)
}

func TestWithDoesNotMutate(t *testing.T) {
	orig := record.Record{"a": 1}
	next := orig.With("b", 2)

	assert.Equal(t, record.Record{"a": 1}, orig)
	assert.Equal(t, record.Record{"a": 1, "b": 2}, next)

	trimmed := next.Without("a")
	assert.Equal(t, record.Record{"b": 2}, trimmed)
	assert.Len(t, next, 2)
}

func TestProject(t *testing.T) {
	rec := record.Record{"a": 1, "b": nil, "c": 3}
	assert.Equal(t, record.Record{"a": 1, "b": nil}, rec.Project("a", "b", "z"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, record.Record{"c": 1, "a": 2, "b": 3}.Keys())
}

func TestText(t *testing.T) {
	assert.Equal(t, "true", record.Text(true))
	assert.Equal(t, "1.5", record.Text(1.5))
	assert.Equal(t, "100", record.Text(float64(100)))
	assert.Equal(t, `{"a":1,"b":[1,2]}`, record.Text(map[string]any{"b": []any{1, 2}, "a": 1}))
	assert.Equal(t, "", record.Text(nil))
}

func TestCanonicalJSON(t *testing.T) {
	got, err := record.CanonicalJSON(map[string]any{"z": "<b>", "a": nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"z":"<b>"}`, got)
}

func TestIsStructured(t *testing.T) {
	for _, v := range []any{
		map[string]any{}, record.Record{}, []any{1}, []string{"a"},
		[]int{1}, []float64{1.5}, [2]int{}, map[string]string{"a": "b"},
	} {
		assert.True(t, record.IsStructured(v), "%T", v)
	}
	for _, v := range []any{nil, "x", 1, 2.5, true, json.Number("3")} {
		assert.False(t, record.IsStructured(v), "%T", v)
	}
}

func TestDecode(t *testing.T) {
	t.Run("array of objects", func(t *testing.T) {
		recs, err := record.Decode(strings.NewReader(`[{"id": 12345678901234567890, "name": "x"}, {"id": 2}]`))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, json.Number("12345678901234567890"), recs[0]["id"])
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := record.Decode(strings.NewReader(`{"id": 1}`))
		require.Error(t, err)
		var parseErr *errors.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("object", func(t *testing.T) {
		rec, err := record.DecodeObject([]byte(`{"cost": 1.25}`))
		require.NoError(t, err)
		assert.Equal(t, json.Number("1.25"), rec["cost"])
	})
}

func TestFromJSON(t *testing.T) {
	raw := `{"code":"SP01","fullName":"Coffee","inventories":[{"cost":12000.5,"onHand":3}],"tags":null}`
	rec := record.FromJSON(raw, map[string]string{
		"sku":   "code",
		"name":  "fullName",
		"cost":  "inventories.0.cost",
		"tags":  "tags",
		"extra": "does.not.exist",
	})

	assert.Equal(t, "SP01", rec["sku"])
	assert.Equal(t, "Coffee", rec["name"])
	assert.Equal(t, json.Number("12000.5"), rec["cost"])
	v, ok := rec.Get("tags")
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = rec.Get("extra")
	assert.False(t, ok)
}
