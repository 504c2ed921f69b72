package destinations_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
)

func TestCellText(t *testing.T) {
	tests := []struct {
		name string
		cell any
		want *string
	}{
		{"nil", nil, nil},
		{"plain", " A123 ", ptr("A123")},
		{"rich text array", []any{map[string]any{"text": "A123\r\n", "type": "text"}}, ptr("A123")},
		{"typed rich text", []map[string]any{{"text": "B7"}}, ptr("B7")},
		{"text object", map[string]any{"text": "  X ", "value": "ignored"}, ptr("X")},
		{"value object", map[string]any{"value": []any{"y"}}, ptr(`["y"]`)},
		{"empty array", []any{}, nil},
		{"blank", "   ", nil},
		{"number", float64(42), ptr("42")},
		{"object without text", map[string]any{"id": "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, destinations.CellText(tt.cell))
		})
	}
}

func TestIsEmptyCell(t *testing.T) {
	assert.True(t, destinations.IsEmptyCell(nil))
	assert.True(t, destinations.IsEmptyCell(""))
	assert.True(t, destinations.IsEmptyCell(float64(0)))
	assert.True(t, destinations.IsEmptyCell("0.00"))
	assert.True(t, destinations.IsEmptyCell([]any{}))
	assert.False(t, destinations.IsEmptyCell(float64(12000)))
	assert.False(t, destinations.IsEmptyCell("n/a"))
}

func TestWindow(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("validate", func(t *testing.T) {
		var nilWindow *destinations.Window
		assert.NoError(t, nilWindow.Validate())
		assert.NoError(t, (&destinations.Window{Field: "Created", From: from, To: to}).Validate())
		assert.True(t, errors.IsValidationError((&destinations.Window{From: from}).Validate()))
		assert.True(t, errors.IsValidationError((&destinations.Window{Field: "Created", From: to, To: from}).Validate()))
	})

	t.Run("pad", func(t *testing.T) {
		w := &destinations.Window{Field: "Created", From: from, To: to}
		padded := w.Pad(24 * time.Hour)
		require.NotNil(t, padded)
		assert.Equal(t, from.Add(-24*time.Hour), padded.From)
		assert.Equal(t, to.Add(24*time.Hour), padded.To)
		assert.Equal(t, from, w.From, "original untouched")

		open := (&destinations.Window{Field: "Created", To: to}).Pad(time.Hour)
		assert.True(t, open.From.IsZero())
	})

	t.Run("contains is exclusive", func(t *testing.T) {
		w := &destinations.Window{Field: "Created", From: from, To: to}
		assert.False(t, w.Contains(from))
		assert.True(t, w.Contains(from.Add(time.Millisecond)))
		assert.False(t, w.Contains(to))

		var nilWindow *destinations.Window
		assert.True(t, nilWindow.Contains(from))
	})
}

func ptr(s string) *string { return &s }
