package jsonfile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/sources"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFetchPage(t *testing.T) {
	path := write(t, `[
		{"sku": "A", "cost": 12345678901234567890, "active": true},
		{"sku": "B", "cost": 2, "active": false},
		{"sku": "C", "cost": 3, "active": true}
	]`)
	src, err := New(Config{ID: "file", Path: path})
	require.NoError(t, err)

	page, err := src.FetchPage(context.Background(), 0, 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, json.Number("12345678901234567890"), page.Items[0]["cost"])

	page, err = src.FetchPage(context.Background(), 2, 2, nil)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	page, err = src.FetchPage(context.Background(), 0, 10, map[string]string{"active": "true"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "C", page.Items[1]["sku"])
}

func TestRootAndFields(t *testing.T) {
	path := write(t, `{"data": [{"code": "X", "inventories": [{"cost": 7}]}]}`)
	src, err := New(Config{
		ID:     "file",
		Path:   path,
		Root:   "data",
		Fields: map[string]string{"sku": "code", "cost": "inventories.0.cost"},
	})
	require.NoError(t, err)

	recs, err := sources.Paginate(context.Background(), src, sources.PaginateOptions{Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "X", recs[0]["sku"])
	assert.Equal(t, json.Number("7"), recs[0]["cost"])
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		check func(error) bool
	}{
		{"missing file", filepath.Join(t.TempDir(), "nope.json"), func(err error) bool {
			var ioErr *errors.IOError
			return stderrors.As(err, &ioErr)
		}},
		{"invalid json", write(t, `{"a":`), func(err error) bool {
			var pe *errors.ParseError
			return stderrors.As(err, &pe)
		}},
		{"not an array", write(t, `{"a": 1}`), func(err error) bool {
			var pe *errors.ParseError
			return stderrors.As(err, &pe)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(Config{ID: "file", Path: tt.path})
			require.NoError(t, err)
			_, err = src.FetchPage(context.Background(), 0, 10, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %T", err)
		})
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{ID: "file"})
	assert.True(t, errors.IsValidationError(err))
}
