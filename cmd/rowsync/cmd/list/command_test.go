package list

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/cmd/application"
	"github.com/agentstation/rowsync/internal/jobs"
)

const jobFile = `
sources:
  export: {type: jsonfile, path: products.json}
destinations:
  local: {type: sqlite, path: rowsync.db}
jobs:
  - name: products
    description: Product catalogue
    sources: [export]
    destination: local
    table: Products
    identity: code
    fingerprint: hash
    window: {field: Created, from: "2025-01-01", to: "2025-01-31"}
    fields:
      - {source: code, label: SKU}
      - {source: hash, label: Hash}
  - name: costs
    mode: backfill
    sources: [export]
    destination: local
    table: Products
    identity: code
    identity_label: SKU
    value: cost
    target: Cost
`

func TestCommand(t *testing.T) {
	f, err := jobs.Parse([]byte(jobFile))
	require.NoError(t, err)

	cmd := NewCommand(&application.Mock{
		JobFileFunc: func() (*jobs.File, error) { return f, nil },
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	var entries []Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "products", entries[0].Name)
	assert.Equal(t, "sync", entries[0].Mode)
	assert.Equal(t, "Created 2025-01-01..2025-01-31", entries[0].Window)
	assert.Equal(t, "backfill", entries[1].Mode)
	assert.Empty(t, entries[1].Window)
}

func TestEntriesTable(t *testing.T) {
	f, err := jobs.Parse([]byte(jobFile))
	require.NoError(t, err)

	d := NewEntries(f).Table()
	require.Len(t, d.Rows, 2)
	assert.Equal(t, []string{"costs", "backfill", "export", "local", "Products", ""}, d.Rows[1])
}
