package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
)

type staticSecrets map[string]string

func (s staticSecrets) Resolve(_ context.Context, value string) (string, error) {
	if v, ok := s[value]; ok {
		return v, nil
	}
	return value, nil
}

func newTestApp(t *testing.T, cfg *Config) *App {
	t.Helper()
	isolate(t)
	cfg.LogOutput = "discard"
	a, err := New("1.2.3", "abc123", "2025-01-01", "test",
		WithConfig(cfg),
		WithLogger(logging.NewNopLogger()),
	)
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	a := newTestApp(t, &Config{})
	assert.Equal(t, "1.2.3", a.Version())
	assert.Equal(t, "abc123", a.Commit())
	assert.Equal(t, "2025-01-01", a.Date())
	assert.Equal(t, "test", a.BuiltBy())
	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Metrics())
	assert.NotEmpty(t, a.SyncOptions())
}

func TestJobFile(t *testing.T) {
	a := newTestApp(t, &Config{JobsFile: "missing.yaml"})
	_, err := a.JobFile()
	var ioErr *errors.IOError
	assert.ErrorAs(t, err, &ioErr)

	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  kiot:
    type: kiotviet
    retailer: shop
    client_id: aws-sm://kiot#id
    client_secret: aws-sm://kiot#secret
destinations:
  local: {type: sqlite, path: db.sqlite}
jobs: []
`), 0o600))

	a = newTestApp(t, &Config{JobsFile: path})
	f, err := a.JobFile()
	require.NoError(t, err)
	again, err := a.JobFile()
	require.NoError(t, err)
	assert.Same(t, f, again)

	require.NoError(t, WithSecretResolver(staticSecrets{})(a))
	b, err := a.Builder(context.Background(), f)
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestPublishMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowsync.prom")
	a := newTestApp(t, &Config{Textfile: path})

	require.NoError(t, a.PublishMetrics(context.Background(), "products"))
	_, err := os.Stat(path)
	assert.NoError(t, err)

	a = newTestApp(t, &Config{})
	assert.NoError(t, a.PublishMetrics(context.Background(), "products"))
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	jobsPath := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsPath, []byte(`
sources:
  export: {type: jsonfile, path: products.json}
destinations:
  local: {type: sqlite, path: db.sqlite}
jobs:
  - name: products
    sources: [export]
    destination: local
    table: Products
    identity: code
    fingerprint: hash
    fields:
      - {source: code, label: SKU}
      - {source: hash, label: Hash}
`), 0o600))

	t.Run("version", func(t *testing.T) {
		a := newTestApp(t, &Config{})
		cmd := a.createRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version", "-v", "--log-level", "error"})
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		assert.Contains(t, out.String(), "rowsync 1.2.3")
		assert.Contains(t, out.String(), "abc123")
	})

	t.Run("jobs", func(t *testing.T) {
		a := newTestApp(t, &Config{})
		cmd := a.createRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"jobs", "--jobs", jobsPath, "-o", "json"})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		var entries []map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "products", entries[0]["name"])
	})

	t.Run("man", func(t *testing.T) {
		a := newTestApp(t, &Config{})
		cmd := a.createRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"man", "--log-level", "error"})
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		assert.Contains(t, out.String(), `.TH "ROWSYNC"`)
		assert.Contains(t, out.String(), "backfill")
	})

	t.Run("bad format", func(t *testing.T) {
		a := newTestApp(t, &Config{})
		err := a.Execute(context.Background(), []string{"jobs", "--jobs", jobsPath, "-o", "xml"})
		assert.True(t, errors.IsValidationError(err))
	})
}

var _ jobs.SecretResolver = staticSecrets{}
