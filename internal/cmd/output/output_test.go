package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/errors"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

func result() *rowsync.Result {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	return &rowsync.Result{
		RunID:         "run-1",
		Job:           "products",
		Table:         "Products",
		Stage:         rowsync.StageReport,
		StartedAt:     utc.Time{Time: start},
		FinishedAt:    utc.Time{Time: start.Add(1500 * time.Millisecond)},
		SourceRecords: 4,
		SnapshotRows:  3,
		Unchanged:     1,
		Inserts:       rowsync.Writes{Planned: 2, Applied: 2, Chunks: 1},
		Updates:       rowsync.Writes{Planned: 1, Applied: 0, Chunks: 1, Failed: []string{"B"}},
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "markdown", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	f, err := ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("xml")
	assert.True(t, errors.IsValidationError(err))

	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
}

func TestRunReport(t *testing.T) {
	rep := NewRunReport(result())
	assert.Equal(t, "1.5s", rep.Duration)
	assert.Equal(t, 2, rep.Inserts)
	assert.Equal(t, []string{"B"}, rep.FailedIdentities)
	assert.Equal(t, "failed", rep.Status())

	aborted := result()
	aborted.Stage = rowsync.StageSnapshot
	aborted.Err = errors.NewNotFoundError("table", "Products")
	assert.Equal(t, "aborted (FETCH_DESTINATION_SNAPSHOT)", NewRunReport(aborted).Status())

	dry := result()
	dry.DryRun = true
	dry.Updates.Failed = nil
	assert.Equal(t, "dry-run", NewRunReport(dry).Status())

	assert.Len(t, NewReports(result(), nil), 1)
}

func TestFormatters(t *testing.T) {
	reports := NewReports(result())

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatTable).Format(&buf, reports))
		out := buf.String()
		assert.Contains(t, out, "JOB")
		assert.Contains(t, out, "products")
		assert.Contains(t, out, "failed")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatJSON).Format(&buf, reports))
		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 1)
		assert.Equal(t, "products", decoded[0]["job"])
		assert.EqualValues(t, 2, decoded[0]["inserts"])
		assert.NotContains(t, decoded[0], "error")
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatYAML).Format(&buf, reports))
		assert.Contains(t, buf.String(), "job: products")
		assert.Contains(t, buf.String(), "inserts: 2")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		data := Data{Headers: []string{"Job", "Status"}, Rows: [][]string{{"products", "ok"}}}
		require.NoError(t, NewFormatter(FormatMarkdown).Format(&buf, data))
		out := strings.ToLower(buf.String())
		assert.Contains(t, out, "job")
		assert.Contains(t, out, "| products")
	})

	t.Run("struct fallback", func(t *testing.T) {
		type version struct {
			Version   string `json:"version"`
			BuildDate string `json:"build_date"`
		}
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatTable).Format(&buf, version{"1.0.0", "today"}))
		assert.Contains(t, buf.String(), "1.0.0")
		assert.Contains(t, buf.String(), "today")
	})

	t.Run("scalar falls back to json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(FormatTable).Format(&buf, 42))
		assert.Equal(t, "42\n", buf.String())
	})
}
