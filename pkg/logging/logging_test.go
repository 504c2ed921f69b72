package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/logging"
)

func TestNewLoggerFromConfig(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{"debug", "debug", zerolog.DebugLevel},
		{"upper case", "WARN", zerolog.WarnLevel},
		{"warning alias", "warning", zerolog.WarnLevel},
		{"off", "off", zerolog.Disabled},
		{"empty", "", zerolog.InfoLevel},
		{"unknown", "loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := logging.NewLoggerFromConfig(&logging.Config{Level: tt.level, Output: "discard"})
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}

	t.Run("nil config", func(t *testing.T) {
		l := logging.NewLoggerFromConfig(nil)
		assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	})
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowsync.log")
	l := logging.NewLoggerFromConfig(&logging.Config{
		Level:  "info",
		Format: "json",
		Output: path,
		Fields: map[string]string{"host": "worker-1"},
	})
	l.Info().Str("job", "products").Msg("Applied changes")
	l.Debug().Msg("filtered")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"host":"worker-1"`)
	assert.Contains(t, string(data), `"job":"products"`)
	assert.NotContains(t, string(data), "filtered")
}

func TestForRun(t *testing.T) {
	tl := logging.NewTestLogger(t)

	logging.ForRun(tl.Logger, "run-1", "products", "").Info().Msg("Run complete")

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0]["run_id"])
	assert.Equal(t, "products", entries[0]["job"])
	assert.NotContains(t, entries[0], "table")
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, logging.Default(), logging.FromContext(ctx))
	assert.Empty(t, logging.RunID(ctx))

	tl := logging.NewTestLogger(t)
	ctx = logging.WithRunID(logging.WithLogger(ctx, tl.Logger), "run-2")
	assert.Same(t, tl.Logger, logging.FromContext(ctx))
	assert.Equal(t, "run-2", logging.RunID(ctx))

	assert.Same(t, logging.Default(), logging.FromContext(logging.WithLogger(ctx, nil)))
}

func TestDisableLoggingForTest(t *testing.T) {
	t.Run("silenced", func(t *testing.T) {
		logging.DisableLoggingForTest(t)
		assert.Equal(t, zerolog.Disabled, logging.Default().GetLevel())
	})
	assert.NotEqual(t, zerolog.Disabled, logging.Default().GetLevel())
}
