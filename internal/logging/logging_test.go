package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandler_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))

	logger.Info("Waiting for database", "attempt", 1)
	logger.Debug("hidden at info level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T[0-9:.]+[^:]*: Waiting for database`), lines[0])
	assert.Contains(t, lines[0], `"attempt": 1`)
}

func TestNewHandler_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, WithLevel(slog.LevelDebug)))
	logger.Debug("debug record")
	assert.Contains(t, buf.String(), "debug record")

	buf.Reset()
	logger = slog.New(NewHandler(&buf, WithLevel(slog.LevelWarn)))
	logger.Info("info record", "attempt", 1)
	logger.Warn("warn record")
	logger.With("run_id", "run-1").Info("scoped info record")
	assert.NotContains(t, buf.String(), "info record")
	assert.Contains(t, buf.String(), "warn record")

	buf.Reset()
	logger = slog.New(NewHandler(&buf, WithLevel(slog.LevelError)))
	logger.Warn("warn record")
	logger.Info("info record")
	logger.Error("error record")
	assert.NotContains(t, buf.String(), "info record")
	assert.NotContains(t, buf.String(), "warn record")
	assert.Contains(t, buf.String(), "error record")
}

func TestNewHandler_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, WithFormat(FormatJSON)))
	logger.Info("Migrations applied", "attempt", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "Migrations applied", record["msg"])
	assert.Contains(t, record, "ts")
	assert.EqualValues(t, 2, record["attempt"])
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"", slog.LevelInfo, true},
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatJSON, ParseFormat("JSON"))
	assert.Equal(t, FormatConsole, ParseFormat(""))
	assert.Equal(t, FormatConsole, ParseFormat("text"))
}
