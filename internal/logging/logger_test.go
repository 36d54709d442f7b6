package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", logging.LevelTrace},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{" Trace ", logging.LevelTrace},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.input))
		})
	}
}

func TestNewLoggerTraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("trace", &buf)

	logger.Log(context.Background(), logging.LevelTrace, "row accepted", "cell", 2)
	logger.Debug("pass finished")

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "cell=2")
	assert.Contains(t, out, "level=DEBUG")
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger("warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestStepTrace(t *testing.T) {
	dir := t.TempDir()

	st := logging.NewStepTrace(dir, "debug")
	require.NotNil(t, st)

	event := map[string]any{"step": 1, "reward": 0.5}
	st.Log(event)
	st.Log(map[string]any{"step": 2})
	st.Close()
	st.Close()
	st.Log(map[string]any{"step": 3})

	_, hasTime := event["time"]
	assert.False(t, hasTime, "caller map must not be mutated")

	data, err := os.ReadFile(filepath.Join(dir, logging.StepTraceFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, 1.0, first["step"])
	assert.Contains(t, first, "time")
}

func TestStepTraceDisabledAtInfo(t *testing.T) {
	dir := t.TempDir()

	st := logging.NewStepTrace(dir, "info")
	assert.Nil(t, st)
	st.Log(map[string]any{"step": 1})
	st.Close()

	_, err := os.Stat(filepath.Join(dir, logging.StepTraceFile))
	assert.True(t, os.IsNotExist(err))
}
