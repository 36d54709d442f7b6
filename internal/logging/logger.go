// Package logging provides leveled logging and per-run step traces.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug for per-row ingestion detail.
const LevelTrace = slog.LevelDebug - 4

// StepTraceFile is the JSONL step trace written into a run directory.
const StepTraceFile = "steps.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// StepTrace appends one JSON line per environment step to a run's
// steps.jsonl. A nil StepTrace is valid and discards everything.
type StepTrace struct {
	mu   sync.Mutex
	file *os.File
}

// NewStepTrace opens dir/steps.jsonl for append when level is debug or
// more verbose. At info and above it returns nil and creates no file.
func NewStepTrace(dir string, level string) *StepTrace {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, StepTraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("step trace disabled", "dir", dir, "error", err)
		return nil
	}
	return &StepTrace{file: f}
}

// Log writes event as a single JSON line with a "time" field added. The
// caller's map is not mutated.
func (st *StepTrace) Log(event map[string]any) {
	if st == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file != nil {
		_, _ = st.file.Write(data)
	}
}

// Close closes the trace file. Safe on a nil receiver and more than once.
func (st *StepTrace) Close() {
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file != nil {
		st.file.Close()
		st.file = nil
	}
}
