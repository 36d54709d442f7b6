package action

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spachava753/nsoran/internal/models"
)

// Writer serializes control actions for the simulator. The control file is
// replaced atomically on every write; the action log keeps every action.
type Writer struct {
	controlPath string
	logPath     string
	header      []string

	mu sync.Mutex
}

// NewWriter creates a writer for the run directory dir. controlFile and
// logFile are names relative to dir; header is the control schema, its first
// column being the action timestamp.
func NewWriter(dir, controlFile, logFile string, header []string) (*Writer, error) {
	switch {
	case controlFile == "":
		return nil, fmt.Errorf("%w: missing control file path", models.ErrConfiguration)
	case logFile == "":
		return nil, fmt.Errorf("%w: missing action log path", models.ErrConfiguration)
	case len(header) < 2:
		return nil, fmt.Errorf("%w: control header needs a timestamp and at least one value column", models.ErrConfiguration)
	}

	return &Writer{
		controlPath: filepath.Join(dir, controlFile),
		logPath:     filepath.Join(dir, logFile),
		header:      append([]string(nil), header...),
	}, nil
}

// ControlPath returns the path of the control file.
func (w *Writer) ControlPath() string {
	return w.controlPath
}

// LogPath returns the path of the action log.
func (w *Writer) LogPath() string {
	return w.logPath
}

// Write makes a durable, complete control file for a and appends a to the
// action log. The control file is in place when Write returns.
func (w *Writer) Write(a models.ControlAction) error {
	rows, err := w.rows(a)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeControl(rows); err != nil {
		return err
	}
	return w.appendLog(rows)
}

func (w *Writer) rows(a models.ControlAction) ([][]string, error) {
	rows := make([][]string, 0, len(a.Targets))
	for i, target := range a.Targets {
		if len(target) != len(w.header)-1 {
			return nil, fmt.Errorf("target %d has %d values, control header expects %d", i, len(target), len(w.header)-1)
		}
		row := make([]string, 0, len(w.header))
		row = append(row, strconv.FormatInt(a.Timestamp, 10))
		for _, v := range target {
			row = append(row, strconv.FormatInt(v, 10))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (w *Writer) writeControl(rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.controlPath), ".control-*")
	if err != nil {
		return fmt.Errorf("creating control file: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	cw.Write(w.header)
	cw.WriteAll(rows)
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing control file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing control file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing control file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("setting control file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.controlPath); err != nil {
		return fmt.Errorf("publishing control file: %w", err)
	}
	return nil
}

func (w *Writer) appendLog(rows [][]string) error {
	f, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening action log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat action log: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		cw.Write(w.header)
	}
	cw.WriteAll(rows)
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing action log: %w", err)
	}
	return nil
}
