package environment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spachava753/nsoran/internal/models"
)

// RunInfoFile is written into the run directory when the run is closed.
const RunInfoFile = "run.json"

func writeRunInfo(run *models.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := os.WriteFile(filepath.Join(run.Dir, RunInfoFile), data, 0644); err != nil {
		return fmt.Errorf("writing run info: %w", err)
	}
	return nil
}

// ReadRunInfo loads the run record persisted in dir.
func ReadRunInfo(dir string) (*models.Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, RunInfoFile))
	if err != nil {
		return nil, fmt.Errorf("reading run info: %w", err)
	}
	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing run info: %w", err)
	}
	return &run, nil
}
