package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spachava753/nsoran/internal/config"
	"github.com/spachava753/nsoran/internal/models"
)

func TestLoadScenarioConfig(t *testing.T) {
	scenarioToml := `ues = [3]
simTime = [1.5]
indicationPeriodicity = 0.1
controlFileName = ["es_actions_for_ns3.csv"]
dataRate = []
enableE2FileLogging = [true]
`

	fsys := fstest.MapFS{
		"scenario.toml": &fstest.MapFile{Data: []byte(scenarioToml)},
	}

	params, err := config.LoadScenarioConfig(fsys, "scenario.toml")
	require.NoError(t, err)

	assert.Equal(t, config.ScenarioParams{
		"ues":                   "3",
		"simTime":               "1.5",
		"indicationPeriodicity": "0.1",
		"controlFileName":       "es_actions_for_ns3.csv",
		"enableE2FileLogging":   "true",
	}, params)
	assert.Equal(t, []string{"controlFileName", "enableE2FileLogging", "indicationPeriodicity", "simTime", "ues"}, params.Keys())
}

func TestLoadScenarioConfigRejectsTables(t *testing.T) {
	fsys := fstest.MapFS{
		"scenario.toml": &fstest.MapFile{Data: []byte("[nested]\nkey = 1\n")},
	}

	_, err := config.LoadScenarioConfig(fsys, "scenario.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nested"`)
}

func TestLoadScenarioFileEmptyPath(t *testing.T) {
	params, err := config.LoadScenarioFile("")
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestLoadEnvConfig(t *testing.T) {
	envYaml := `ns3_path: /opt/ns-3-mmwave-oran
scenario: scenario-three
scenario_config: scenario.toml
output_dir: out
optimized: false
skip_configuration: true
metrics_timeout: 2s
return_info: true
episodes: 4
n_concurrent_episodes: 2
max_steps: 50
seed: 7
telemetry:
  endpoint: localhost:4318
  insecure: true
power_saving:
  throughput_weight: 2
  prb_weight: 0.25
  error_weight: 3
`

	tmpFile := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(envYaml), 0644))

	cfg, err := config.LoadEnvConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ns-3-mmwave-oran", cfg.NS3Path)
	assert.Equal(t, "scenario-three", cfg.Scenario)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.False(t, cfg.Optimized)
	assert.True(t, cfg.SkipConfiguration)
	assert.Equal(t, 2*time.Second, cfg.MetricsTimeout)
	assert.True(t, cfg.ReturnInfo)
	assert.Equal(t, 4, cfg.Episodes)
	assert.Equal(t, 2, cfg.NConcurrentEpisodes)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "localhost:4318", cfg.Telemetry.Endpoint)
	assert.Equal(t, 2.0, cfg.PowerSaving.ThroughputWeight)
	assert.Equal(t, 0.25, cfg.PowerSaving.PrbWeight)
	assert.Equal(t, 3.0, cfg.PowerSaving.ErrorWeight)
	assert.Equal(t, "power_saving", cfg.UseCase)
}

func TestLoadEnvConfigEnvOverrides(t *testing.T) {
	t.Setenv("NSORAN_NS3_PATH", "/override/ns3")
	t.Setenv("NSORAN_LOG_LEVEL", "debug")

	tmpFile := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("ns3_path: /file/ns3\nscenario: s\n"), 0644))

	cfg, err := config.LoadEnvConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "/override/ns3", cfg.NS3Path)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "missing ns3 path", yaml: "scenario: s\n", wantErr: "ns3_path is required"},
		{name: "missing scenario", yaml: "ns3_path: /ns3\n", wantErr: "scenario is required"},
		{name: "negative steps", yaml: "executable: /bin/sim\nmax_steps: -1\n", wantErr: "max_steps"},
		{name: "negative episodes", yaml: "executable: /bin/sim\nepisodes: -2\n", wantErr: "episodes"},
		{name: "malformed yaml", yaml: "executable: [\n", wantErr: "parsing env config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "env.yaml")
			require.NoError(t, os.WriteFile(tmpFile, []byte(tt.yaml), 0644))

			_, err := config.LoadEnvConfig(tmpFile)
			require.ErrorIs(t, err, models.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultEnvConfig(t *testing.T) {
	cfg := config.DefaultEnvConfig()

	assert.Equal(t, "runs", cfg.OutputDir)
	assert.Equal(t, 10*time.Second, cfg.MetricsTimeout)
	assert.True(t, cfg.Optimized)
	assert.Equal(t, 1, cfg.Episodes)
	assert.Equal(t, 1, cfg.NConcurrentEpisodes)
	assert.Equal(t, "info", cfg.LogLevel)
}
