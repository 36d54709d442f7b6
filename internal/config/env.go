package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spachava753/nsoran/internal/models"
)

const (
	defaultOutputDir      = "runs"
	defaultMetricsTimeout = 10 * time.Second
	defaultLogLevel       = "info"
	defaultUseCase        = "power_saving"
)

// EnvConfig represents the parsed env.yaml configuration.
type EnvConfig struct {
	NS3Path           string        `yaml:"ns3_path" json:"ns3_path"`
	Scenario          string        `yaml:"scenario" json:"scenario"`
	ScenarioConfig    string        `yaml:"scenario_config,omitempty" json:"scenario_config,omitempty"`
	Executable        string        `yaml:"executable,omitempty" json:"executable,omitempty"`
	OutputDir         string        `yaml:"output_dir" json:"output_dir"`
	Optimized         bool          `yaml:"optimized" json:"optimized"`
	SkipConfiguration bool          `yaml:"skip_configuration" json:"skip_configuration"`
	SkipBuild         bool          `yaml:"skip_build" json:"skip_build"`
	MetricsTimeout    time.Duration `yaml:"metrics_timeout" json:"metrics_timeout"`
	LogLevel          string        `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	ReturnInfo        bool          `yaml:"return_info" json:"return_info"`
	UseCase           string        `yaml:"use_case" json:"use_case"`

	Episodes            int    `yaml:"episodes" json:"episodes"`
	NConcurrentEpisodes int    `yaml:"n_concurrent_episodes" json:"n_concurrent_episodes"`
	MaxSteps            int    `yaml:"max_steps" json:"max_steps"`
	Seed                uint64 `yaml:"seed" json:"seed"`

	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
	PowerSaving PowerSavingConfig `yaml:"power_saving,omitempty" json:"power_saving,omitempty"`
}

type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure" json:"insecure"`
}

// PowerSavingConfig weights the terms of the power saving reward.
type PowerSavingConfig struct {
	ThroughputWeight float64 `yaml:"throughput_weight" json:"throughput_weight"`
	PrbWeight        float64 `yaml:"prb_weight" json:"prb_weight"`
	ErrorWeight      float64 `yaml:"error_weight" json:"error_weight"`
}

// DefaultEnvConfig returns an EnvConfig with default values.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		OutputDir:           defaultOutputDir,
		Optimized:           true,
		MetricsTimeout:      defaultMetricsTimeout,
		LogLevel:            defaultLogLevel,
		UseCase:             defaultUseCase,
		Episodes:            1,
		NConcurrentEpisodes: 1,
		PowerSaving: PowerSavingConfig{
			ThroughputWeight: 1.0,
			PrbWeight:        0.5,
			ErrorWeight:      1.0,
		},
	}
}

// LoadEnvConfig loads and parses an env.yaml file.
func LoadEnvConfig(path string) (EnvConfig, error) {
	cfg := DefaultEnvConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading env config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing env config: %w", models.ErrConfiguration, err)
	}

	if v := os.Getenv("NSORAN_NS3_PATH"); v != "" {
		cfg.NS3Path = v
	}
	if v := os.Getenv("NSORAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Apply defaults for missing values
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if cfg.MetricsTimeout <= 0 {
		cfg.MetricsTimeout = defaultMetricsTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.UseCase == "" {
		cfg.UseCase = defaultUseCase
	}
	if cfg.Episodes == 0 {
		cfg.Episodes = 1
	}
	if cfg.NConcurrentEpisodes == 0 {
		cfg.NConcurrentEpisodes = 1
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the simulator can be located. Its errors wrap
// models.ErrConfiguration.
func (c EnvConfig) Validate() error {
	if c.Executable == "" {
		if c.NS3Path == "" {
			return fmt.Errorf("%w: env config: ns3_path is required when executable is not set", models.ErrConfiguration)
		}
		if c.Scenario == "" {
			return fmt.Errorf("%w: env config: scenario is required when executable is not set", models.ErrConfiguration)
		}
	}
	if c.Episodes < 0 {
		return fmt.Errorf("%w: env config: episodes must not be negative", models.ErrConfiguration)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: env config: max_steps must not be negative", models.ErrConfiguration)
	}
	return nil
}
