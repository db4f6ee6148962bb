package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tool-level settings. Recipe contents live in their own
// documents; this is only about where things are and how patient to be.
type Config struct {
	StateDir   string `mapstructure:"state_dir"`   // job store location
	RecipesDir string `mapstructure:"recipes_dir"` // recipe YAML documents
	ScriptsDir string `mapstructure:"scripts_dir"` // sbatch scripts referenced by recipes
	ResultsDir string `mapstructure:"results_dir"` // benchmark/monitoring artifacts
	LogDir     string `mapstructure:"log_dir"`     // scheduler job output files

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Polling against the scheduler
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	NodeWaitTimeout time.Duration `mapstructure:"node_wait_timeout"`

	// Health check retry budget. The right values are deployment-specific,
	// so they are configuration rather than constants.
	HealthRetries        int           `mapstructure:"health_retries"`
	HealthInitialBackoff time.Duration `mapstructure:"health_initial_backoff"`
	HealthMaxBackoff     time.Duration `mapstructure:"health_max_backoff"`
	HealthTimeout        time.Duration `mapstructure:"health_timeout"`

	// Monitor defaults
	MonitorDuration time.Duration `mapstructure:"monitor_duration"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`

	// Status API
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration with viper: defaults, then an optional config file
// ($HOME/.aifctl/config.yaml or the given path), then AIFCTL_* environment
// variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	base := defaultBaseDir()
	v.SetDefault("state_dir", base)
	v.SetDefault("recipes_dir", filepath.Join(base, "configs"))
	v.SetDefault("scripts_dir", filepath.Join(base, "scripts"))
	v.SetDefault("results_dir", filepath.Join(base, "results"))
	v.SetDefault("log_dir", filepath.Join(base, "logs"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("node_wait_timeout", 5*time.Minute)
	v.SetDefault("health_retries", 5)
	v.SetDefault("health_initial_backoff", 2*time.Second)
	v.SetDefault("health_max_backoff", 30*time.Second)
	v.SetDefault("health_timeout", 10*time.Second)
	v.SetDefault("monitor_duration", 5*time.Minute)
	v.SetDefault("monitor_interval", 5*time.Second)
	v.SetDefault("listen_addr", "127.0.0.1:8642")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".aifctl"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AIFCTL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// JobStorePath returns the location of the persistent job registry.
func (c *Config) JobStorePath() string {
	return filepath.Join(c.StateDir, "jobs.json")
}

// BenchmarkResultsDir returns where benchmark artifacts land.
func (c *Config) BenchmarkResultsDir() string {
	return filepath.Join(c.ResultsDir, "benchmarks")
}

// MonitoringResultsDir returns where monitoring artifacts land.
func (c *Config) MonitoringResultsDir() string {
	return filepath.Join(c.ResultsDir, "monitoring")
}

func defaultBaseDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".aifctl")
	}
	return ".aifctl"
}
