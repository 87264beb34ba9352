// Package config loads the engine's YAML job configuration file, wrapping
// the job's checkpoint configuration with the ambient concerns (logging,
// metrics) a real deployment needs: a plain struct decoded with
// gopkg.in/yaml.v3, a SetDefaults/Validate pair.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DG10-Agency/Agentic-Batch-Loop-Engine-by-DG10.Agency/pkg/checkpoint"
)

// Config is the on-disk job configuration file format.
type Config struct {
	Job checkpoint.Config `yaml:"job"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
	LogFile   string `yaml:"log_file,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics at /metrics on this
	// address for the duration of the run (e.g. "127.0.0.1:9090").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// SetDefaults applies defaults across the whole config, including the
// nested job config.
func (c *Config) SetDefaults() {
	c.Job.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}

// Validate checks the whole config.
func (c *Config) Validate() error {
	return c.Job.Validate()
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.SetDefaults()
	return &c, nil
}
