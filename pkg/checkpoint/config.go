package checkpoint

import "fmt"

// Config is the read-only-for-the-run job configuration.
type Config struct {
	InputPath      string `yaml:"input_path,omitempty"`
	InputData      string `yaml:"input_data,omitempty"` // raw JSON array, mutually exclusive with InputPath
	CheckpointPath string `yaml:"checkpoint_path"`

	Concurrency   int  `yaml:"concurrency,omitempty"`
	MaxRetries    *int `yaml:"max_retries,omitempty"`
	ItemTimeoutMs int  `yaml:"item_timeout_ms,omitempty"`
}

// SetDefaults applies the engine's default configuration: concurrency=1,
// maxRetries=3, no timeout.
func (c *Config) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxRetries == nil {
		d := 3
		c.MaxRetries = &d
	}
}

// GetMaxRetries returns the effective maxRetries, defaulting to 3 if unset.
func (c *Config) GetMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.InputPath == "" && c.InputData == "" {
		return fmt.Errorf("config: exactly one of input_path or input_data is required")
	}
	if c.InputPath != "" && c.InputData != "" {
		return fmt.Errorf("config: input_path and input_data are mutually exclusive")
	}
	if c.CheckpointPath == "" {
		return fmt.Errorf("config: checkpoint_path is required")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency must be positive")
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be non-negative")
	}
	if c.ItemTimeoutMs < 0 {
		return fmt.Errorf("config: item_timeout_ms must be non-negative")
	}
	return nil
}
