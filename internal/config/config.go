// Package config loads the matrixgen configuration file and applies
// defaults. The GitHub token is deliberately not part of the file: it is
// read from the environment by the command layer.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked for when --config is not given.
const DefaultFile = ".matrixgen.yml"

// Duration wraps time.Duration so YAML values can be written as "2s",
// "500ms" and so on.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Config drives a generation run. Zero values are filled in by Default;
// every knob the orchestrator and the fetch layer need is carried here so
// neither reads process-wide state.
type Config struct {
	// RegistryFile is the static plugin registry (JSON object mapping
	// plugin IDs to "github:owner/repo" references).
	RegistryFile string `yaml:"registry_file"`
	// OutputFile is where the generated report is written.
	OutputFile string `yaml:"output_file"`

	// BatchSize is how many plugins are fetched concurrently per batch.
	BatchSize int `yaml:"batch_size"`
	// BatchDelay is the pause between batches, to stay friendly with
	// upstream rate limits.
	BatchDelay Duration `yaml:"batch_delay"`

	// MaxRetries and BaseDelay tune the HTTP retry loop.
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
	// Timeout is the per-request HTTP timeout.
	Timeout Duration `yaml:"timeout"`

	// GitHubAPIURL overrides the GitHub API base URL (GitHub Enterprise,
	// tests). Empty means api.github.com.
	GitHubAPIURL string `yaml:"github_api_url"`
	// NpmRegistry overrides the npm registry base URL. Empty means
	// registry.npmjs.org.
	NpmRegistry string `yaml:"npm_registry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RegistryFile: "plugins.json",
		OutputFile:   "registry.json",
		BatchSize:    10,
		BatchDelay:   Duration{2 * time.Second},
		MaxRetries:   3,
		BaseDelay:    Duration{500 * time.Millisecond},
		Timeout:      Duration{30 * time.Second},
	}
}

// Load reads the config file at path. An empty path falls back to
// DefaultFile in the working directory, and to Default() when that does
// not exist either. An explicit path that cannot be read is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return Default(), nil
		}
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config YAML: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the run could not execute with.
func (c *Config) Validate() error {
	var errs []error
	if c.RegistryFile == "" {
		errs = append(errs, errors.New("registry_file must not be empty"))
	}
	if c.OutputFile == "" {
		errs = append(errs, errors.New("output_file must not be empty"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.BatchDelay.Duration < 0 {
		errs = append(errs, errors.New("batch_delay must not be negative"))
	}
	if c.BaseDelay.Duration < 0 {
		errs = append(errs, errors.New("base_delay must not be negative"))
	}
	if c.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	return errors.Join(errs...)
}
