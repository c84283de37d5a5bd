package jobsched

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// SchedulerConfig is the declarative form of a Scheduler's construction
// Options, loadable from a YAML or TOML file so a deployment can tune
// concurrency and timeouts without a rebuild. Job bodies are still wired
// up in Go; a SchedulerConfig only ever configures the Scheduler itself.
type SchedulerConfig struct {
	Label           string `yaml:"label" toml:"label" env:"JOBSCHED_LABEL"`
	JobsWindow      int    `yaml:"jobsWindow" toml:"jobs_window" env:"JOBSCHED_JOBS_WINDOW"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds" toml:"timeout_seconds" env:"JOBSCHED_TIMEOUT_SECONDS"`
	ShutdownSeconds int    `yaml:"shutdownSeconds" toml:"shutdown_seconds" env:"JOBSCHED_SHUTDOWN_SECONDS"`
	Critical        *bool  `yaml:"critical" toml:"critical" env:"JOBSCHED_CRITICAL"`
}

// LoadSchedulerConfigYAML reads and unmarshals a YAML-encoded
// SchedulerConfig from path.
func LoadSchedulerConfigYAML(path string) (*SchedulerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobsched: read config %s: %w", path, err)
	}
	cfg := &SchedulerConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("jobsched: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadSchedulerConfigTOML reads and unmarshals a TOML-encoded
// SchedulerConfig from path.
func LoadSchedulerConfigTOML(path string) (*SchedulerConfig, error) {
	cfg := &SchedulerConfig{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("jobsched: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg's fields from the environment variables named in
// its `env` struct tags, using cast to coerce the raw string values into
// the field's Go type. A variable that is unset is left untouched.
func (cfg *SchedulerConfig) ApplyEnv() error {
	if v, ok := os.LookupEnv("JOBSCHED_LABEL"); ok {
		cfg.Label = v
	}
	if v, ok := os.LookupEnv("JOBSCHED_JOBS_WINDOW"); ok {
		n, err := cast.FromString(v, "int")
		if err != nil {
			return fmt.Errorf("jobsched: JOBSCHED_JOBS_WINDOW: %w", err)
		}
		cfg.JobsWindow = n.(int)
	}
	if v, ok := os.LookupEnv("JOBSCHED_TIMEOUT_SECONDS"); ok {
		n, err := cast.FromString(v, "int")
		if err != nil {
			return fmt.Errorf("jobsched: JOBSCHED_TIMEOUT_SECONDS: %w", err)
		}
		cfg.TimeoutSeconds = n.(int)
	}
	if v, ok := os.LookupEnv("JOBSCHED_SHUTDOWN_SECONDS"); ok {
		n, err := cast.FromString(v, "int")
		if err != nil {
			return fmt.Errorf("jobsched: JOBSCHED_SHUTDOWN_SECONDS: %w", err)
		}
		cfg.ShutdownSeconds = n.(int)
	}
	if v, ok := os.LookupEnv("JOBSCHED_CRITICAL"); ok {
		raw, err := cast.FromString(v, "bool")
		if err != nil {
			return fmt.Errorf("jobsched: JOBSCHED_CRITICAL: %w", err)
		}
		b := raw.(bool)
		cfg.Critical = &b
	}
	return nil
}

// Options converts a SchedulerConfig into the Option slice NewScheduler
// expects. Zero-valued numeric fields are left at the Scheduler's own
// defaults (unbounded window, no timeout) rather than forced to zero.
func (cfg *SchedulerConfig) Options() []Option {
	var opts []Option
	if cfg.Label != "" {
		opts = append(opts, WithSchedulerLabel(cfg.Label))
	}
	if cfg.JobsWindow > 0 {
		opts = append(opts, WithJobsWindow(cfg.JobsWindow))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.ShutdownSeconds > 0 {
		opts = append(opts, WithShutdownTimeout(time.Duration(cfg.ShutdownSeconds)*time.Second))
	}
	if cfg.Critical != nil {
		opts = append(opts, WithSchedulerCritical(*cfg.Critical))
	}
	return opts
}

// NewSchedulerFromConfig builds a Scheduler from a SchedulerConfig,
// appending any extra Options the caller passes after the config-derived
// ones so callers can still override a field programmatically.
func NewSchedulerFromConfig(cfg *SchedulerConfig, items []any, extra ...Option) (*Scheduler, error) {
	opts := append(cfg.Options(), extra...)
	return NewSchedulerWithOptions(opts, items...)
}
