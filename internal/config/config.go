package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/devprobe/internal/checker"
	"github.com/hazz-dev/devprobe/internal/preset"
)

// DefaultPath is where the CLI looks for the config file.
const DefaultPath = "devprobe.yml"

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// ChecksConfig holds engine defaults.
type ChecksConfig struct {
	Timeout        Duration `yaml:"timeout"`
	OverallTimeout Duration `yaml:"overall_timeout"`
	MaxConcurrency int      `yaml:"max_concurrency"`
}

// MonitoringConfig controls the background check loop.
type MonitoringConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Interval            Duration `yaml:"interval"`
	Schedule            string   `yaml:"schedule"`
	Presets             []string `yaml:"presets"`
	ResponseTimeWarning Duration `yaml:"response_time_warning"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// NotificationsConfig holds all alert configuration.
type NotificationsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// HistoryConfig bounds the in-memory check history.
type HistoryConfig struct {
	Retention Duration `yaml:"retention"`
	Limit     int      `yaml:"limit"`
}

// LoggingConfig selects the log level and an optional log directory.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects the metrics and tracing exporters.
type TelemetryConfig struct {
	Metrics string `yaml:"metrics"`
	Tracing string `yaml:"tracing"`
}

// Config is the root application configuration. Presets holds the user
// presets merged over the built-in catalog, already validated.
type Config struct {
	Checks        ChecksConfig
	Presets       map[string][]checker.Descriptor
	Monitoring    MonitoringConfig
	Notifications NotificationsConfig
	Server        ServerConfig
	History       HistoryConfig
	Logging       LoggingConfig
	Telemetry     TelemetryConfig
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validMetrics = map[string]bool{"none": true, "stdout": true, "prometheus": true, "otlp": true}
	validTracing = map[string]bool{"none": true, "stdout": true, "otlp": true}
)

type rawConfig struct {
	Checks struct {
		Timeout        string `yaml:"timeout"`
		OverallTimeout string `yaml:"overall_timeout"`
		MaxConcurrency int    `yaml:"max_concurrency"`
	} `yaml:"checks"`
	Presets    map[string][]checker.ServiceSpec `yaml:"presets"`
	Monitoring struct {
		Enabled             *bool    `yaml:"enabled"`
		Interval            string   `yaml:"interval"`
		Schedule            string   `yaml:"schedule"`
		Presets             []string `yaml:"presets"`
		ResponseTimeWarning string   `yaml:"response_time_warning"`
	} `yaml:"monitoring"`
	Notifications struct {
		Webhook struct {
			URL      string `yaml:"url"`
			Cooldown string `yaml:"cooldown"`
		} `yaml:"webhook"`
	} `yaml:"notifications"`
	Server  ServerConfig `yaml:"server"`
	History struct {
		Retention string `yaml:"retention"`
		Limit     int    `yaml:"limit"`
	} `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Load reads, parses, and validates the config file at path. A missing
// file is created with the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML config data. Every problem found is reported.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}
	duration := func(field, value string, def time.Duration) Duration {
		if value == "" {
			return Duration{def}
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			fail("%s: invalid duration %q: %w", field, value, err)
			return Duration{def}
		}
		if d <= 0 {
			fail("%s: must be positive, got %s", field, value)
			return Duration{def}
		}
		return Duration{d}
	}

	cfg := Default()

	cfg.Checks.Timeout = duration("checks.timeout", raw.Checks.Timeout, cfg.Checks.Timeout.Duration)
	cfg.Checks.OverallTimeout = duration("checks.overall_timeout", raw.Checks.OverallTimeout, cfg.Checks.OverallTimeout.Duration)
	switch {
	case raw.Checks.MaxConcurrency < 0:
		fail("checks.max_concurrency: must be positive, got %d", raw.Checks.MaxConcurrency)
	case raw.Checks.MaxConcurrency > 0:
		cfg.Checks.MaxConcurrency = raw.Checks.MaxConcurrency
	}

	for name, specs := range raw.Presets {
		if name == preset.All {
			fail("presets: name %q is reserved", preset.All)
			continue
		}
		descriptors := make([]checker.Descriptor, 0, len(specs))
		for i, spec := range specs {
			if err := spec.CheckTimeout(); err != nil {
				fail("presets.%s[%d]: %w", name, i, err)
				continue
			}
			d := spec.Descriptor()
			if err := d.Validate(); err != nil {
				fail("presets.%s[%d]: %w", name, i, err)
				continue
			}
			descriptors = append(descriptors, d)
		}
		cfg.Presets[name] = descriptors
	}

	if raw.Monitoring.Enabled != nil {
		cfg.Monitoring.Enabled = *raw.Monitoring.Enabled
	}
	cfg.Monitoring.Interval = duration("monitoring.interval", raw.Monitoring.Interval, cfg.Monitoring.Interval.Duration)
	cfg.Monitoring.ResponseTimeWarning = duration("monitoring.response_time_warning", raw.Monitoring.ResponseTimeWarning, cfg.Monitoring.ResponseTimeWarning.Duration)
	if raw.Monitoring.Schedule != "" {
		if _, err := cron.ParseStandard(raw.Monitoring.Schedule); err != nil {
			fail("monitoring.schedule: %w", err)
		}
		cfg.Monitoring.Schedule = raw.Monitoring.Schedule
	}
	if raw.Monitoring.Presets != nil {
		cfg.Monitoring.Presets = raw.Monitoring.Presets
	}
	for _, name := range cfg.Monitoring.Presets {
		if _, ok := cfg.Presets[name]; !ok && name != preset.All {
			fail("monitoring.presets: unknown preset %q", name)
		}
	}

	if u := raw.Notifications.Webhook.URL; u != "" {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			fail("notifications.webhook.url: %q is not an http(s) URL", u)
		}
		cfg.Notifications.Webhook.URL = u
	}
	cfg.Notifications.Webhook.Cooldown = duration("notifications.webhook.cooldown", raw.Notifications.Webhook.Cooldown, cfg.Notifications.Webhook.Cooldown.Duration)

	if raw.Server.Address != "" {
		cfg.Server.Address = raw.Server.Address
	}

	cfg.History.Retention = duration("history.retention", raw.History.Retention, cfg.History.Retention.Duration)
	switch {
	case raw.History.Limit < 0:
		fail("history.limit: must be positive, got %d", raw.History.Limit)
	case raw.History.Limit > 0:
		cfg.History.Limit = raw.History.Limit
	}

	if raw.Logging.Level != "" {
		cfg.Logging.Level = strings.ToLower(raw.Logging.Level)
	}
	if !validLevels[cfg.Logging.Level] {
		fail("logging.level: invalid level %q (must be debug, info, warn, or error)", raw.Logging.Level)
	}
	cfg.Logging.Dir = raw.Logging.Dir

	if raw.Telemetry.Metrics != "" {
		cfg.Telemetry.Metrics = raw.Telemetry.Metrics
	}
	if !validMetrics[cfg.Telemetry.Metrics] {
		fail("telemetry.metrics: invalid exporter %q (must be none, stdout, prometheus, or otlp)", cfg.Telemetry.Metrics)
	}
	if raw.Telemetry.Tracing != "" {
		cfg.Telemetry.Tracing = raw.Telemetry.Tracing
	}
	if !validTracing[cfg.Telemetry.Tracing] {
		fail("telemetry.tracing: invalid exporter %q (must be none, stdout, or otlp)", cfg.Telemetry.Tracing)
	}

	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Checks: ChecksConfig{
			Timeout:        Duration{5 * time.Second},
			OverallTimeout: Duration{30 * time.Second},
			MaxConcurrency: 10,
		},
		Presets: preset.Defaults(),
		Monitoring: MonitoringConfig{
			Enabled:             true,
			Interval:            Duration{60 * time.Second},
			Presets:             []string{preset.All},
			ResponseTimeWarning: Duration{2 * time.Second},
		},
		Notifications: NotificationsConfig{
			Webhook: WebhookConfig{Cooldown: Duration{5 * time.Minute}},
		},
		Server: ServerConfig{Address: "127.0.0.1:5000"},
		History: HistoryConfig{
			Retention: Duration{24 * time.Hour},
			Limit:     1000,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{Metrics: "none", Tracing: "none"},
	}
}

// fileConfig is the on-disk layout written by Marshal.
type fileConfig struct {
	Checks        ChecksConfig                     `yaml:"checks"`
	Presets       map[string][]checker.ServiceSpec `yaml:"presets"`
	Monitoring    MonitoringConfig                 `yaml:"monitoring"`
	Notifications NotificationsConfig              `yaml:"notifications"`
	Server        ServerConfig                     `yaml:"server"`
	History       HistoryConfig                    `yaml:"history"`
	Logging       LoggingConfig                    `yaml:"logging"`
	Telemetry     TelemetryConfig                  `yaml:"telemetry"`
}

// Marshal renders cfg as YAML that Parse accepts.
func Marshal(cfg *Config) ([]byte, error) {
	fc := fileConfig{
		Checks:        cfg.Checks,
		Presets:       make(map[string][]checker.ServiceSpec, len(cfg.Presets)),
		Monitoring:    cfg.Monitoring,
		Notifications: cfg.Notifications,
		Server:        cfg.Server,
		History:       cfg.History,
		Logging:       cfg.Logging,
		Telemetry:     cfg.Telemetry,
	}
	for name, descriptors := range cfg.Presets {
		specs := make([]checker.ServiceSpec, len(descriptors))
		for i, d := range descriptors {
			specs[i] = checker.SpecFor(d)
		}
		fc.Presets[name] = specs
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

const defaultHeader = "# devprobe configuration. Durations use Go syntax (5s, 1m30s).\n"

// WriteDefault writes the default configuration to path, creating parent
// directories as needed.
func WriteDefault(path string) error {
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// PresetNames returns the configured preset names in sorted order.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
