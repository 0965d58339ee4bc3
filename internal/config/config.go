// Package config handles configuration loading, validation, and management for authscan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"authscan/internal/detect"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete analyzer configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version" validate:"min=1"`

	// Input describes the log to analyze.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Detection holds the detector thresholds.
	Detection DetectionConfig `toml:"detection" json:"detection" yaml:"detection"`

	// Report controls the rendered security report.
	Report ReportConfig `toml:"report" json:"report" yaml:"report"`

	// Export configures optional machine-readable sinks.
	Export ExportConfig `toml:"export" json:"export" yaml:"export"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// InputConfig describes the log file.
type InputConfig struct {
	// Path is the authentication log to read.
	Path string `toml:"path" json:"path" yaml:"path" validate:"required"`

	// Timezone is the IANA zone log timestamps are written in.
	// "Local" (the default) uses the process zone.
	Timezone string `toml:"timezone" json:"timezone" yaml:"timezone"`
}

// DetectionConfig holds detector thresholds.
type DetectionConfig struct {
	// FailedThreshold is the minimum number of failures that triggers an alert.
	FailedThreshold int `toml:"failed_threshold" json:"failed_threshold" yaml:"failed_threshold" validate:"min=1"`

	// WindowMinutes is the clustering window.
	WindowMinutes int `toml:"window_minutes" json:"window_minutes" yaml:"window_minutes" validate:"min=1"`

	// BusinessHourStart and BusinessHourEnd bound the half-open
	// interval [start, end) of normal working hours.
	BusinessHourStart int `toml:"business_hour_start" json:"business_hour_start" yaml:"business_hour_start" validate:"min=0,max=23"`
	BusinessHourEnd   int `toml:"business_hour_end" json:"business_hour_end" yaml:"business_hour_end" validate:"min=0,max=23,gtfield=BusinessHourStart"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	// Path is where the report is written; "-" means stdout.
	Path string `toml:"path" json:"path" yaml:"path" validate:"required"`

	// Format is one of text, json, markdown, yaml.
	Format string `toml:"format" json:"format" yaml:"format" validate:"oneof=text json markdown yaml"`

	// Validate checks JSON reports against the embedded schema before writing.
	Validate bool `toml:"validate" json:"validate" yaml:"validate"`
}

// ExportConfig holds optional sinks. Empty paths disable them.
type ExportConfig struct {
	// SQLitePath receives the run and its events.
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`

	// MetricsFile receives Prometheus text-format metrics for the run.
	MetricsFile string `toml:"metrics_file" json:"metrics_file" yaml:"metrics_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level" validate:"oneof=debug info warn warning error"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format" validate:"oneof=text json"`

	// Output is stderr, stdout, file or both.
	Output string `toml:"output" json:"output" yaml:"output" validate:"oneof=stderr stdout file both"`

	// FilePath is the log file when Output includes a file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns a configuration with the stock detector thresholds.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Input: InputConfig{
			Path:     filepath.Join("logs", "sample.log"),
			Timezone: "Local",
		},
		Detection: DetectionConfig{
			FailedThreshold:   detect.DefaultFailedThreshold,
			WindowMinutes:     detect.DefaultWindowMinutes,
			BusinessHourStart: detect.DefaultBusinessStart,
			BusinessHourEnd:   detect.DefaultBusinessEnd,
		},
		Report: ReportConfig{
			Path:   filepath.Join("reports", "report.txt"),
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(PlatformLogDir(), "authscan.log"),
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// Location resolves Input.Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Input.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Input.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Input.Timezone, err)
	}
	return loc, nil
}

// DetectConfig converts the detection section into detector parameters.
func (c *Config) DetectConfig() (detect.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return detect.Config{}, err
	}
	return detect.Config{
		FailedThreshold: c.Detection.FailedThreshold,
		WindowMinutes:   c.Detection.WindowMinutes,
		BusinessStart:   c.Detection.BusinessHourStart,
		BusinessEnd:     c.Detection.BusinessHourEnd,
		Location:        loc,
	}, nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with AUTHSCAN_.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("AUTHSCAN_INPUT"); v != "" {
		c.Input.Path = v
	}
	if v := os.Getenv("AUTHSCAN_TIMEZONE"); v != "" {
		c.Input.Timezone = v
	}

	if v := os.Getenv("AUTHSCAN_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTHSCAN_THRESHOLD: %w", err)
		}
		c.Detection.FailedThreshold = n
	}
	if v := os.Getenv("AUTHSCAN_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTHSCAN_WINDOW: %w", err)
		}
		c.Detection.WindowMinutes = n
	}
	if v := os.Getenv("AUTHSCAN_HOURS"); v != "" {
		start, end, err := ParseBusinessHours(v)
		if err != nil {
			return fmt.Errorf("AUTHSCAN_HOURS: %w", err)
		}
		c.Detection.BusinessHourStart, c.Detection.BusinessHourEnd = start, end
	}

	if v := os.Getenv("AUTHSCAN_OUTPUT"); v != "" {
		c.Report.Path = v
	}
	if v := os.Getenv("AUTHSCAN_FORMAT"); v != "" {
		c.Report.Format = v
	}

	if v := os.Getenv("AUTHSCAN_SQLITE_PATH"); v != "" {
		c.Export.SQLitePath = v
	}
	if v := os.Getenv("AUTHSCAN_METRICS_FILE"); v != "" {
		c.Export.MetricsFile = v
	}

	if v := os.Getenv("AUTHSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUTHSCAN_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
