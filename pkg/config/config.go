package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds application configuration
type Config struct {
	// TargetName is the exact remote name the check looks for.
	TargetName string `yaml:"target_name" default:"RobotSpider"`
	// Adapter selects the local controller; empty means the first one.
	Adapter string `yaml:"adapter"`

	DiscoveryDuration time.Duration `yaml:"discovery_duration" default:"10s"`
	FlushCache        bool          `yaml:"flush_cache" default:"true"`
	StopOnMatch       bool          `yaml:"stop_on_match"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	SDPTimeout     time.Duration `yaml:"sdp_timeout" default:"20s"`
	ProbeDuration  time.Duration `yaml:"probe_duration" default:"5s"`
	ProbeReadSize  int           `yaml:"probe_read_size" default:"1024"`

	// LogLevel is empty (silent), debug, info, warn or error.
	LogLevel     string `yaml:"log_level"`
	OutputFormat string `yaml:"output_format" default:"table"`
	NoColor      bool   `yaml:"no_color"`
}

// LoadError describes a configuration file that could not be used
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		msg := "cannot read config file"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "config file does not exist"
		}
		return nil, &LoadError{File: path, Message: msg, Cause: err}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{File: path, Message: "invalid YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{File: path, Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case c.TargetName == "":
		return errors.New("target_name must not be empty")
	case c.DiscoveryDuration <= 0:
		return fmt.Errorf("discovery_duration must be positive, got %s", c.DiscoveryDuration)
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	case c.SDPTimeout <= 0:
		return fmt.Errorf("sdp_timeout must be positive, got %s", c.SDPTimeout)
	case c.ProbeDuration < 0:
		return fmt.Errorf("probe_duration must not be negative, got %s", c.ProbeDuration)
	case c.ProbeReadSize <= 0:
		return fmt.Errorf("probe_read_size must be positive, got %d", c.ProbeReadSize)
	case c.OutputFormat != FormatTable && c.OutputFormat != FormatJSON:
		return fmt.Errorf("output_format must be %q or %q, got %q", FormatTable, FormatJSON, c.OutputFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps a level name to logrus. The empty name keeps the logger
// silent (panic level).
func ParseLogLevel(level string) (logrus.Level, error) {
	switch level {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// NewLogger creates a configured logger instance writing to stderr
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logrus.PanicLevel
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
