package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// Load reads the YAML file at path over Default and validates the result
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over Default and validates the result.
// Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and returns every problem found, joined
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if _, err := logging.ParseLevel(cfg.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("server.log_level: %w", err))
	}
	switch cfg.Server.LogFormat {
	case "", "text", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, console", cfg.Server.LogFormat))
	}

	if err := cfg.Decoder.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decoder: %w", err))
	}
	if err := cfg.Analysis.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}
	if err := cfg.Classifier.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classifier: %w", err))
	}

	return errors.Join(errs...)
}

// NewClassifier builds the classifier described by the classifier section
func (c *Config) NewClassifier() (*detector.Classifier, error) {
	return detector.NewClassifier(c.Classifier)
}

// NewLogger builds the logger described by the server section: logrus for
// "text" and "json", the colored console logger for "console".
func (c *Config) NewLogger(out io.Writer) logging.Logger {
	level, err := logging.ParseLevel(c.Server.LogLevel)
	if err != nil {
		level = logging.InfoLevel
	}
	if c.Server.LogFormat == "console" {
		return logging.NewConsoleLogger(out, level)
	}
	return logging.NewLogrusLogger(out, c.Server.LogFormat, level)
}
