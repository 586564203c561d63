// Package config loads the sonido-voz YAML configuration.
package config

import (
	"time"

	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// Config is the root of the configuration file
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
	Decoder    transcode.DecoderConfig   `yaml:"decoder"`
	Analysis   detector.Params           `yaml:"analysis"`
	Classifier detector.ClassifierConfig `yaml:"classifier"`
}

// ServerConfig configures the HTTP service and its logging
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`  // debug, info, warn, error
	LogFormat       string        `yaml:"log_format"` // text, json or console
}

// TelemetryConfig names the service in metrics and traces
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	Metrics     bool   `yaml:"metrics"` // Serve /metrics
}

// Default returns the configuration used when no file is given. Files are
// decoded on top of it, so every key is optional.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8000",
			MaxUploadBytes:  10 << 20,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			LogLevel:        "info",
			LogFormat:       "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "sonido-voz",
			Metrics:     true,
		},
		Decoder:    *transcode.DefaultDecoderConfig(),
		Analysis:   detector.DefaultParams(),
		Classifier: detector.DefaultClassifierConfig(),
	}
}
