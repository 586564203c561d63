package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/config"
	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/observe"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3"
var Version = "dev"

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "sonido-voz",
	Short: "Acoustic AI-voice detector",
	Long: `sonido-voz tracks the pitch of a recording, measures cycle-to-cycle
period jitter and the harmonics-to-noise ratio, and scores the result
against four threshold rules. Three or more points mean "AI Detected".

WAV files (16-bit PCM) are decoded natively; anything else goes through
ffmpeg, which must be on PATH or configured in the config file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json, console)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config, or the defaults, and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}

	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newAnalyzer wires the decoder, classifier and telemetry described by cfg
func newAnalyzer(cfg *config.Config, logger logging.Logger, metrics *observe.Metrics) (*detector.Analyzer, error) {
	classifier, err := cfg.NewClassifier()
	if err != nil {
		return nil, err
	}
	decoder := transcode.NewAutoDecoder(transcode.NewFFmpegDecoder(&cfg.Decoder, logger))

	return detector.NewAnalyzer(cfg.Analysis,
		detector.WithLogger(logger),
		detector.WithDecoder(decoder),
		detector.WithClassifier(classifier),
		detector.WithMetrics(metrics),
	)
}
