package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/observe"
	"github.com/RyanBlaney/sonido-voz/server"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP detection service",
	Long: `Run the HTTP service.

Endpoints:
  POST /api/detect_voice  multipart upload, field "file"
  GET  /                  readiness message
  GET  /healthz           liveness
  GET  /metrics           Prometheus metrics (telemetry.metrics)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(cfg.Telemetry.ServiceName, Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error(err, "telemetry shutdown failed")
		}
	}()
	metrics := observe.DefaultMetrics()

	if err := transcode.NewFFmpegDecoder(&cfg.Decoder, logger).CheckAvailability(ctx); err != nil {
		logger.Warn("ffmpeg unavailable; only PCM16 WAV uploads will decode", logging.Fields{"error": err.Error()})
	}

	analyzer, err := newAnalyzer(cfg, logger, metrics)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Listen:          cfg.Server.Listen,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Metrics:         cfg.Telemetry.Metrics,
		Version:         Version,
	}, analyzer, server.WithLogger(logger), server.WithMetrics(metrics))

	return srv.Run(ctx)
}
