// Package server exposes the detector over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RyanBlaney/sonido-voz/detector"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/observe"
)

// UploadField is the multipart field holding the audio file
const UploadField = "file"

// Config holds the HTTP settings
type Config struct {
	Listen          string
	MaxUploadBytes  int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Metrics         bool // Serve /metrics from the default Prometheus registry
	Version         string
}

// Server serves voice detection requests
type Server struct {
	cfg      Config
	analyzer *detector.Analyzer
	logger   logging.Logger
	metrics  *observe.Metrics
	handler  http.Handler
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNoOp(logger) }
}

// WithMetrics sets the instruments used by the request middleware
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds a server around analyzer
func New(cfg Config, analyzer *detector.Analyzer, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		logger:   &logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(logging.Fields{"component": "server"})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/detect_voice", s.handleDetect)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.handler = cors(observe.Middleware(s.metrics, s.logger)(mux))
	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", logging.Fields{"addr": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithContext(r.Context())

	if r.ContentLength > s.cfg.MaxUploadBytes {
		logger.Warn("upload rejected", logging.Fields{"content_length": r.ContentLength})
		writeJSON(w, http.StatusRequestEntityTooLarge, uploadError(
			fmt.Sprintf("Upload exceeds %d bytes.", s.cfg.MaxUploadBytes)))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("upload rejected", logging.Fields{"limit": tooLarge.Limit})
			writeJSON(w, http.StatusRequestEntityTooLarge, uploadError(
				fmt.Sprintf("Upload exceeds %d bytes.", tooLarge.Limit)))
			return
		}
		logger.Warn("malformed upload", logging.Fields{"error": err.Error()})
		writeJSON(w, http.StatusBadRequest, uploadError(
			fmt.Sprintf("Expected a multipart form with a %q file field.", UploadField)))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Warn("reading upload failed", logging.Fields{"error": err.Error()})
		writeJSON(w, http.StatusBadRequest, uploadError("Upload could not be read."))
		return
	}

	fields := logging.Fields{"filename": header.Filename, "bytes": len(data)}
	res, err := s.analyzer.AnalyzeBytes(r.Context(), data)
	if err != nil {
		if !detector.IsVerdictless(err) {
			logger.Error(err, "detection failed", fields)
		}
		writeJSON(w, http.StatusOK, detector.NewErrorReport(err))
		return
	}

	writeJSON(w, http.StatusOK, res.Report())
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	msg := "sonido-voz ready"
	if s.cfg.Version != "" {
		msg = fmt.Sprintf("sonido-voz %s ready", s.cfg.Version)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func uploadError(msg string) detector.ErrorReport {
	return detector.ErrorReport{
		Status:  detector.StatusError,
		Message: msg,
		Reason:  detector.KindInputUnusable.Reason(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cors allows any origin and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Expose-Headers", observe.RequestIDHeader)
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			reqHeaders := r.Header.Get("Access-Control-Request-Headers")
			if reqHeaders == "" {
				reqHeaders = "*"
			}
			h.Set("Access-Control-Allow-Headers", reqHeaders)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
