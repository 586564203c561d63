package detector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/harmonic"
	"github.com/RyanBlaney/sonido-voz/algorithms/speech"
	"github.com/RyanBlaney/sonido-voz/algorithms/temporal"
	"github.com/RyanBlaney/sonido-voz/algorithms/tonal"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/observe"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// Stage names used in errors, spans and metrics
const (
	StageInput       = "input"
	StageDecode      = "decode"
	StageNormalize   = "normalize"
	StagePitch       = "pitch"
	StageJitter      = "jitter"
	StageHarmonicity = "harmonicity"
	StageAggregate   = "aggregate"
	StageClassify    = "classify"
)

// Params holds every numeric parameter of the pipeline
type Params struct {
	TargetIntensity float64                    `json:"target_intensity" yaml:"target_intensity"` // dB
	Pitch           tonal.PitchParams          `json:"pitch" yaml:"pitch"`
	Points          speech.PointParams         `json:"points" yaml:"points"`
	Jitter          speech.JitterParams        `json:"jitter" yaml:"jitter"`
	Harmonicity     harmonic.HarmonicityParams `json:"harmonicity" yaml:"harmonicity"`
	MaxDuration     time.Duration              `json:"max_duration" yaml:"max_duration"` // Longer input is truncated, 0 = no limit
	Timeout         time.Duration              `json:"timeout" yaml:"timeout"`           // 0 = no deadline
}

// DefaultParams returns the detector's fixed analysis settings
func DefaultParams() Params {
	return Params{
		TargetIntensity: temporal.DefaultTargetIntensity,
		Pitch:           tonal.DefaultPitchParams(),
		Points:          speech.DefaultPointParams(),
		Jitter:          speech.DefaultJitterParams(),
		Harmonicity:     harmonic.DefaultHarmonicityParams(),
		MaxDuration:     60 * time.Second,
		Timeout:         30 * time.Second,
	}
}

// Validate checks every stage's parameters and that the pitch and pulse
// stages search the same F0 range.
func (p Params) Validate() error {
	var errs []error
	if err := p.Pitch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pitch: %w", err))
	}
	if err := p.Jitter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("jitter: %w", err))
	}
	if err := p.Harmonicity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("harmonicity: %w", err))
	}
	if p.Points.Floor != p.Pitch.Floor || p.Points.Ceiling != p.Pitch.Ceiling {
		errs = append(errs, fmt.Errorf("points range [%g, %g] differs from pitch range [%g, %g]",
			p.Points.Floor, p.Points.Ceiling, p.Pitch.Floor, p.Pitch.Ceiling))
	}
	if !common.IsFinite(p.TargetIntensity) {
		errs = append(errs, errors.New("target intensity must be finite"))
	}
	if p.MaxDuration < 0 || p.Timeout < 0 {
		errs = append(errs, errors.New("max duration and timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Result is a successful analysis
type Result struct {
	Features Features      `json:"features"`
	Verdict  Verdict       `json:"verdict"`
	Duration time.Duration `json:"duration"` // Audio analysed
	Voiced   int           `json:"voiced_frames"`
	Pulses   int           `json:"pulses"`
}

// Analyzer runs the pipeline: intensity normalisation, pitch tracking,
// then pulse/jitter and harmonicity in parallel, aggregation and scoring.
// It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	params     Params
	classifier *Classifier
	decoder    transcode.Decoder
	logger     logging.Logger
	metrics    *observe.Metrics
	tracer     trace.Tracer

	pitch       *tonal.PitchTracker
	points      *speech.PointExtractor
	harmonicity *harmonic.HarmonicityCC
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger; the default discards output
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) { a.logger = logging.OrNoOp(logger) }
}

// WithMetrics sets the metric instruments; the default records nothing
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithTracer sets the tracer; the default uses the global provider
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// WithDecoder sets the decoder used by AnalyzeBytes
func WithDecoder(d transcode.Decoder) Option {
	return func(a *Analyzer) { a.decoder = d }
}

// WithClassifier replaces the default rule table
func WithClassifier(c *Classifier) Option {
	return func(a *Analyzer) { a.classifier = c }
}

// NewAnalyzer validates params and builds the stage components
func NewAnalyzer(params Params, opts ...Option) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis parameters: %w", err)
	}

	a := &Analyzer{
		params: params,
		logger: &logging.NoOpLogger{},
		tracer: observe.Tracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.classifier == nil {
		a.classifier = DefaultClassifier()
	}
	a.logger = a.logger.WithFields(logging.Fields{"component": "analyzer"})

	var err error
	if a.pitch, err = tonal.NewPitchTracker(params.Pitch, a.logger); err != nil {
		return nil, err
	}
	if a.points, err = speech.NewPointExtractor(params.Points, a.logger); err != nil {
		return nil, err
	}
	if a.harmonicity, err = harmonic.NewHarmonicityCC(params.Harmonicity, a.logger); err != nil {
		return nil, err
	}

	return a, nil
}

// Params returns the analysis parameters
func (a *Analyzer) Params() Params {
	return a.params
}

// Classifier returns the classifier in use
func (a *Analyzer) Classifier() *Classifier {
	return a.classifier
}

// Analyze runs the pipeline on mono samples in [-1, 1]. Every failure is an
// *AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	return a.run(ctx, "detector.analyze", func(ctx context.Context) (*Result, error) {
		return a.analyzeSamples(ctx, samples, sampleRate)
	})
}

// AnalyzeAudio runs the pipeline on decoded audio
func (a *Analyzer) AnalyzeAudio(ctx context.Context, audio *transcode.AudioData) (*Result, error) {
	if audio == nil {
		return nil, newError(KindInputUnusable, StageInput, errors.New("no audio"))
	}
	return a.Analyze(ctx, audio.PCM, audio.SampleRate)
}

// AnalyzeBytes decodes data with the configured decoder and runs the
// pipeline. The deadline covers decoding.
func (a *Analyzer) AnalyzeBytes(ctx context.Context, data []byte) (*Result, error) {
	return a.run(ctx, "detector.analyze_bytes", func(ctx context.Context) (*Result, error) {
		if a.decoder == nil {
			return nil, newError(KindInternal, StageDecode, errors.New("no decoder configured"))
		}

		var audio *transcode.AudioData
		err := a.stage(ctx, StageDecode, KindInputUnusable, func(ctx context.Context) error {
			var err error
			audio, err = a.decoder.Decode(ctx, data)
			return err
		})
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, newError(KindTimeout, StageDecode, err)
		}
		if audio == nil {
			return nil, newError(KindInputUnusable, StageDecode, transcode.ErrNoUsableAudio)
		}

		return a.analyzeSamples(ctx, audio.PCM, audio.SampleRate)
	})
}

// run wraps one analysis with the deadline, a span, metrics and logging
func (a *Analyzer) run(ctx context.Context, name string, fn func(context.Context) (*Result, error)) (*Result, error) {
	start := time.Now()
	if a.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.params.Timeout)
		defer cancel()
	}

	ctx, span := a.tracer.Start(ctx, name)
	defer span.End()
	defer a.metrics.TrackActive(ctx)()

	logger := a.logger.WithContext(ctx).WithFields(observe.TraceFields(ctx))

	res, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		ae := stageError(ctx, KindInternal, StageInput, err)
		span.RecordError(ae)
		span.SetStatus(codes.Error, ae.Kind.String())
		a.metrics.RecordAnalysis(ctx, "Error", ae.Kind.Reason(), elapsed)

		fields := logging.Fields{
			"kind":        ae.Kind.String(),
			"stage":       ae.Stage,
			"duration_ms": elapsed.Milliseconds(),
		}
		if ae.Kind == KindInternal {
			logger.Error(ae, "analysis failed", fields)
		} else {
			logger.Warn("analysis produced no verdict", fields, logging.Fields{"error": ae.Error()})
		}
		return nil, ae
	}

	span.SetAttributes(
		attribute.String("verdict.status", res.Verdict.Status),
		attribute.Int("verdict.ai_points", res.Verdict.AIPoints),
	)
	a.metrics.RecordAnalysis(ctx, res.Verdict.Status, "", elapsed)
	a.metrics.RecordPoints(ctx, res.Verdict.AIPoints)

	logger.Info("analysis complete", logging.Fields{
		"status":       res.Verdict.Status,
		"ai_points":    res.Verdict.AIPoints,
		"f0_mean":      res.Features.F0Mean,
		"f0_max":       res.Features.F0Max,
		"range_f0":     res.Features.RangeF0,
		"jitter_local": res.Features.JitterLocal,
		"hnr_mean":     res.Features.HNRMean,
		"duration_ms":  elapsed.Milliseconds(),
	})

	return res, nil
}

// stage runs fn under a child span, records its duration and converts
// panics and errors into *AnalysisError.
func (a *Analyzer) stage(ctx context.Context, name string, fallback Kind, fn func(context.Context) error) (err error) {
	ctx, span := a.tracer.Start(ctx, "detector."+name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.logger.WithContext(ctx).Error(fmt.Errorf("panic: %v", r), "stage panicked", logging.Fields{
				"stage": name,
				"stack": string(debug.Stack()),
			})
			err = newError(KindInternal, name, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		a.metrics.RecordStage(ctx, name, time.Since(start))
		span.End()
	}()

	if err := fn(ctx); err != nil {
		return stageError(ctx, fallback, name, err)
	}
	return nil
}

func (a *Analyzer) analyzeSamples(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	if sampleRate <= 0 {
		return nil, newError(KindInputUnusable, StageInput, fmt.Errorf("invalid sample rate %d", sampleRate))
	}
	if len(samples)*2 < transcode.MinPCMBytes {
		return nil, newError(KindInputUnusable, StageInput,
			fmt.Errorf("%w: %d samples, need at least %d", transcode.ErrNoUsableAudio, len(samples), transcode.MinPCMBytes/2))
	}
	for i, s := range samples {
		if !common.IsFinite(s) {
			return nil, newError(KindInputUnusable, StageInput, fmt.Errorf("sample %d is not finite", i))
		}
	}

	if a.params.MaxDuration > 0 {
		limit := int(a.params.MaxDuration.Seconds() * float64(sampleRate))
		if len(samples) > limit {
			a.logger.WithContext(ctx).Warn("input truncated", logging.Fields{
				"samples": len(samples),
				"limit":   limit,
			})
			samples = samples[:limit]
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindTimeout, StageInput, err)
	}

	var normalized []float64
	if err := a.stage(ctx, StageNormalize, KindInternal, func(context.Context) error {
		normalized = temporal.ScaleIntensity(samples, a.params.TargetIntensity)
		return nil
	}); err != nil {
		return nil, err
	}

	var (
		contour              *tonal.PitchContour
		f0Mean, f0Min, f0Max float64
	)
	if err := a.stage(ctx, StagePitch, KindInternal, func(ctx context.Context) error {
		var err error
		contour, err = a.pitch.Track(ctx, normalized, sampleRate)
		if errors.Is(err, tonal.ErrSignalTooShort) {
			return newError(KindPitchExtractionFailed, StagePitch, err)
		}
		if err != nil {
			return err
		}

		f0Mean = contour.Mean()
		if !common.IsFinite(f0Mean) || f0Mean <= 0 {
			return newError(KindPitchExtractionFailed, StagePitch,
				fmt.Errorf("no voiced frames among %d", len(contour.Frames)))
		}
		f0Min, f0Max = contour.Min(), contour.Max()
		return nil
	}); err != nil {
		return nil, err
	}

	var (
		jitter, shimmer, hnr float64
		pulses               int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.stage(gctx, StageJitter, KindInternal, func(ctx context.Context) error {
			pp, err := a.points.Extract(ctx, normalized, sampleRate, contour)
			if err != nil {
				return err
			}
			pulses = pp.Len()
			jitter = speech.JitterLocal(pp, a.params.Jitter)
			if !common.IsFinite(jitter) {
				return newError(KindPitchExtractionFailed, StageJitter,
					fmt.Errorf("local jitter undefined with %d pulses", pp.Len()))
			}
			shimmer = speech.ShimmerLocal(normalized, sampleRate, pp, a.params.Jitter)
			return nil
		})
	})
	g.Go(func() error {
		return a.stage(gctx, StageHarmonicity, KindInternal, func(ctx context.Context) error {
			hc, err := a.harmonicity.Compute(ctx, normalized, sampleRate)
			if err != nil {
				return err
			}
			hnr = hc.Mean()
			if !common.IsFinite(hnr) {
				return newError(KindPitchExtractionFailed, StageHarmonicity,
					fmt.Errorf("no periodic frames among %d", len(hc.Values)))
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var features Features
	if err := a.stage(ctx, StageAggregate, KindInternal, func(context.Context) error {
		var err error
		features, err = NewFeatures(f0Mean, f0Min, f0Max, jitter, hnr, shimmer)
		return err
	}); err != nil {
		return nil, err
	}

	var verdict Verdict
	if err := a.stage(ctx, StageClassify, KindInternal, func(context.Context) error {
		verdict = a.classifier.Classify(features)
		return nil
	}); err != nil {
		return nil, err
	}

	return &Result{
		Features: features,
		Verdict:  verdict,
		Duration: time.Duration(len(samples)) * time.Second / time.Duration(sampleRate),
		Voiced:   contour.VoicedCount(),
		Pulses:   pulses,
	}, nil
}
