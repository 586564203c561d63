package observe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/RyanBlaney/sonido-voz/logging"
)

// useTestTracer installs an in-memory tracer provider for the test
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestMiddlewareRequestID(t *testing.T) {
	useTestTracer(t)
	m, _ := newTestMetrics(t)

	var fields logging.Fields
	handler := Middleware(m, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields, _ = logging.FieldsFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, fields["request_id"])
	assert.Len(t, fields["trace_id"], 32)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	// A valid incoming id is kept
	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, given)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, given, rec.Header().Get(RequestIDHeader))
}

func TestMiddlewareSpanAndDuration(t *testing.T) {
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)

	handler := Middleware(m, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/detect_voice", nil))

	spans := exp.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "HTTP POST /api/detect_voice", spans[0].Name)

	met := findMetric(collect(t, reader), "sonido.http.request.duration")
	require.NotNil(t, met)
	hist := met.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(1), dp.Count)
	assert.True(t, hasAttr(dp.Attributes, "method", "POST"))
	assert.True(t, hasAttr(dp.Attributes, "path", "/api/detect_voice"))
}

func TestMiddlewareLogsCompletion(t *testing.T) {
	useTestTracer(t)
	var out bytes.Buffer
	logger := logging.NewDefaultLoggerWithWriters(&out, &out)

	handler := Middleware(nil, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, out.String(), "request completed")
	assert.Contains(t, out.String(), "status=200")
	assert.Contains(t, out.String(), "request_id=")
}
