package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vibek01/ECOM-D1/internal/platform/config"
	"github.com/vibek01/ECOM-D1/internal/platform/requestctx"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	logger, logs := newObservedLogger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(TraceMiddleware("demo-project"))
	router.Use(InjectLoggerMiddleware(logger))
	router.Use(RequestLoggerMiddleware("demo-project"))
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		requestctx.Logger(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	entries := logs.All()
	require.Len(t, entries, 2)

	handlerEntry := entries[0].ContextMap()
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", handlerEntry["trace_id"])
	assert.Equal(t, "projects/demo-project/traces/105445aa7843bc8bf206b12000100000", handlerEntry["logging.googleapis.com/trace"])
	assert.NotEmpty(t, handlerEntry["request_id"])

	completion := entries[1]
	assert.Equal(t, "request completed", completion.Message)
	assert.Equal(t, zapcore.WarnLevel, completion.Level)
	fields := completion.ContextMap()
	assert.Equal(t, "/orders/{orderID}", fields["route"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, 5, fields["bytes"])
}

func TestRecoveryMiddlewareWritesInternalError(t *testing.T) {
	logger, logs := newObservedLogger()
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["error"])
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestTraceMiddlewareEchoesCloudTraceHeader(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("proj")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "105445aa7843bc8bf206b12000100000", captured.TraceID)
	assert.Equal(t, "proj", captured.ProjectID)
	assert.True(t, strings.HasPrefix(rr.Header().Get(cloudTraceHeader), "105445aa7843bc8bf206b12000100000/"))
}

func TestParseCloudTraceContext(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		ok      bool
		sampled bool
	}{
		{name: "hex span", header: "105445aa7843bc8bf206b12000100000/000000000000000a;o=1", ok: true, sampled: true},
		{name: "decimal span", header: "105445aa7843bc8bf206b12000100000/123456789012345678901;o=0", ok: false},
		{name: "short hex span", header: "105445aa7843bc8bf206b12000100000/1", ok: true},
		{name: "missing span", header: "105445aa7843bc8bf206b12000100000", ok: false},
		{name: "bad trace", header: "xyz/1;o=1", ok: false},
		{name: "empty", header: "", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, spanCtx, ok := parseCloudTraceContext(tc.header)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tc.sampled, info.Sampled)
			assert.True(t, spanCtx.IsRemote())
		})
	}
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallback, fallbackLogs := newObservedLogger()
	scoped, scopedLogs := newObservedLogger()
	logFn := ServiceLogger(fallback)

	logFn(context.Background(), "order.placed", map[string]any{"orderId": "ord_1"})
	logFn(requestctx.WithLogger(context.Background(), scoped), "order.placement_failed", map[string]any{"error": "boom"})

	require.Equal(t, 1, fallbackLogs.Len())
	assert.Equal(t, zapcore.InfoLevel, fallbackLogs.All()[0].Level)
	assert.Equal(t, "ord_1", fallbackLogs.All()[0].ContextMap()["orderId"])

	require.Equal(t, 1, scopedLogs.Len())
	assert.Equal(t, zapcore.WarnLevel, scopedLogs.All()[0].Level)
	assert.Equal(t, "order.placement_failed", scopedLogs.All()[0].ContextMap()["event"])
}

func TestPrintfAdapterLevels(t *testing.T) {
	logger, logs := newObservedLogger()
	NewPrintfAdapter(logger, zapcore.InfoLevel).Printf("wrote %d messages", 3)
	NewPrintfAdapter(logger, zapcore.ErrorLevel).Printf("failed: %s", "broker down")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "wrote 3 messages", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestSetupTelemetryServesPrometheusMetrics(t *testing.T) {
	previous := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{ServiceName: "ecom-api-test", MetricsEnabled: true}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	counter, err := otel.Meter("observability-test").Int64Counter("orders_placed_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 2, metric.WithAttributes())

	srv := httptest.NewServer(tel.MetricsHandler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "orders_placed_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTelemetryDisabledMetricsReturnsNotFound(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{ServiceName: "ecom-api-test"}, "test")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
