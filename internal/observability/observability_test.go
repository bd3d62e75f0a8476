package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyHandler(t *testing.T) {
	t.Parallel()

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()

		handler := ReadyHandler(
			PingCheck("warehouse", func(_ context.Context) error { return nil }),
			PingCheck("redis", func(_ context.Context) error { return nil }),
		)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check reports unavailable", func(t *testing.T) {
		t.Parallel()

		handler := ReadyHandler(
			PingCheck("qdrant", func(_ context.Context) error { return errors.New("connection refused") }),
		)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
	})
}

func TestNewMeterProvider_ServesRecordedMetrics(t *testing.T) {
	t.Parallel()

	provider, handler, err := NewMeterProvider(context.Background(), TelemetryConfig{})
	require.NoError(t, err)

	red, err := NewREDMetrics(provider.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "pipeline.run", StatusOK, 120*time.Millisecond)
	red.RecordRequest(context.Background(), "pipeline.run", StatusError, 80*time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "logfang_requests_total")
	assert.Contains(t, body, "logfang_errors_total")
}

func TestThroughputMetrics(t *testing.T) {
	t.Parallel()

	provider, handler, err := NewMeterProvider(context.Background(), TelemetryConfig{})
	require.NoError(t, err)

	tm, err := NewThroughputMetrics(provider.Meter("test"))
	require.NoError(t, err)

	tm.RecordPage(context.Background(), "prod_logs.run_stdout", 100, 98)
	tm.RecordJob(context.Background(), "prod_logs.run_stdout", 98, StatusOK)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()

	assert.Contains(t, body, "logfang_rows_extracted_total")
	assert.Contains(t, body, "logfang_points_embedded_total")
}

func TestServer_StartAndShutdown(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:0", nil, nil)

	done := make(chan error, 1)

	go func() {
		done <- server.Start()
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, server.Shutdown(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestInitTelemetry_NoEndpointStaysNoop(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), TelemetryConfig{ServiceName: "logfang"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTelemetry_InstallsTracerProvider(t *testing.T) {
	// Mutates the global tracer provider, so no t.Parallel. The gRPC
	// exporter dials lazily; no collector is needed to create it.
	ctx := context.Background()

	shutdown, err := InitTelemetry(ctx, TelemetryConfig{
		ServiceName:  "logfang",
		OTLPEndpoint: "127.0.0.1:4317",
		OTLPInsecure: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		// The flush fails without a collector listening; only the
		// provider installation is under test.
		_ = shutdown(flushCtx)
	})

	_, span := otel.Tracer("test").Start(ctx, "op")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
}
