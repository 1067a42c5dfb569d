package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	assert.Equal(t, EnvDev, DetectEnv())

	t.Setenv("APP_ENV", "staging")
	assert.Equal(t, EnvStage, DetectEnv())

	t.Setenv("APP_ENV", "Production")
	assert.Equal(t, EnvProd, DetectEnv())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestInit_DevStdWritesTextToStdout(t *testing.T) {
	out := captureStdout(t, func() {
		Init(Config{Service: "demo", Version: "v0.0.1", Env: EnvDev, Backend: BackendStd, Level: slog.LevelDebug})
		slog.Info("Hello world")
	})

	assert.NotContains(t, out, "{")
	assert.Contains(t, out, "Hello world")
	assert.Contains(t, out, "service=demo")
	assert.Contains(t, out, "env=dev")
}

func TestInit_ProdZapWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              EnvProd,
		Backend:          BackendZap,
		SampleInitial:    100000,
		SampleThereafter: 100000,
		Output:           &buf,
	})
	slog.Info("booted", slog.String("k", "v"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, "booted", m["msg"])
	assert.Equal(t, "demo", m["service"])
	assert.Equal(t, "prod", m["env"])
	assert.Equal(t, "1.2.3", m["version"])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "v", m["k"])
}

func TestInit_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvDev, Backend: BackendStd, Level: slog.LevelInfo, Output: &buf})
	slog.Debug("hidden")
	slog.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_ContextCarriesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Service: "demo", Env: EnvProd, Backend: BackendZap, Output: &buf})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	slog.InfoContext(ctx, "with trace")
	span.End()

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	assert.Equal(t, span.SpanContext().TraceID().String(), m["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), m["span_id"])
	assert.Equal(t, "with trace", m["msg"])
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	assert.Nil(t, AttrsFromCtx(context.Background()))
}

func TestInstanceID(t *testing.T) {
	assert.Equal(t, "fixed", instanceID("fixed"))
	hn, _ := os.Hostname()
	assert.True(t, strings.HasPrefix(instanceID(""), hn+"-"))
}
