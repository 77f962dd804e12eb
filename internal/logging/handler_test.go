// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "failed to parse JSON: %s", buf.String())
	return entry
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "visitor", Version: "1.0.0", Writer: &buf})
	require.NoError(t, err)

	logger.Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "visitor", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
	assert.NotContains(t, entry, "trace_id")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "visitor", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "service=visitor")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Service: "visitor", Writer: &buf})
	require.NoError(t, err)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.With("component", "gate").InfoContext(ctx, "traced message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "gate", entry["component"])
}

func TestHandler_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Writer: &buf})
	require.NoError(t, err)

	logger.WithGroup("form").Info("submitted",
		"password", "hunter22",
		"Token", "abc-123",
		"email", "a@example.com",
	)

	entry := decode(t, &buf)
	form, ok := entry["form"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Redacted, form["password"])
	assert.Equal(t, Redacted, form["Token"])
	assert.Equal(t, "a@example.com", form["email"])
	assert.NotContains(t, buf.String(), "hunter22")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	logger, err := SetDefault(Options{Service: "test-service", Version: "2.0.0"})
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}
