package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)

	ctx = With(ctx, "account_id", "abc")
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), `"account_id":"abc"`)
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestNew_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "valorpoint-test", "info", "production")

	logger.Info("login attempt", "email", "ada@example.com", "password", "hunter22", "Token", "eyJ...")

	out := buf.String()
	assert.Contains(t, out, `"service":"valorpoint-test"`)
	assert.Contains(t, out, `"email":"ada@example.com"`)
	assert.NotContains(t, out, "hunter22")
	assert.NotContains(t, out, "eyJ")
	assert.Contains(t, out, `"password":"[REDACTED]"`)
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "svc", "warn", "development")

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}
