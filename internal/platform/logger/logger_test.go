package logger

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/docuvec/embedq/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupReturnsLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug level", logLevel: "debug"},
		{name: "info level", logLevel: "info"},
		{name: "warn level", logLevel: "warn"},
		{name: "error level", logLevel: "error"},
		{name: "invalid level falls back to info", logLevel: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := Setup(config.ServerConfig{Port: 8080, LogLevel: tt.logLevel})
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestFromContext(t *testing.T) {
	scoped := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "test")

	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx), "should return the logger stored in the context")

	// Without a stored logger the default is returned.
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	def := slog.New(slog.NewTextHandler(os.Stderr, nil))

	assert.Same(t, def, FromContextOrDefault(context.Background(), def))

	scoped := def.With("component", "scoped")
	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContextOrDefault(ctx, def))
}
