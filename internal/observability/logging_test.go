package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlogHandlerWritesToZapCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := slog.New(newSlogHandler(core))

	logger.With("component", "ticker").Info("tick published", "series", 6)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tick published", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "ticker", fields["component"])
	assert.EqualValues(t, 6, fields["series"])
}

func TestSlogHandlerHonorsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := slog.New(newSlogHandler(core))

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept too")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestSlogHandlerLevelMapping(t *testing.T) {
	tests := []struct {
		slogLevel slog.Level
		want      zapcore.Level
	}{
		{slog.LevelDebug, zapcore.DebugLevel},
		{slog.LevelInfo, zapcore.InfoLevel},
		{slog.LevelWarn, zapcore.WarnLevel},
		{slog.LevelError, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, zapLevel(tt.slogLevel))
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := slog.New(newSlogHandler(core)).WithGroup("http")

	logger.Info("request handled", "status", 200)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 200, fields["http.status"])
}
