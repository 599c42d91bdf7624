package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Logger wraps zap with service-scoped fields.
type Logger struct {
	*zap.Logger
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Format      string // json, console
	ServiceName string
	Version     string
}

// InitLogger initializes the global logger and routes slog.Default()
// through it, so every slog call site honors the configured level and
// format.
func InitLogger(config LogConfig) *Logger {
	once.Do(func() {
		globalLogger = NewLogger(config)
		slog.SetDefault(slog.New(newSlogHandler(globalLogger.Core())))
	})
	return globalLogger
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LogConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "gridd",
			Version:     "unknown",
		})
	}
	return globalLogger
}

// NewLogger creates a new logger instance
func NewLogger(config LogConfig) *Logger {
	level := zapcore.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(config.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)

	logger := zap.New(core, zap.AddCaller()).With(
		zap.String("service", config.ServiceName),
		zap.String("version", config.Version),
	)

	return &Logger{Logger: logger}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// slogHandler adapts slog records onto a zap core. The rest of the
// codebase logs through slog; this keeps a single sink with one level
// and encoding.
type slogHandler struct {
	core   zapcore.Core
	attrs  []zapcore.Field
	prefix string
}

func newSlogHandler(core zapcore.Core) *slogHandler {
	return &slogHandler{core: core}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(zapLevel(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	entry := zapcore.Entry{
		Level:   zapLevel(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}

	checked := h.core.Check(entry, nil)
	if checked == nil {
		return nil
	}

	fields := make([]zapcore.Field, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, h.field(a))
		return true
	})
	checked.Write(fields...)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &slogHandler{core: h.core, prefix: h.prefix}
	next.attrs = make([]zapcore.Field, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.field(a))
	}
	return next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	prefix := name
	if h.prefix != "" {
		prefix = h.prefix + "." + name
	}
	return &slogHandler{core: h.core, attrs: h.attrs, prefix: prefix}
}

func (h *slogHandler) field(a slog.Attr) zapcore.Field {
	key := a.Key
	if h.prefix != "" {
		key = h.prefix + "." + key
	}
	return zap.Any(key, a.Value.Resolve().Any())
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
