package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type key string

const (
	// KeyForLogger is used to store Logger in a context.Context
	KeyForLogger key = "logger"
	// KeyForRequestID is used to store a request ID in a context.Context
	KeyForRequestID key = "request_id"
)

// Logger wraps a zap.Logger and is supposed to travel in a context.Context
type Logger struct {
	l *zap.Logger
}

// NewLogger builds a production logger at the given level
func NewLogger(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{l: l}, nil
}

// NewNop returns a logger that discards everything, handy in tests
func NewNop() *Logger {
	return &Logger{l: zap.NewNop()}
}

// WithLogger places l in ctx
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, KeyForLogger, l)
}

// WithRequestID tags every line logged through ctx with id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, KeyForRequestID, id)
}

// RequestID returns the request id stored in ctx, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(KeyForRequestID).(string)
	return id
}

// GetLoggerFromCtx returns the Logger stored in ctx, or a no-op logger
func GetLoggerFromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(KeyForLogger).(*Logger); ok && l != nil {
		return l
	}
	return nop
}

var nop = NewNop()

func appendRequestID(ctx context.Context, fields []zap.Field) []zap.Field {
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String(string(KeyForRequestID), id))
	}
	return fields
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Debug(msg, appendRequestID(ctx, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Info(msg, appendRequestID(ctx, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Warn(msg, appendRequestID(ctx, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Error(msg, appendRequestID(ctx, fields)...)
}

func (l *Logger) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	l.l.Fatal(msg, appendRequestID(ctx, fields)...)
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.l.Sync()
}
