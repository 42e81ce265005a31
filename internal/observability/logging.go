package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/trialscope/internal/config"
	"github.com/pitabwire/trialscope/model"
)

// Context key for the logger.
type loggerKey struct{}

// NewLogger creates a zap.Logger configured for JSON output to stderr, so
// stdout stays free for command output.
//
// Log level usage conventions:
//   - error: Data-integrity violations, failed metric or trace export
//   - warn:  Rejected transitions (count violations, blocking concerns, disabled steps)
//   - info:  Accepted state changes, scenario switches, session start/end
//   - debug: Gate evaluation, idempotent replays, capability cache details
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in the context, or the provided
// fallback if none is found.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns a logger enriched with RequestContext fields.
// If no logger is in the context, the fallback is used.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{
		zap.String("subject_id", rctx.SubjectID),
		zap.String("actor", rctx.Actor()),
		zap.String("surface", rctx.Surface),
	}
	if rctx.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", rctx.CorrelationID))
	}

	// Include trace_id if present, falling back to the active span.
	traceID := rctx.TraceID
	if traceID == "" {
		traceID = TraceIDFromContext(ctx)
	}
	if traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	return logger.With(fields...)
}

// ScenarioLogger returns a request logger that also carries the scenario ID.
func ScenarioLogger(ctx context.Context, fallback *zap.Logger, scenarioID string) *zap.Logger {
	return RequestLogger(ctx, fallback).With(zap.String("scenario_id", scenarioID))
}

// LevelFor maps an error to the level it should be logged at. Client-side
// rejections are warnings; data-integrity and unknown failures are errors.
func LevelFor(err error) zapcore.Level {
	if err == nil {
		return zapcore.InfoLevel
	}
	switch model.CodeOf(err) {
	case model.ErrDataIntegrity, model.ErrInternalError:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}
