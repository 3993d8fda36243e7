package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "aasprobe"

type Logger struct {
	*zap.SugaredLogger
	tracer     trace.Tracer
	baseLogger *zap.Logger
}

func New(cfg config.LoggerConfig) (*Logger, error) {
	var zapConfig zap.Config

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if len(cfg.OutputPaths) > 0 {
		zapConfig.OutputPaths = cfg.OutputPaths
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	baseLogger, err := zapConfig.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	// Tee into the OpenTelemetry log bridge so records carry trace correlation
	otelCore := otelzap.NewCore(serviceName,
		otelzap.WithAttributes(attribute.String("service", serviceName)),
	)
	core := zapcore.NewTee(baseLogger.Core(), otelCore)
	enhanced := zap.New(core, zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{
		SugaredLogger: enhanced.Sugar(),
		tracer:        otel.Tracer(serviceName + "/logger"),
		baseLogger:    enhanced,
	}, nil
}

// NewNop returns a logger that discards everything. Useful in tests.
func NewNop() *Logger {
	base := zap.NewNop()
	return &Logger{
		SugaredLogger: base.Sugar(),
		tracer:        otel.Tracer(serviceName + "/nop"),
		baseLogger:    base,
	}
}

// FromZap wraps an existing zap logger, e.g. one backed by zaptest/observer.
func FromZap(base *zap.Logger) *Logger {
	return &Logger{
		SugaredLogger: base.Sugar(),
		tracer:        otel.Tracer(serviceName),
		baseLogger:    base,
	}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		spanCtx := span.SpanContext()
		return &Logger{
			SugaredLogger: l.With(
				"trace_id", spanCtx.TraceID().String(),
				"span_id", spanCtx.SpanID().String(),
			),
			tracer:     l.tracer,
			baseLogger: l.baseLogger,
		}
	}
	return l
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.With(fields...),
		tracer:        l.tracer,
		baseLogger:    l.baseLogger,
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithFields("run_id", runID)
}

func (l *Logger) WithWorker(id int) *Logger {
	return l.WithFields("worker", id)
}

func (l *Logger) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if l.tracer == nil {
		l.tracer = otel.Tracer(serviceName + "/default")
	}
	return l.tracer.Start(ctx, name, opts...)
}

func (l *Logger) LogError(ctx context.Context, err error, operation string, fields ...interface{}) {
	if err == nil {
		return
	}

	allFields := []interface{}{
		"error", err.Error(),
		"operation", operation,
		"error_type", fmt.Sprintf("%T", err),
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Errorw("Operation failed", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LogPanic records a recovered panic. It never re-panics, so workers can
// keep draining the queue after a fault.
func (l *Logger) LogPanic(ctx context.Context, recovered interface{}, operation string, fields ...interface{}) {
	allFields := []interface{}{
		"panic", recovered,
		"operation", operation,
		"panic_type", fmt.Sprintf("%T", recovered),
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Errorw("Panic recovered", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("panic_recovered", trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("panic", fmt.Sprintf("%v", recovered)),
		))
		span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", recovered))
	}
}

func (l *Logger) LogHTTPRequest(ctx context.Context, method, url string, statusCode int, duration time.Duration, fields ...interface{}) {
	allFields := []interface{}{
		"http_method", method,
		"http_url", url,
		"http_status", statusCode,
		"duration_ms", duration.Milliseconds(),
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Debugw("HTTP request completed", allFields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("http_request", trace.WithAttributes(
			attribute.String("method", method),
			attribute.Int("status_code", statusCode),
			attribute.Int64("duration_ms", duration.Milliseconds()),
		))
	}
}

func (l *Logger) StartOperation(ctx context.Context, operation string, fields ...interface{}) (context.Context, trace.Span) {
	ctx, span := l.StartSpan(ctx, operation)

	allFields := []interface{}{
		"operation", operation,
	}
	allFields = append(allFields, fields...)

	l.WithContext(ctx).Debugw("Operation started", allFields...)

	return ctx, span
}

func (l *Logger) FinishOperation(ctx context.Context, span trace.Span, operation string, start time.Time, err error, fields ...interface{}) {
	defer span.End()

	duration := time.Since(start)

	allFields := []interface{}{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	}
	allFields = append(allFields, fields...)

	if err != nil {
		l.LogError(ctx, err, operation, allFields...)
	} else {
		l.WithContext(ctx).Debugw("Operation completed successfully", allFields...)
		span.SetStatus(codes.Ok, "completed")
	}
}
