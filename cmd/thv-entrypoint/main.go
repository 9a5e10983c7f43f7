// Package main is the entry point for the thv-entrypoint container orchestrator.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-entrypoint/cmd/thv-entrypoint/app"
	"github.com/stacklok/toolhive-entrypoint/internal/logging"
)

// traceHandler wraps an slog.Handler to inject the OpenTelemetry trace_id
// and span_id into every record logged with a span in its context.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func newLogger() *slog.Logger {
	v := viper.New()
	v.AutomaticEnv()

	levelStr := v.GetString("LOG_LEVEL")
	level, ok := logging.ParseLevel(levelStr)

	handler := logging.NewHandler(os.Stdout,
		logging.WithLevel(level),
		logging.WithFormat(logging.ParseFormat(v.GetString("LOG_FORMAT"))),
	)
	logger := slog.New(&traceHandler{Handler: handler})
	if !ok {
		logger.Warn("Invalid LOG_LEVEL, using INFO", "value", levelStr)
	}
	return logger
}

func main() {
	slog.SetDefault(newLogger())

	err := app.NewRootCmd().Execute()
	if err == nil {
		return
	}

	var exitErr *app.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err != nil {
		slog.Error("thv-entrypoint failed", "error", err)
	}
	os.Exit(app.ExitCode(err))
}
