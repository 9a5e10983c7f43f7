package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the entrypoint spans
const (
	AttrRunID           = attribute.Key("run_id")
	AttrDBTarget        = attribute.Key("db.target")
	AttrServicePID      = attribute.Key("service.pid")
	AttrServiceExitCode = attribute.Key("service.exit_code")
	AttrOutcome         = attribute.Key("outcome")
	AttrAttempt         = attribute.Key("attempt")
)

// RecordError records err on span and marks the span as failed.
// The status description stays generic: errors may carry connection details,
// which remain visible only in the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
