package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's tracer in the global provider.
const tracerName = "github.com/labsim/collab/pkg/server"

// commandContext returns the root context for a command span. Commands are
// fire-and-forget with no inbound trace propagation, so each one starts a
// fresh trace.
func commandContext() context.Context {
	return context.Background()
}

// commandAttributes returns the span attributes for one command. Session
// and user may be empty for create/join, which bind after the fact.
func commandAttributes(command, sessionID, userID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("collab.command", command),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String("collab.session_id", sessionID))
	}
	if userID != "" {
		attrs = append(attrs, attribute.String("collab.user_id", userID))
	}
	return attrs
}

// recordSpanError marks a command span failed.
func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
