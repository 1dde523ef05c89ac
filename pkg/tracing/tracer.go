// Package tracing is the single entry point domain packages use to open spans.
// Without a registered TracerProvider the global no-op provider makes every
// call inert.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bizsuite"

// Start opens a span as a child of the span in ctx. Callers must End it.
//
//	ctx, span := tracing.Start(ctx, "relationships.create",
//	    attribute.String("biz.relationship.type", draft.RelationshipType),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Tenant is the span attribute for the tenant an operation is scoped to.
func Tenant(id string) attribute.KeyValue {
	return attribute.String("biz.tenant.id", id)
}

// Fail records err on span and marks it errored. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
