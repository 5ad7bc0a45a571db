package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eventcast"

// StartConnectSpan starts a span covering a stream connect handshake.
func StartConnectSpan(ctx context.Context, transport, identity string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stream.connect",
		trace.WithAttributes(
			attribute.String("stream.transport", transport),
			attribute.String("enduser.id", identity),
		),
	)
}
