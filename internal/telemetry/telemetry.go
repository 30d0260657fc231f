package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/congo-pay/cardledger/internal/metrics"
)

// StartCall opens a span named method under the repository's tracer and
// returns a finisher that records the outcome on both the span and the
// repository metrics. Typical use:
//
//	ctx, end := telemetry.StartCall(ctx, "card-repository", "LockForUpdate")
//	defer func() { end(err) }()
func StartCall(ctx context.Context, repository, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(repository).Start(ctx, method, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveRepository(repository, method, start, err)
		span.End()
	}
}
