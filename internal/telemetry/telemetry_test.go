package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/congo-pay/cardledger/internal/metrics"
)

func TestStartCallRecordsSpanAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	failures := metrics.RepositoryCalls.WithLabelValues("card-repository", "LockForUpdate", "error")
	before := testutil.ToFloat64(failures)

	_, end := StartCall(context.Background(), "card-repository", "LockForUpdate", attribute.String("card_id", "c1"))
	end(errors.New("lock timeout"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "LockForUpdate", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("card_id", "c1"))
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}
