package keymanager

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/keymanager"

// Operation names used for spans and the "op" metric attribute.
const (
	opResolve           = "ResolveFileKey"
	opFileKey           = "FileKey"
	opSetFileKey        = "SetFileKey"
	opPrivateKey        = "PrivateKey"
	opSetPrivateKey     = "SetPrivateKey"
	opPublicKey         = "PublicKey"
	opSetPublicKey      = "SetPublicKey"
	opFileRecipients    = "FileRecipients"
	opPublicKeysForFile = "PublicKeysForFile"
)

type telemetry struct {
	tracer      trace.Tracer
	operations  metric.Int64Counter
	resolutions metric.Int64Counter
}

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)

	operations, err := meter.Int64Counter("keymanager.operations",
		metric.WithDescription("Key manager operations by outcome."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter("keymanager.share.resolutions",
		metric.WithDescription("File key resolutions, split by whether a share record redirected them."),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:      tp.Tracer(instrumentationName),
		operations:  operations,
		resolutions: resolutions,
	}, nil
}

// start opens a span for op. The returned func ends it and counts the outcome.
func (t *telemetry) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, "keymanager."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := "ok"
		switch {
		case err == nil:
		case IsKeyNotFound(err):
			result = "not_found"
			span.SetAttributes(attribute.Bool("keymanager.key_found", false))
		default:
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		t.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("result", result),
		))
		span.End()
	}
}

func (t *telemetry) resolved(ctx context.Context, shared bool) {
	t.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("shared", strconv.FormatBool(shared))))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("keymanager.shared", shared))
}
