// Business-level span helpers used by the application services. Spans follow
// the {service}.{method} naming convention ("transaction.checkout",
// "transfer.receive") so the orchestrator operations show up as one span each
// under the incoming HTTP span.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for business spans.
const TracerName = "retailcore-backend"

// StartServiceSpan starts an internal span named {service}.{method} and
// returns the derived context. The caller owns span.End().
func StartServiceSpan(ctx context.Context, service, method string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, service+"."+method, trace.WithSpanKind(trace.SpanKindInternal))
}

// SetAttributes adds alternating key/value pairs to a span. Non-string keys
// are skipped; a trailing unpaired key is ignored.
func SetAttributes(span trace.Span, keyValues ...interface{}) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	span.SetAttributes(attrs...)
}

// RecordError records err on the span and marks the span status as error.
// A nil error is a no-op so callers can record unconditionally.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// Attribute keys shared by the orchestrator spans. Metric attribute keys live
// in metrics.go as attribute.Key values; these are plain strings for spans.
const (
	SpanAttrTransactionID       = "transaction_id"
	SpanAttrSourceTransactionID = "source_transaction_id"
	SpanAttrSerialUnitID        = "serial_unit_id"
)
