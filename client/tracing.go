package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dermesser/brokerpc"
)

// TracingMiddleware wraps every job round trip in a span, tagging the
// correlation id and any job-level errors. It is opt-in via
// Options.Middleware; the client never starts tracing on its own.
func TracingMiddleware(tracerName string) RequestMiddleware {
	tracer := otel.Tracer(tracerName)
	return func(next func(brokerpc.JobRequest) (brokerpc.JobResponse, error)) func(brokerpc.JobRequest) (brokerpc.JobResponse, error) {
		return func(jr brokerpc.JobRequest) (brokerpc.JobResponse, error) {
			_, span := tracer.Start(context.Background(), "brokerpc.client.call_actions",
				trace.WithAttributes(
					attribute.String("brokerpc.correlation_id", jr.Context.CorrelationID),
					attribute.Int("brokerpc.action_count", len(jr.Actions)),
				))
			defer span.End()

			resp, err := next(jr)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return resp, err
			}
			if resp.HasErrors() {
				span.SetStatus(codes.Error, "job returned errors")
			}
			return resp, err
		}
	}
}
