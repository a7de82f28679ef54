package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dermesser/brokerpc"
)

// TracingMiddleware wraps process_job in a span per incoming job,
// tagging the correlation id and action count. Opt-in via
// Config.JobMiddleware.
func TracingMiddleware(tracerName string) JobMiddleware {
	tracer := otel.Tracer(tracerName)
	return func(next func(brokerpc.JobRequest) (brokerpc.JobResponse, error)) func(brokerpc.JobRequest) (brokerpc.JobResponse, error) {
		return func(jr brokerpc.JobRequest) (brokerpc.JobResponse, error) {
			_, span := tracer.Start(context.Background(), "brokerpc.server.process_job",
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
			for _, a := range resp.Actions {
				if len(a.Errors) > 0 {
					span.SetStatus(codes.Error, "action returned errors")
					break
				}
			}
			return resp, err
		}
	}
}
