package cu

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

const instrumentationName = "github.com/bryanwahyu/cu-orchestrator/internal/infra/cu"

type telemetry struct {
	tracer      trace.Tracer
	submissions metric.Int64Counter
	polls       metric.Int64Counter
	outcomes    metric.Int64Counter
}

// newTelemetry binds to the global providers; they are no-ops until
// observability.InitMetrics / InitTracing install real ones.
func newTelemetry() *telemetry {
	meter := otel.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}
	t.submissions, _ = meter.Int64Counter("cu_submissions_total",
		metric.WithDescription("Operations submitted to the content understanding service"))
	t.polls, _ = meter.Int64Counter("cu_polls_total",
		metric.WithDescription("Operation status polls"))
	t.outcomes, _ = meter.Int64Counter("cu_operations_total",
		metric.WithDescription("Finished operations by outcome"))
	return t
}

func (t *telemetry) submission(ctx context.Context, kind operation.Kind, result string) {
	if t.submissions == nil {
		return
	}
	t.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("result", result),
	))
}

func (t *telemetry) poll(ctx context.Context, status operation.Status) {
	if t.polls == nil {
		return
	}
	t.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (t *telemetry) outcome(ctx context.Context, kind operation.Kind, err error) {
	if t.outcomes == nil {
		return
	}
	t.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", Outcome(err)),
	))
}

// Outcome labels an operation result for metrics and the journal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "succeeded"
	case errors.Is(err, operation.ErrOperationFailed):
		return "failed"
	case errors.Is(err, operation.ErrTimeout):
		return "timed_out"
	case errors.Is(err, operation.ErrAuth):
		return "auth_error"
	case errors.Is(err, operation.ErrSubmission):
		return "rejected"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
