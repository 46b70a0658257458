package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the HTTP instruments. Built from the global MeterProvider, so call
// NewMetrics after observability.InitMetrics.
type Metrics struct {
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/bryanwahyu/cu-orchestrator/http")

	requests, err := meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests served by the gateway"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("http_requests_in_flight")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_request_duration_seconds",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 30, 120, 600, 1200))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, inFlight: inFlight, duration: duration}, nil
}

// Middleware tracks request metrics labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		m.inFlight.Add(ctx, 1)
		defer m.inFlight.Add(ctx, -1)

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		// raw paths would make the label unbounded
		route := "unmatched"
		if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(wrapped.statusCode)),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	})
}
