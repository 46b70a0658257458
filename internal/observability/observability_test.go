package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInitMetrics(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	counter, err := otel.Meter("test-meter").Int64Counter("cu_test_counter")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "cu_test_counter") {
		t.Errorf("custom counter missing from output")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("runtime collector missing from output")
	}
}

func TestInitTracing_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), "cu-test", "stdout", &buf)
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "cu.submit")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"Name":"cu.submit"`) {
		t.Errorf("span not exported: %s", buf.String())
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), "cu-test", "zipkin", nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
