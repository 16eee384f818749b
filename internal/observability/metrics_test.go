package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	return rr.Body.String()
}

func TestInitMetrics_CustomMetricAppearsInOutput(t *testing.T) {
	handler, shutdown, err := InitMetrics("hpc-gateway")
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	counter, err := otel.Meter("test-meter").Int64Counter("hpcgateway.test.transitions")
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}
	counter.Add(t.Context(), 42)

	body := scrape(t, handler)
	if !strings.Contains(body, "hpcgateway_test_transitions") {
		t.Errorf("expected custom metric in output, got:\n%s", body)
	}
	if !strings.Contains(body, "42") {
		t.Errorf("expected value '42' in output, got:\n%s", body)
	}
	if !strings.Contains(body, `service_name="hpc-gateway"`) {
		t.Errorf("expected service name in target_info, got:\n%s", body)
	}
}
