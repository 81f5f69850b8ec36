package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_SameKeyShared(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("tasks_total", `type="CREATE"`, "tasks")
	b := r.Counter("tasks_total", `type="CREATE"`, "tasks")
	a.Inc()
	b.Inc()
	if a.Value() != 2 {
		t.Errorf("same key should share a counter, got %d", a.Value())
	}

	other := r.Counter("tasks_total", `type="TRADE"`, "tasks")
	if other.Value() != 0 {
		t.Errorf("different labels must not share state, got %d", other.Value())
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.Gauge("inflight", "", "in-flight requests")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Errorf("expected 1, got %d", g.Value())
	}
}

func TestHandler_Exposition(t *testing.T) {
	r := NewRegistry()
	r.Counter("webhook_requests_total", `status="CHAT"`, "").Inc()
	r.Gauge("inflight", "", "").Set(3)

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `webhook_requests_total{status="CHAT"} 1`) {
		t.Errorf("counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "inflight 3") {
		t.Errorf("unlabeled gauge should render without braces:\n%s", body)
	}
	if !strings.Contains(body, "process_uptime_seconds") {
		t.Errorf("uptime missing:\n%s", body)
	}
}
