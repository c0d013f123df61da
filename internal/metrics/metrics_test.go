package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAppend(t *testing.T) {
	m := New()

	m.ObserveAppend(time.Millisecond, false, false, true)
	m.ObserveAppend(time.Millisecond, true, false, false)
	m.ObserveAppend(time.Millisecond, true, true, false)

	if got := testutil.ToFloat64(m.Appends); got != 3 {
		t.Fatalf("expected 3 appends, got %f", got)
	}
	if got := testutil.ToFloat64(m.Evictions); got != 2 {
		t.Fatalf("expected 2 evictions, got %f", got)
	}
	if got := testutil.ToFloat64(m.AppendFailures); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.AggregateWrites); got != 1 {
		t.Fatalf("expected 1 aggregate update, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.AppendLatency); samples != 1 {
		t.Fatalf("expected latency histogram to collect 1 metric, got %d", samples)
	}
}

func TestObserveClear(t *testing.T) {
	m := New()

	m.ObserveClear(true)
	m.ObserveClear(false)
	m.ObserveClear(true)

	if got := testutil.ToFloat64(m.Clears.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok clears, got %f", got)
	}
	if got := testutil.ToFloat64(m.Clears.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed clear, got %f", got)
	}
}

func TestSetLog(t *testing.T) {
	m := New()
	m.SetLog(3, 1440)

	if got := testutil.ToFloat64(m.LogLength); got != 3 {
		t.Fatalf("expected length 3, got %f", got)
	}
	if got := testutil.ToFloat64(m.LogCapacity); got != 1440 {
		t.Fatalf("expected capacity 1440, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/v1/readings", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`atmolog_http_requests_total{code="200",route="/api/v1/readings"} 1`,
		"atmolog_appends_total 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

// Each instance has its own registry.
func TestNewIsIndependent(t *testing.T) {
	a, b := New(), New()
	a.Appends.Inc()

	if got := testutil.ToFloat64(b.Appends); got != 0 {
		t.Fatalf("expected independent registries, got %f", got)
	}
}
