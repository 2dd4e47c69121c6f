package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gridclear/settlement-engine/internal/metrics"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/widgets/{widgetID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		resp, err := http.Get(ts.URL + "/widgets/" + id)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	}

	// All three requests land under one route-pattern label.
	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/widgets/{widgetID}", "200"))
	if got != float64(len(ids)) {
		t.Errorf("expected %d requests under the route pattern, got %v", len(ids), got)
	}

	// Raw entity paths must not leak into the label set.
	for _, id := range ids {
		if v := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/widgets/"+id, "200")); v != 0 {
			t.Errorf("raw path /widgets/%s leaked into labels (%v requests)", id, v)
		}
	}
}
