package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := Prometheus(WithRegistry(reg), WithNamespace("test"))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418 passed through", rec.Code)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	var foundCounter, foundHistogram bool
	for _, mf := range families {
		switch mf.GetName() {
		case "test_http_requests_total":
			foundCounter = true
			m := mf.GetMetric()
			if len(m) != 1 || m[0].GetCounter().GetValue() != 1 {
				t.Errorf("requests_total = %v, want a single sample of 1", m)
			}
			labels := map[string]string{}
			for _, lp := range m[0].GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] != "GET" || labels["path"] != "/api/sessions" || labels["status"] != "418" {
				t.Errorf("labels = %v", labels)
			}
		case "test_http_request_duration_seconds":
			foundHistogram = true
			m := mf.GetMetric()
			if len(m) != 1 || m[0].GetHistogram().GetSampleCount() != 1 {
				t.Errorf("duration histogram = %v, want one observation", m)
			}
		}
	}
	if !foundCounter || !foundHistogram {
		t.Errorf("metric families missing: counter=%v histogram=%v", foundCounter, foundHistogram)
	}
}

func TestPrometheusDefaultStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := Prometheus(WithRegistry(reg))

	// A handler that never calls WriteHeader reports 200.
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, _ := reg.Gather()
	for _, mf := range families {
		if mf.GetName() != "collab_http_requests_total" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			if lp.GetName() == "status" && lp.GetValue() != "200" {
				t.Errorf("status label = %q, want 200", lp.GetValue())
			}
		}
		return
	}
	t.Error("collab_http_requests_total not found")
}

func TestOpenTelemetryPassthrough(t *testing.T) {
	mw := OpenTelemetry(WithTracerName("test"))

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("made"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	if !called {
		t.Fatal("wrapped handler was not invoked")
	}
	if rec.Code != http.StatusCreated || rec.Body.String() != "made" {
		t.Errorf("response = %d %q, want 201 made", rec.Code, rec.Body.String())
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	mw := OpenTelemetry(WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("filtered request status = %d, want 200", rec.Code)
	}
}
