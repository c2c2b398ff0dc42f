package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestAPISessionDetail(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ws := dial(t, ts)
	id := createSession(t, ws, "u1", "U1", "Bio Lab")

	var snap map[string]any
	getJSON(t, ts.URL+"/api/sessions/"+id, http.StatusOK, &snap)

	if snap["id"] != id || snap["name"] != "Bio Lab" || snap["owner"] != "u1" {
		t.Errorf("snapshot identity = %v", snap)
	}
	if snap["currentStep"] != float64(0) {
		t.Errorf("currentStep = %v, want 0", snap["currentStep"])
	}
	participants := snap["participants"].([]any)
	if len(participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(participants))
	}
	p := participants[0].(map[string]any)
	if p["userId"] != "u1" || p["username"] != "U1" {
		t.Errorf("roster entry = %v", p)
	}
}

func TestAPISessionDetailNotFound(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var body map[string]string
	getJSON(t, ts.URL+"/api/sessions/no-such-id", http.StatusNotFound, &body)
	if body["message"] != "Session not found" {
		t.Errorf("message = %q, want %q", body["message"], "Session not found")
	}
}

func TestAPIListEmpty(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var list []map[string]any
	getJSON(t, ts.URL+"/api/sessions", http.StatusOK, &list)
	if len(list) != 0 {
		t.Errorf("list = %d entries, want 0", len(list))
	}
}

func TestAPIStats(t *testing.T) {
	_, ts := newTestServer(t, nil)
	ws := dial(t, ts)
	createSession(t, ws, "u1", "U1", "Bio Lab")

	var stats map[string]any
	getJSON(t, ts.URL+"/api/stats", http.StatusOK, &stats)
	if stats["active"] != float64(1) || stats["totalCreated"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var body map[string]string
	getJSON(t, ts.URL+"/healthz", http.StatusOK, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
}
