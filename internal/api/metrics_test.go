package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{0, "2xx"},
		{http.StatusAccepted, "2xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusConflict, "4xx"},
		{http.StatusInternalServerError, "5xx"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.status); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestSubmissionKind(t *testing.T) {
	tests := []struct {
		name string
		req  createSweepRequest
		want string
	}{
		{"registered", createSweepRequest{Model: "sum"}, "registered"},
		{"command", createSweepRequest{Command: &commandRequest{Run: "sh"}}, "command"},
		{"both", createSweepRequest{Model: "sum", Command: &commandRequest{Run: "sh"}}, "invalid"},
		{"neither", createSweepRequest{}, "invalid"},
	}
	for _, tt := range tests {
		if got := submissionKind(tt.req); got != tt.want {
			t.Errorf("%s: submissionKind = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSweepSubmissionMetrics(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	accepted := sweepSubmissions.WithLabelValues("registered", submitAccepted)
	rejected := sweepSubmissions.WithLabelValues("registered", submitRejected)
	notFound := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/sweeps/{id}", "4xx")
	beforeAccepted := counterValue(t, accepted)
	beforeRejected := counterValue(t, rejected)
	beforeNotFound := counterValue(t, notFound)

	resp := postSweep(t, ts, `{"model":"sum","par_names":["a"],"samples":[[1],[2]],"workers":1}`)
	sw := decodeSweep(t, resp)
	waitForSweep(t, srv, sw.ID)

	resp = postSweep(t, ts, `{"model":"sum","par_names":["a"],"samples":[[1],[2]],"indices":["1","1/."]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/v1/sweeps/missing")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if got := counterValue(t, accepted) - beforeAccepted; got != 1 {
		t.Errorf("accepted delta = %v, want 1", got)
	}
	if got := counterValue(t, rejected) - beforeRejected; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
	if got := counterValue(t, notFound) - beforeNotFound; got != 1 {
		t.Errorf("404 requests on /v1/sweeps/{id} delta = %v, want 1", got)
	}
}
