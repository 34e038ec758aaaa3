package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/matk/internal/backend"
)

func TestStreamLogsCompletedSweep(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sw := decodeSweep(t, postSweep(t, ts, sumSweep))
	waitForSweep(t, srv, sw.ID)

	resp, err := http.Get(ts.URL + "/v1/sweeps/" + sw.ID + "/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestStreamLogsLive(t *testing.T) {
	srv := newTestServer(t)
	gate := make(chan struct{})
	srv.registry.Register("gated", backend.Func(func(ctx context.Context, c backend.Call) ([]float64, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if c.Index == "2" {
			return nil, context.DeadlineExceeded
		}
		return []float64{c.Params.Sum()}, nil
	}))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sw := decodeSweep(t, postSweep(t, ts, `{"model":"gated","par_names":["x"],"samples":[[1],[2],[3]],"workers":1}`))

	resp, err := http.Get(ts.URL + "/v1/sweeps/" + sw.ID + "/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	// Headers are flushed after the handler subscribes, so nothing is missed.
	close(gate)

	var (
		data    []string
		samples int
		done    bool
		event   string
	)
	sc := bufio.NewScanner(resp.Body)
	deadline := time.AfterFunc(5*time.Second, func() { resp.Body.Close() })
	defer deadline.Stop()
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			switch event {
			case "sample":
				var s sampleResponse
				if err := json.Unmarshal([]byte(payload), &s); err != nil {
					t.Errorf("sample event %q: %v", payload, err)
				}
				samples++
			case "done":
				done = true
			default:
				data = append(data, payload)
			}
		case line == "":
			event = ""
		}
		if done {
			break
		}
	}

	if !done {
		t.Fatal("stream ended without done event")
	}
	if samples != 3 {
		t.Errorf("sample events = %d, want 3", samples)
	}
	log := strings.Join(data, "\n")
	if !strings.Contains(log, "Exception in job 2:") {
		t.Errorf("streamed log lacks failure block:\n%s", log)
	}
	if !strings.HasPrefix(strings.TrimSpace(data[0]), "index") {
		t.Errorf("first line = %q, want header", data[0])
	}
}

func TestGetLogHistory(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	sw := decodeSweep(t, postSweep(t, ts, sumSweep))
	waitForSweep(t, srv, sw.ID)

	resp, err := http.Get(ts.URL + "/v1/sweeps/" + sw.ID + "/logs/history")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var hist logHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hist.SweepID != sw.ID {
		t.Errorf("sweep_id = %q, want %q", hist.SweepID, sw.ID)
	}
	// Header plus one row per sample.
	if len(hist.Lines) != 6 {
		t.Fatalf("lines = %d, want 6", len(hist.Lines))
	}
	for i, l := range hist.Lines {
		if l.Seq != i {
			t.Errorf("line %d seq = %d", i, l.Seq)
		}
	}
	if f := strings.Fields(hist.Lines[0].Line); strings.Join(f, " ") != "index a b total" {
		t.Errorf("header = %q", hist.Lines[0].Line)
	}
}
