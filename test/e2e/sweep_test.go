package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/matk/internal/api"
	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/backend/builtin"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/results"
	"github.com/seantiz/matk/internal/sampleset"
	"github.com/seantiz/matk/internal/store"
)

// stack is a full server over a file-backed database.
type stack struct {
	ts    *httptest.Server
	store *store.SQLiteStore
	root  string
}

func newStack(t *testing.T) *stack {
	t.Helper()

	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "matk.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := backend.NewRegistry()
	builtin.Register(reg)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	root := filepath.Join(dir, "work")
	eng := engine.NewEngine(s, reg, logger, engine.WithWorkdirRoot(root))
	srv := api.NewServer(":0", s, reg, eng, logger, api.WithDefaultWorkers(3))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		eng.Shutdown()
	})
	return &stack{ts: ts, store: s, root: root}
}

func (st *stack) submit(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(st.ts.URL+"/v1/sweeps", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 202\nbody: %s", resp.StatusCode, b)
	}
	var sw model.Sweep
	if err := json.NewDecoder(resp.Body).Decode(&sw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return sw.ID
}

func (st *stack) wait(t *testing.T, id string) *model.Sweep {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		sw, err := st.store.GetSweep(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSweep: %v", err)
		}
		if model.IsTerminal(sw.Status) {
			return sw
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("sweep %s did not finish", id)
	return nil
}

func (st *stack) results(t *testing.T, id string) *results.Table {
	t.Helper()
	resp, err := http.Get(st.ts.URL + "/v1/sweeps/" + id + "/results")
	if err != nil {
		t.Fatalf("GET results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results status = %d, want 200", resp.StatusCode)
	}
	tbl, err := results.Read(resp.Body)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	return tbl
}

func TestCommandSweepEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	st := newStack(t)

	id := st.submit(t, `{
		"command": {"run": "sh", "args": ["-c", "echo \"$MATK_PAR_A $MATK_PAR_B\""]},
		"par_names": ["a", "b"],
		"samples": [[1, 5], [2, 3], [3, 4], [4, 1]],
		"obs_names": ["ra", "rb"],
		"workdir_base": "run",
		"persist": true
	}`)

	sw := st.wait(t, id)
	if sw.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed (error %q)", sw.Status, sw.Error)
	}

	tbl := st.results(t, id)
	if tbl.Len() != 4 {
		t.Fatalf("rows = %d, want 4", tbl.Len())
	}
	for i, row := range tbl.Responses {
		if row[0] != tbl.Samples[i][0] || row[1] != tbl.Samples[i][1] {
			t.Errorf("row %d: responses %v, want %v", i, row, tbl.Samples[i])
		}
	}

	set := sampleset.FromTable("e2e", tbl)
	c, err := set.Corr(sampleset.Pearson)
	if err != nil {
		t.Fatalf("Corr: %v", err)
	}
	if got := c.Coeffs[0][0]; math.Abs(got-1) > 1e-12 {
		t.Errorf("corr(a, ra) = %v, want 1", got)
	}

	for _, idx := range []string{"1", "2", "3", "4"} {
		fi, err := os.Stat(filepath.Join(st.root, "run."+idx))
		if err != nil || !fi.IsDir() {
			t.Errorf("working directory run.%s missing: %v", idx, err)
		}
	}
}

func TestSweepStreamsSamplesThenDone(t *testing.T) {
	st := newStack(t)

	// The SSE subscription must start before the sweep ends; rosenbrock
	// over many samples on one worker keeps it running long enough in
	// practice, and a finished sweep still answers with an empty stream.
	samples := make([]string, 200)
	for i := range samples {
		samples[i] = "[1, 1]"
	}
	id := st.submit(t, `{"model": "rosenbrock", "par_names": ["x", "y"], "workers": 1, "samples": [`+strings.Join(samples, ",")+`]}`)

	resp, err := http.Get(st.ts.URL + "/v1/sweeps/" + id + "/logs")
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var sampleEvents int
	var done bool
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
			if event == "done" {
				done = true
			}
		case strings.HasPrefix(line, "data: ") && event == "sample":
			var rec struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
				t.Fatalf("decode sample event: %v", err)
			}
			if rec.Status != model.SampleSucceeded {
				t.Errorf("sample status = %q", rec.Status)
			}
			sampleEvents++
		case line == "":
			event = ""
		}
	}
	if sampleEvents > 0 && !done {
		t.Error("stream ended without a done event")
	}

	sw := st.wait(t, id)
	if sw.Status != model.StatusCompleted {
		t.Fatalf("status = %q, want completed", sw.Status)
	}
	tbl := st.results(t, id)
	if tbl.Len() != 200 {
		t.Fatalf("rows = %d, want 200", tbl.Len())
	}
	for i, row := range tbl.Responses {
		if row[0] != 0 {
			t.Fatalf("row %d: rosenbrock(1,1) = %v, want 0", i, row[0])
		}
	}
}
