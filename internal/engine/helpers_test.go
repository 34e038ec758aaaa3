package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/backend/builtin"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := backend.NewRegistry()
	builtin.Register(reg)

	eng := engine.NewEngine(s, reg, discardLogger(), engine.WithWorkdirRoot(t.TempDir()))
	t.Cleanup(eng.Shutdown)
	return eng, s
}

// paramSets builds n sets over names a, b with a = i and b = 10*i.
func paramSets(t *testing.T, n int) []model.ParameterSet {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(10 * i)}
	}
	sets, err := model.ParameterSets([]string{"a", "b"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	return sets
}

// waitForStatus polls the store until the sweep reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.Sweep {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sw, err := s.GetSweep(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSweep: %v", err)
		}
		if sw.Status == expected {
			return sw
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweep %s did not reach status %q within %v", id, expected, timeout)
	return nil
}
