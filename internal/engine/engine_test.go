package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/workdir"
)

func TestSubmitCompletes(t *testing.T) {
	eng, s := newTestEngine(t)

	m := backend.Func(func(_ context.Context, c backend.Call) ([]float64, error) {
		if c.Index == "2" {
			return nil, errors.New("diverged")
		}
		return []float64{c.Params.Sum()}, nil
	})
	sw, err := eng.Submit(context.Background(), engine.Request{
		Func:     m,
		Params:   paramSets(t, 3),
		ObsNames: []string{"y"},
		Workers:  model.Workers(2),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sw.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", sw.Status)
	}
	if sw.Model != "inline" || sw.NumSamples != 3 || sw.NumWorkers != 2 {
		t.Errorf("sweep = %+v", sw)
	}

	done := waitForStatus(t, s, sw.ID, model.StatusCompleted, 5*time.Second)
	if done.NumFailed != 1 {
		t.Errorf("NumFailed = %d, want 1", done.NumFailed)
	}
	if done.StartedAt == nil || done.FinishedAt == nil || done.DurationMS == nil {
		t.Errorf("timestamps not recorded: %+v", done)
	}

	samples, err := s.GetSamples(context.Background(), sw.ID)
	if err != nil {
		t.Fatalf("GetSamples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	if samples[1].Status != model.SampleFailed || !strings.Contains(samples[1].Error, "diverged") {
		t.Errorf("samples[1] = %+v", samples[1])
	}
	if samples[2].Values[0] != 2+20 {
		t.Errorf("samples[2].Values = %v", samples[2].Values)
	}

	lines, err := s.GetLogLines(context.Background(), sw.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	joined := make([]string, len(lines))
	for i, l := range lines {
		joined[i] = l.Line
	}
	log := strings.Join(joined, "\n")
	if !strings.Contains(log, "Exception in job 2:") {
		t.Errorf("stored log lacks failure block:\n%s", log)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	eng, s := newTestEngine(t)

	_, err := eng.Submit(context.Background(), engine.Request{Model: "sum", Params: paramSets(t, 2)})
	if !errors.Is(err, engine.ErrInvalidTopology) {
		t.Fatalf("Submit error = %v, want ErrInvalidTopology", err)
	}
	list, _, err := s.ListSweeps(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListSweeps: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("invalid sweep was stored: %+v", list)
	}
}

func TestSubmitWithoutStore(t *testing.T) {
	eng := engine.NewEngine(nil, backend.NewRegistry(), discardLogger())
	_, err := eng.Submit(context.Background(), engine.Request{})
	if !errors.Is(err, engine.ErrNoStore) {
		t.Errorf("Submit error = %v, want ErrNoStore", err)
	}
}

func TestCancelKillsSweep(t *testing.T) {
	eng, s := newTestEngine(t)

	started := make(chan struct{}, 10)
	m := backend.Func(func(ctx context.Context, _ backend.Call) ([]float64, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	sw, err := eng.Submit(context.Background(), engine.Request{
		Func:    m,
		Params:  paramSets(t, 6),
		Workers: model.Workers(2),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("model never started")
	}
	if err := eng.Cancel(sw.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	done := waitForStatus(t, s, sw.ID, model.StatusKilled, 5*time.Second)
	if done.Error != "cancelled" {
		t.Errorf("Error = %q, want cancelled", done.Error)
	}

	eng.Wait()
	if err := eng.Cancel(sw.ID); !errors.Is(err, engine.ErrNotActive) {
		t.Errorf("second Cancel error = %v, want ErrNotActive", err)
	}
}

func TestCancelUnknown(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Cancel("nope"); !errors.Is(err, engine.ErrNotActive) {
		t.Errorf("Cancel error = %v, want ErrNotActive", err)
	}
}

func TestSubmitStreamsEvents(t *testing.T) {
	eng, s := newTestEngine(t)

	gate := make(chan struct{})
	m := backend.Func(func(_ context.Context, c backend.Call) ([]float64, error) {
		<-gate
		return []float64{c.Params.Sum()}, nil
	})
	sw, err := eng.Submit(context.Background(), engine.Request{
		Func:    m,
		Params:  paramSets(t, 2),
		Workers: model.Workers(1),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ch, unsub := eng.Broker().Subscribe(sw.ID)
	defer unsub()
	close(gate)

	var logs, samples int
	for ev := range ch {
		switch ev.Kind {
		case engine.EventLog:
			logs++
		case engine.EventSample:
			samples++
		}
	}
	if samples != 2 {
		t.Errorf("sample events = %d, want 2", samples)
	}
	if logs != 3 {
		t.Errorf("log events = %d, want header + 2 rows", logs)
	}
	waitForStatus(t, s, sw.ID, model.StatusCompleted, 5*time.Second)
}

func TestForward(t *testing.T) {
	eng, _ := newTestEngine(t)
	ps, _ := model.NewParameterSet([]string{"x", "y"}, []float64{1, 1})

	got, err := eng.Forward(context.Background(), engine.ForwardRequest{Model: "rosenbrock", Params: ps})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("rosenbrock(1,1) = %v, want [0]", got)
	}
}

func TestForwardModelError(t *testing.T) {
	eng, _ := newTestEngine(t)
	m := backend.Func(func(context.Context, backend.Call) ([]float64, error) {
		return nil, errors.New("bad input")
	})
	_, err := eng.Forward(context.Background(), engine.ForwardRequest{Func: m, Index: "7"})
	var f *model.Failure
	if !errors.As(err, &f) {
		t.Fatalf("Forward error = %v, want *model.Failure", err)
	}
	if f.Index != "7" || !strings.Contains(f.Detail, "bad input") {
		t.Errorf("Failure = %+v", f)
	}
}

func TestForwardWorkdir(t *testing.T) {
	eng, _ := newTestEngine(t)
	base := t.TempDir()

	var seen string
	m := backend.Func(func(_ context.Context, c backend.Call) ([]float64, error) {
		seen = c.WorkDir
		return []float64{1}, os.WriteFile(filepath.Join(c.WorkDir, "in.dat"), nil, 0o644)
	})

	req := engine.ForwardRequest{Func: m, Workdir: "fwd", BaseDir: base, Persist: true}
	if _, err := eng.Forward(context.Background(), req); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if seen != filepath.Join(base, "fwd") {
		t.Errorf("WorkDir = %q", seen)
	}

	// The directory now exists, so a second run without reuse conflicts and
	// never reaches the model.
	seen = ""
	_, err := eng.Forward(context.Background(), req)
	if !errors.Is(err, workdir.ErrExists) {
		t.Fatalf("Forward error = %v, want ErrExists", err)
	}
	if seen != "" {
		t.Error("model ran despite conflict")
	}
	if _, err := os.Stat(filepath.Join(base, "fwd", "in.dat")); err != nil {
		t.Errorf("conflicting directory was touched: %v", err)
	}

	req.Reuse = true
	req.Persist = false
	if _, err := eng.Forward(context.Background(), req); err != nil {
		t.Fatalf("Forward with reuse: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "fwd")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("non-persistent directory kept: %v", err)
	}
}

func TestForwardUnknownModel(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Forward(context.Background(), engine.ForwardRequest{Model: "missing"})
	if !errors.Is(err, engine.ErrUnknownModel) {
		t.Errorf("Forward error = %v, want ErrUnknownModel", err)
	}
}

func TestSubmitFlushesCallerSink(t *testing.T) {
	eng, s := newTestEngine(t)
	sink := &flushSink{}

	sw, err := eng.Submit(context.Background(), engine.Request{
		Model:    "sum",
		Params:   paramSets(t, 3),
		ObsNames: []string{"total"},
		Workers:  model.Workers(1),
		LogSink:  sink,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, s, sw.ID, model.StatusCompleted, 5*time.Second)
	eng.Wait()

	if sink.flushes != 3 {
		t.Errorf("flushes = %d, want 3", sink.flushes)
	}
	if got := strings.Count(sink.String(), "\n"); got != 4 {
		t.Errorf("caller sink has %d lines, want header + 3 rows:\n%s", got, sink.String())
	}
	history, err := s.GetLogLines(context.Background(), sw.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if len(history) != 4 {
		t.Errorf("stored %d log lines, want 4", len(history))
	}
}
