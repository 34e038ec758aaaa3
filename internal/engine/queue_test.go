package engine

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/matk/internal/model"
)

func TestWorkQueueJoin(t *testing.T) {
	q := NewWorkQueue(3)
	q.Put(model.WorkItem{Position: 0})
	q.Put(model.WorkItem{Position: 1})

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	for range 2 {
		q.Get()
	}
	select {
	case <-joined:
		t.Fatal("Join returned before items were acknowledged")
	case <-time.After(20 * time.Millisecond):
	}

	q.Done()
	q.Done()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all items were acknowledged")
	}
}

func TestWorkQueueFIFO(t *testing.T) {
	q := NewWorkQueue(3)
	for i := range 3 {
		q.Put(model.WorkItem{Position: i})
	}
	for i := range 3 {
		if got := q.Get().Position; got != i {
			t.Errorf("Get() position = %d, want %d", got, i)
		}
		q.Done()
	}
}

func TestCollectorPullCancelled(t *testing.T) {
	c := NewCollector(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Pull(ctx); err == nil {
		t.Fatal("Pull on cancelled context returned no error")
	}
	if _, ok := c.TryPull(); ok {
		t.Error("TryPull on empty collector reported a result")
	}

	c.Push(model.Result{Position: 4})
	r, ok := c.TryPull()
	if !ok || r.Position != 4 {
		t.Errorf("TryPull() = %+v, %v", r, ok)
	}
}

func TestSampleMetrics(t *testing.T) {
	counter := func(status string) float64 {
		var m dto.Metric
		if err := samplesTotal.WithLabelValues(status).Write(&m); err != nil {
			t.Fatalf("Write: %v", err)
		}
		return m.GetCounter().GetValue()
	}
	beforeOK, beforeFailed := counter(model.SampleSucceeded), counter(model.SampleFailed)

	w := &worker{model: nil}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, dir := w.process(ctx, model.WorkItem{Position: 0, Index: "1"})
	if res.Status.OK() || dir != "" {
		t.Errorf("cancelled process = %+v, %q", res, dir)
	}

	if got := counter(model.SampleFailed) - beforeFailed; got != 1 {
		t.Errorf("failed samples delta = %v, want 1", got)
	}
	if got := counter(model.SampleSucceeded) - beforeOK; got != 0 {
		t.Errorf("succeeded samples delta = %v, want 0", got)
	}
}
