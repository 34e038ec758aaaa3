package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/workdir"
)

// worker evaluates work items until it receives the sentinel. Its slot tag
// is fixed for its lifetime.
type worker struct {
	slot    model.Slot
	model   backend.Model
	queue   *WorkQueue
	results *Collector
	logger  *slog.Logger

	// base is the absolute per-sample directory prefix, empty when samples
	// run without a working directory.
	base    string
	persist bool
	reuse   bool
	args    []any
	kwargs  map[string]any
}

func (w *worker) loop(ctx context.Context) {
	for {
		item := w.queue.Get()
		if item.IsSentinel() {
			w.queue.Done()
			return
		}

		res, dir := w.process(ctx, item)
		w.results.Push(res)

		if dir != "" && !w.persist {
			if err := workdir.Remove(dir); err != nil {
				w.logger.Warn("failed to remove working directory", "sample_index", item.Index.String(), "error", err)
			}
		}
		w.queue.Done()
	}
}

// process runs one item and returns its result along with the directory the
// worker owns for it. A directory that conflicted is never returned, so it is
// never removed.
func (w *worker) process(ctx context.Context, item model.WorkItem) (model.Result, string) {
	res := model.Result{Position: item.Position, Index: item.Index}
	fail := func(detail string) (model.Result, string) {
		res.Status = model.Failed(model.Failure{Index: item.Index, Detail: detail})
		samplesTotal.WithLabelValues(model.SampleFailed).Inc()
		return res, ""
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Sprintf("sweep cancelled before run: %v", err))
	}

	var dir string
	if w.base != "" {
		dir = workdir.Name(w.base, item.Index.String())
		if _, err := workdir.Ensure(dir, w.reuse); err != nil {
			return fail(err.Error())
		}
	}

	call := backend.Call{
		Params:  item.Params.Clone(),
		Index:   item.Index,
		WorkDir: dir,
		Slot:    w.slot,
		Args:    w.args,
		Kwargs:  w.kwargs,
	}

	activeWorkers.Inc()
	start := time.Now()
	values, err := invoke(ctx, w.model, call)
	elapsed := time.Since(start)
	activeWorkers.Dec()
	sampleDuration.Observe(elapsed.Seconds())
	res.DurationMS = int(elapsed.Milliseconds())

	if err != nil {
		w.logger.Debug("sample failed", "sample_index", item.Index.String(), "error", err)
		r, _ := fail(err.Error())
		return r, dir
	}
	samplesTotal.WithLabelValues(model.SampleSucceeded).Inc()
	res.Status = model.Success(values)
	return res, dir
}

// invoke calls the model, converting a panic into an error carrying the stack.
func invoke(ctx context.Context, m backend.Model, call backend.Call) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n\n%s", r, debug.Stack())
		}
	}()
	return m.Run(ctx, call)
}
