package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/store"
)

// ErrNotActive is returned by Cancel for sweeps that are not pending or running.
var ErrNotActive = errors.New("sweep is not active")

// ErrNoStore is returned by Submit when the engine has no store.
var ErrNoStore = errors.New("engine has no store")

// Engine runs parameter sweeps, either synchronously (Run, Forward) or as
// tracked background sweeps (Submit).
type Engine struct {
	store       store.Store
	registry    *backend.Registry
	logger      *slog.Logger
	workdirRoot string
	wg          sync.WaitGroup
	broker      *LogBroker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkdirRoot sets the directory relative working-directory bases resolve against.
func WithWorkdirRoot(dir string) Option {
	return func(e *Engine) { e.workdirRoot = dir }
}

// NewEngine creates a new sweep engine. The store may be nil when only
// synchronous runs are needed.
func NewEngine(s store.Store, reg *backend.Registry, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		registry:    reg,
		logger:      logger,
		workdirRoot: ".",
		broker:      NewLogBroker(),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Submit validates the request, records a pending sweep and runs it in the
// background. Configuration errors are returned before anything is stored.
func (e *Engine) Submit(ctx context.Context, req Request) (*model.Sweep, error) {
	if e.store == nil {
		return nil, ErrNoStore
	}
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	sw := &model.Sweep{
		ID:          model.NewID(),
		Status:      model.StatusPending,
		Model:       modelName(req),
		ObsNames:    req.ObsNames,
		NumSamples:  len(p.params),
		NumWorkers:  len(p.slots),
		WorkdirBase: req.WorkdirBase,
		CreatedAt:   time.Now().UTC(),
	}
	if len(p.params) > 0 {
		sw.ParNames = p.params[0].Names
	}
	if err := e.store.CreateSweep(ctx, sw); err != nil {
		return nil, fmt.Errorf("create sweep: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[sw.ID] = cancel
	e.mu.Unlock()

	swCopy := *sw
	e.wg.Go(func() {
		e.execute(runCtx, &swCopy, p)
	})

	return sw, nil
}

// Cancel stops a submitted sweep. Samples already running are cancelled
// through their context; the sweep finishes as killed.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, id)
	}
	cancel()
	return nil
}

// Wait blocks until all in-flight sweeps complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown cancels every active sweep and waits for them to finish.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// execute runs the sweep lifecycle in a goroutine: pending→running→completed/failed/killed.
func (e *Engine) execute(ctx context.Context, sw *model.Sweep, p *plan) {
	// Close the log stream when execution finishes, regardless of outcome.
	defer e.broker.Close(sw.ID)
	defer e.forget(sw.ID)

	logger := e.logger.With("sweep_id", sw.ID)

	if err := e.store.UpdateSweepStatus(context.Background(), sw.ID, model.StatusRunning); err != nil {
		logger.Error("failed to transition to running", "error", err)
		e.finish(sw, nil, model.StatusFailed, fmt.Sprintf("failed to start: %v", err), nil)
		return
	}
	start := time.Now().UTC()

	// The sink dual-writes: persist to SQLite for history, then publish to
	// the broker for live SSE subscribers.
	p.req.LogSink = &sweepLog{engine: e, sweepID: sw.ID, logger: logger, next: p.req.LogSink}
	hook := p.req.OnSample
	p.req.OnSample = func(rec model.SampleRecord) {
		rec.SweepID = sw.ID
		if err := e.store.RecordSample(context.Background(), &rec); err != nil {
			logger.Error("failed to record sample", "sample_index", rec.Index.String(), "error", err)
		}
		e.broker.PublishSample(sw.ID, rec)
		if hook != nil {
			hook(rec)
		}
	}

	res, err := e.run(ctx, p, logger)
	switch {
	case err == nil:
		e.finish(sw, &start, model.StatusCompleted, "", res)
	case errors.Is(err, context.Canceled):
		e.finish(sw, &start, model.StatusKilled, "cancelled", res)
	default:
		e.finish(sw, &start, model.StatusFailed, err.Error(), res)
	}
}

// finish records the terminal state of a sweep. startedAt may be nil if
// execution never started; res may be nil if the sweep never ran.
func (e *Engine) finish(sw *model.Sweep, startedAt *time.Time, status, errMsg string, res *Result) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(now.Sub(*startedAt).Milliseconds())
	}

	done := &model.Sweep{
		ID:         sw.ID,
		Status:     status,
		ObsNames:   sw.ObsNames,
		NumWorkers: sw.NumWorkers,
		Error:      errMsg,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if res != nil {
		done.ObsNames = res.ObsNames
		done.NumFailed = len(res.Failures)
	}

	if err := e.store.UpdateSweep(context.Background(), done); err != nil {
		e.logger.Error("failed to update finished sweep", "sweep_id", sw.ID, "error", err)
	}
	sweepsTotal.WithLabelValues(status).Inc()
	e.logger.Info("sweep finished", "sweep_id", sw.ID, "status", status, "failed", done.NumFailed, "duration_ms", durationMS)
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
}

func modelName(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return "inline"
}

// sweepLog is the log sink of a submitted sweep. Every complete line written
// to it is stored and published under the sweep's ID, after being passed on
// to the caller's sink, if any.
type sweepLog struct {
	engine  *Engine
	sweepID string
	logger  *slog.Logger
	next    io.Writer
	seq     int
	partial string
}

func (l *sweepLog) Write(b []byte) (int, error) {
	var nextErr error
	if l.next != nil {
		_, nextErr = l.next.Write(b)
	}
	text := l.partial + string(b)
	lines := strings.Split(text, "\n")
	l.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if err := l.engine.store.InsertLogLine(context.Background(), l.sweepID, l.seq, line); err != nil {
			l.logger.Error("failed to persist log line", "seq", l.seq, "error", err)
		}
		l.engine.broker.Publish(l.sweepID, l.seq, line)
		l.seq++
	}
	return len(b), nextErr
}

// Flush flushes the caller's sink when it buffers.
func (l *sweepLog) Flush() error {
	if f, ok := l.next.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
