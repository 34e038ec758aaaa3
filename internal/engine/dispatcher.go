package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/seantiz/matk/internal/backend"
	"github.com/seantiz/matk/internal/model"
	"github.com/seantiz/matk/internal/results"
	"github.com/seantiz/matk/internal/workdir"
)

// DefaultIndexStart is the first default sample index.
const DefaultIndexStart = 1

// Configuration errors. Run returns them before any worker starts.
var (
	ErrInvalidTopology   = model.ErrInvalidTopology
	ErrUnknownModel      = backend.ErrUnknownModel
	ErrDimensionMismatch = errors.New("parameter sets differ in dimension")
	ErrIndexMismatch     = errors.New("sample index count does not match parameter sets")
	ErrDuplicateIndex    = errors.New("duplicate sample index")
	ErrInvalidIndex      = model.ErrInvalidIndex
)

// Request describes one sweep.
type Request struct {
	// Model names a registered model. Func takes precedence when set.
	Model string
	Func  backend.Model

	Params []model.ParameterSet
	// Indices defaults to IndexStart, IndexStart+1, ... when nil.
	Indices []model.SampleIndex
	// IndexStart is the first default index; zero means DefaultIndexStart.
	IndexStart int
	// ObsNames declares the model's responses. When empty, names obs1..obsK
	// are inferred from the first successful result.
	ObsNames []string

	Workers model.Topology

	// WorkdirBase enables per-sample working directories named
	// WorkdirBase + "." + index, resolved against BaseDir.
	WorkdirBase string
	// BaseDir defaults to the engine's working-directory root.
	BaseDir string
	Persist bool
	Reuse   bool

	Args   []any
	Kwargs map[string]any

	// LogSink receives failure blocks and result rows as they arrive. It is
	// flushed after every write when it implements Flush() error.
	LogSink io.Writer
	// OnSample is called from the dispatching goroutine for every collected sample.
	OnSample func(model.SampleRecord)
}

// Result is what a sweep returns.
type Result struct {
	// Matrix has one row per parameter set in submission order. Failed
	// samples keep a row of NaN.
	Matrix   model.ResultMatrix
	Params   []model.ParameterSet
	Indices  []model.SampleIndex
	ObsNames []string
	// Failures is ordered by submission position.
	Failures []model.Failure
	Workers  int
}

// plan is a validated Request.
type plan struct {
	req     Request
	model   backend.Model
	params  []model.ParameterSet
	indices []model.SampleIndex
	slots   []model.Slot
}

func (e *Engine) prepare(req Request) (*plan, error) {
	m := req.Func
	if m == nil {
		if e.registry == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModel, req.Model)
		}
		var err error
		if m, err = e.registry.Resolve(req.Model); err != nil {
			return nil, err
		}
	}

	slots, err := req.Workers.Slots()
	if err != nil {
		return nil, err
	}

	n := len(req.Params)
	params := make([]model.ParameterSet, n)
	for i, ps := range req.Params {
		if len(ps.Names) != len(ps.Values) {
			return nil, fmt.Errorf("%w: set %d has %d names for %d values", ErrDimensionMismatch, i, len(ps.Names), len(ps.Values))
		}
		if i > 0 && !ps.SameNames(req.Params[0]) {
			return nil, fmt.Errorf("%w: set %d has parameters %v, want %v", ErrDimensionMismatch, i, ps.Names, req.Params[0].Names)
		}
		params[i] = ps.Clone()
	}

	indices := req.Indices
	if indices == nil {
		start := req.IndexStart
		if start == 0 {
			start = DefaultIndexStart
		}
		indices = model.DefaultIndices(n, start)
	}
	if len(indices) != n {
		return nil, fmt.Errorf("%w: %d indices for %d sets", ErrIndexMismatch, len(indices), n)
	}
	seen := make(map[model.SampleIndex]struct{}, n)
	for _, idx := range indices {
		if err := idx.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateIndex, idx)
		}
		seen[idx] = struct{}{}
	}

	if len(slots) > n {
		slots = slots[:n]
	}

	return &plan{
		req:     req,
		model:   m,
		params:  params,
		indices: slices.Clone(indices),
		slots:   slots,
	}, nil
}

// Run evaluates every parameter set on a pool of workers and returns the
// results in submission order. Model failures never abort the sweep; they
// leave a NaN row and a failure block in the log sink.
//
// Cancelling ctx stops collection: workers fail the items they have not yet
// started, every worker is joined, and Run returns the partial result with
// the context error. A model that ignores ctx holds up the return until it
// finishes.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, p, e.logger)
}

func (e *Engine) run(ctx context.Context, p *plan, logger *slog.Logger) (*Result, error) {
	n := len(p.params)
	out := &Result{
		Params:  p.params,
		Indices: p.indices,
		Workers: len(p.slots),
	}
	if n == 0 {
		out.Matrix = model.ResultMatrix{}
		out.ObsNames = slices.Clone(p.req.ObsNames)
		return out, nil
	}

	var base string
	if p.req.WorkdirBase != "" {
		scope, err := workdir.Open(e.baseDir(p.req), p.req.Persist)
		if err != nil {
			return nil, fmt.Errorf("open working directory: %w", err)
		}
		defer scope.Release()
		if base, err = scope.Prepare(p.req.WorkdirBase); err != nil {
			return nil, fmt.Errorf("prepare working directory: %w", err)
		}
	}

	queue := NewWorkQueue(n + len(p.slots))
	collector := NewCollector(n)

	var wg sync.WaitGroup
	for _, slot := range p.slots {
		w := &worker{
			slot:    slot,
			model:   p.model,
			queue:   queue,
			results: collector,
			logger:  logger,
			base:    base,
			persist: p.req.Persist,
			reuse:   p.req.Reuse,
			args:    p.req.Args,
			kwargs:  p.req.Kwargs,
		}
		wg.Go(func() { w.loop(ctx) })
	}

	for i := range n {
		queue.Put(model.WorkItem{Params: p.params[i], Index: p.indices[i], Position: i})
	}
	for range p.slots {
		queue.Put(model.Sentinel())
	}

	logger.Debug("sweep started", "samples", n, "workers", len(p.slots), "workdir_base", base)

	c := newCollation(p, logger)
	var runErr error
	for range n {
		r, err := collector.Pull(ctx)
		if err != nil {
			runErr = fmt.Errorf("sweep interrupted: %w", err)
			break
		}
		c.add(r)
	}
	// Pull may win the race against a cancelled ctx; report it regardless.
	if err := ctx.Err(); runErr == nil && err != nil {
		runErr = fmt.Errorf("sweep interrupted: %w", err)
	}

	queue.Join()
	wg.Wait()

	if runErr != nil {
		for {
			r, ok := collector.TryPull()
			if !ok {
				break
			}
			c.add(r)
		}
	}
	c.settle(true)

	c.finish(out)
	logger.Debug("sweep finished", "samples", n, "failed", len(out.Failures))
	return out, runErr
}

func (e *Engine) baseDir(req Request) string {
	if req.BaseDir != "" {
		return req.BaseDir
	}
	return e.workdirRoot
}

// collation reassembles results arriving in completion order.
//
// Without declared ObsNames the response width is that of the lowest-position
// success with values. Successes are held back until every earlier position
// has arrived, so which samples fail a width check never depends on timing.
type collation struct {
	p        *plan
	logger   *slog.Logger
	obsNames []string
	// width is -1 until fixed.
	width    int
	arrived  []bool
	held     []model.Result
	heldLen  map[int]int
	scan     int
	rows     [][]float64
	failed   []model.Result
	header   bool
	sinkErrs int
}

func newCollation(p *plan, logger *slog.Logger) *collation {
	n := len(p.params)
	c := &collation{
		p:        p,
		logger:   logger,
		obsNames: slices.Clone(p.req.ObsNames),
		width:    -1,
		arrived:  make([]bool, n),
		heldLen:  make(map[int]int),
		rows:     make([][]float64, n),
	}
	if len(c.obsNames) > 0 {
		c.width = len(c.obsNames)
	}
	return c
}

func (c *collation) add(r model.Result) {
	c.arrived[r.Position] = true
	if c.width < 0 && r.Status.OK() {
		c.held = append(c.held, r)
		c.heldLen[r.Position] = len(r.Status.Values)
	} else {
		c.accept(r)
	}
	if c.width < 0 {
		c.settle(false)
	}
}

// settle fixes the width once the lowest-position success with values is
// known and releases the held successes in arrival order. With final set,
// positions that never arrived are skipped, and a sweep that produced no
// values at all gets a single NaN column.
func (c *collation) settle(final bool) {
	for ; c.width < 0 && c.scan < len(c.arrived); c.scan++ {
		if !c.arrived[c.scan] {
			if !final {
				return
			}
			continue
		}
		if w := c.heldLen[c.scan]; w > 0 {
			c.fix(w)
		}
	}
	if c.width < 0 {
		if !final {
			return
		}
		c.fix(1)
	}
	held := c.held
	c.held = nil
	for _, r := range held {
		c.accept(r)
	}
}

func (c *collation) fix(width int) {
	c.width = width
	c.obsNames = model.DefaultObsNames(width)
}

func (c *collation) accept(r model.Result) {
	idx := c.p.indices[r.Position]
	rec := model.SampleRecord{
		Position:   r.Position,
		Index:      idx,
		Params:     c.p.params[r.Position].Values,
		DurationMS: r.DurationMS,
	}

	if vals := r.Status.Values; r.Status.OK() && len(vals) > 0 && len(vals) != c.width {
		r.Status = model.Failed(model.Failure{
			Index:  idx,
			Detail: fmt.Sprintf("model returned %d values, want %d", len(vals), c.width),
		})
	}

	if r.Status.OK() {
		c.rows[r.Position] = r.Status.Values
		rec.Status = model.SampleSucceeded
		rec.Values = r.Status.Values
		c.writeRow(idx, rec.Params, r.Status.Values)
	} else {
		c.failed = append(c.failed, r)
		rec.Status = model.SampleFailed
		rec.Error = r.Status.Failure.Detail
		c.write(r.Status.Failure.Block() + "\n")
	}

	if c.p.req.OnSample != nil {
		c.p.req.OnSample(rec)
	}
}

func (c *collation) writeRow(idx model.SampleIndex, params, values []float64) {
	if c.p.req.LogSink == nil {
		return
	}
	var b strings.Builder
	if !c.header {
		b.WriteString(results.Header(c.p.params[0].Names, c.obsNames))
		b.WriteByte('\n')
		c.header = true
	}
	if len(values) == 0 {
		values = model.MissingRow(max(c.width, 0))
	}
	b.WriteString(results.Row(idx, params, values))
	b.WriteByte('\n')
	c.write(b.String())
}

func (c *collation) write(s string) {
	sink := c.p.req.LogSink
	if sink == nil {
		return
	}
	_, err := io.WriteString(sink, s)
	if err == nil {
		if f, ok := sink.(interface{ Flush() error }); ok {
			err = f.Flush()
		}
	}
	if err != nil {
		if c.sinkErrs == 0 {
			c.logger.Warn("log sink write failed", "error", err)
		}
		c.sinkErrs++
	}
}

func (c *collation) finish(out *Result) {
	width := max(c.width, 0)
	out.Matrix = model.NewResultMatrix(len(c.rows), width)
	for i, row := range c.rows {
		if len(row) == width && width > 0 {
			copy(out.Matrix[i], row)
		}
	}
	out.ObsNames = c.obsNames

	sort.Slice(c.failed, func(i, j int) bool {
		return c.failed[i].Position < c.failed[j].Position
	})
	for _, r := range c.failed {
		out.Failures = append(out.Failures, *r.Status.Failure)
	}
}
