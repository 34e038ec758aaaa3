package engine

import (
	"context"

	"github.com/seantiz/matk/internal/model"
)

// Collector is the mailbox workers report results into. Results arrive in
// completion order; each carries its submission position so the dispatcher
// can restore order.
type Collector struct {
	results chan model.Result
}

// NewCollector creates a collector sized for n results. Push never blocks
// as long as at most n results are pushed.
func NewCollector(n int) *Collector {
	return &Collector{results: make(chan model.Result, n)}
}

// Push adds a result.
func (c *Collector) Push(r model.Result) {
	c.results <- r
}

// Pull blocks until a result is available or ctx is done.
func (c *Collector) Pull(ctx context.Context) (model.Result, error) {
	select {
	case r := <-c.results:
		return r, nil
	case <-ctx.Done():
		return model.Result{}, ctx.Err()
	}
}

// TryPull returns a buffered result without blocking.
func (c *Collector) TryPull() (model.Result, bool) {
	select {
	case r := <-c.results:
		return r, true
	default:
		return model.Result{}, false
	}
}
