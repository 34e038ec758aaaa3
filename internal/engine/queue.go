package engine

import (
	"sync"

	"github.com/seantiz/matk/internal/model"
)

// WorkQueue is the FIFO feeding work items to workers. Every item taken with
// Get must be acknowledged with Done; Join returns once all items put so far
// have been acknowledged.
type WorkQueue struct {
	items   chan model.WorkItem
	pending sync.WaitGroup
}

// NewWorkQueue creates a queue that holds up to capacity unacknowledged items
// without blocking Put.
func NewWorkQueue(capacity int) *WorkQueue {
	return &WorkQueue{items: make(chan model.WorkItem, capacity)}
}

// Put enqueues an item.
func (q *WorkQueue) Put(item model.WorkItem) {
	q.pending.Add(1)
	q.items <- item
}

// Get blocks until an item is available.
func (q *WorkQueue) Get() model.WorkItem {
	return <-q.items
}

// Done acknowledges one item returned by Get.
func (q *WorkQueue) Done() {
	q.pending.Done()
}

// Join blocks until every item has been acknowledged.
func (q *WorkQueue) Join() {
	q.pending.Wait()
}
