package engine

import (
	"sync"

	"github.com/seantiz/matk/internal/model"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 256

// EventKind distinguishes broker events.
type EventKind string

const (
	// EventLog carries one line written to a sweep's log sink.
	EventLog EventKind = "log"
	// EventSample reports that one sample has been collected.
	EventSample EventKind = "sample"
)

// Event is one progress notification of a submitted sweep.
type Event struct {
	Kind EventKind
	// Seq and Line are set for EventLog.
	Seq  int
	Line string
	// Sample is set for EventSample.
	Sample *model.SampleRecord
	// Done counts the samples collected so far, including this one.
	Done int
}

// LogBroker fans sweep events out to subscribers, one topic per sweep.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that subscribers arriving after a
// sweep finished receive a closed channel instead of blocking forever.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
	done   int
}

// NewLogBroker creates a new broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*topic),
	}
}

func (b *LogBroker) topic(sweepID string) *topic {
	t, ok := b.topics[sweepID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[sweepID] = t
	}
	return t
}

// Subscribe returns a channel receiving the sweep's events and an
// unsubscribe function. If the sweep has already finished the channel is
// closed immediately.
func (b *LogBroker) Subscribe(sweepID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(sweepID)
	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends a log line to all subscribers of the sweep.
func (b *LogBroker) Publish(sweepID string, seq int, line string) {
	b.publish(sweepID, Event{Kind: EventLog, Seq: seq, Line: line})
}

// PublishSample reports a collected sample to all subscribers of the sweep.
func (b *LogBroker) PublishSample(sweepID string, rec model.SampleRecord) {
	b.publish(sweepID, Event{Kind: EventSample, Sample: &rec})
}

func (b *LogBroker) publish(sweepID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(sweepID)
	if t.closed {
		return
	}
	if ev.Kind == EventSample {
		t.done++
	}
	ev.Done = t.done

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop for slow subscribers so sweeps never block on them.
		}
	}
}

// Close signals that no more events will be published for the sweep. All
// subscriber channels are closed and future Subscribe calls return a closed
// channel.
func (b *LogBroker) Close(sweepID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(sweepID)
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
