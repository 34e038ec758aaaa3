package engine_test

import (
	"testing"

	"github.com/seantiz/matk/internal/engine"
	"github.com/seantiz/matk/internal/model"
)

func drain(ch <-chan engine.Event) []engine.Event {
	var got []engine.Event
	for ev := range ch {
		got = append(got, ev)
	}
	return got
}

func TestBrokerSingleSubscriber(t *testing.T) {
	b := engine.NewLogBroker()
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	lines := []string{"line 1", "line 2", "line 3"}
	for i, l := range lines {
		b.Publish("s1", i, l)
	}
	b.Close("s1")

	got := drain(ch)
	if len(got) != len(lines) {
		t.Fatalf("got %d events, want %d", len(got), len(lines))
	}
	for i, ev := range got {
		if ev.Kind != engine.EventLog || ev.Line != lines[i] || ev.Seq != i {
			t.Errorf("event[%d] = %+v, want log %q seq %d", i, ev, lines[i], i)
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewLogBroker()
	ch1, unsub1 := b.Subscribe("s1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("s1")
	defer unsub2()

	b.Publish("s1", 0, "hello")
	b.Close("s1")

	for i, ch := range []<-chan engine.Event{ch1, ch2} {
		got := drain(ch)
		if len(got) != 1 || got[0].Line != "hello" {
			t.Errorf("subscriber %d got %+v, want [hello]", i+1, got)
		}
	}
}

func TestBrokerSampleEventsCountProgress(t *testing.T) {
	b := engine.NewLogBroker()
	ch, unsub := b.Subscribe("s1")
	defer unsub()

	b.PublishSample("s1", model.SampleRecord{Index: "1", Status: model.SampleSucceeded})
	b.Publish("s1", 0, "row")
	b.PublishSample("s1", model.SampleRecord{Index: "2", Status: model.SampleFailed})
	b.Close("s1")

	got := drain(ch)
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].Kind != engine.EventSample || got[0].Done != 1 || got[0].Sample.Index != "1" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Kind != engine.EventLog || got[1].Done != 1 {
		t.Errorf("log event = %+v, want Done 1", got[1])
	}
	if got[2].Done != 2 || got[2].Sample.Status != model.SampleFailed {
		t.Errorf("last event = %+v", got[2])
	}
}

func TestBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewLogBroker()
	b.Publish("s1", 0, "early")
	b.Close("s1")

	ch, unsub := b.Subscribe("s1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewLogBroker()
	ch, unsub := b.Subscribe("s1")
	unsub()

	b.Publish("s1", 0, "after unsub")
	b.Close("s1")

	select {
	case ev, ok := <-ch:
		if ok {
			t.Errorf("got unexpected event %+v after unsubscribe", ev)
		}
	default:
	}
}

func TestBrokerPublishAfterCloseIsNoop(t *testing.T) {
	b := engine.NewLogBroker()
	b.Close("s1")
	// Should not panic.
	b.Publish("s1", 0, "line")
	b.PublishSample("s1", model.SampleRecord{})
}
