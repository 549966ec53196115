package events

import (
	"sync"
	"testing"
	"time"
)

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Publish(Event{Source: SourceMotion, Kind: KindStarted})
	b.Emit(SourceSwitch, KindChanged, nil)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestPublishSingleSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(8)
	defer b.Unsubscribe(ch)

	b.Emit(SourceSwitch, KindChanged, map[string]any{"switch": "red", "state": true})

	select {
	case got := <-ch:
		if got.Source != SourceSwitch || got.Kind != KindChanged {
			t.Errorf("got event %+v", got)
		}
		if got.Data["switch"] != "red" {
			t.Errorf("switch = %v, want red", got.Data["switch"])
		}
		if got.Timestamp.IsZero() {
			t.Error("Timestamp should be filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishKeepsTimestamp(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	b.Publish(Event{Timestamp: ts, Source: SourceMotion, Kind: KindStarted})

	if got := <-ch; !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	b := New()
	const n = 4
	channels := make([]<-chan Event, n)
	for i := range n {
		channels[i] = b.Subscribe(8)
	}
	defer func() {
		for _, ch := range channels {
			b.Unsubscribe(ch)
		}
	}()

	b.Emit(SourceMotion, KindStarted, nil)

	for i, ch := range channels {
		select {
		case got := <-ch:
			if got.Kind != KindStarted {
				t.Errorf("subscriber %d: got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestDropOnFull(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	defer b.Unsubscribe(ch)

	b.Emit(SourceTelemetry, KindPublished, map[string]any{"n": 1})
	b.Emit(SourceTelemetry, KindPublished, map[string]any{"n": 2}) // dropped

	got := <-ch
	if got.Data["n"] != 1 {
		t.Errorf("got n=%v, want 1", got.Data["n"])
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected second event %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)
	b.Unsubscribe(ch)
	b.Unsubscribe(ch) // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch := b.Subscribe(4)
			b.Unsubscribe(ch)
		}()
		go func() {
			defer wg.Done()
			b.Emit(SourceMotion, KindStopped, nil)
		}()
	}
	wg.Wait()
}
