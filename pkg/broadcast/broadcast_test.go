package broadcast

import (
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}

func expectEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("expected no value, got %v", v)
		}
	default:
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := New[int]()
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(1)
	if receive(t, first) != 1 || receive(t, second) != 1 {
		t.Error("expected both subscribers to receive the value")
	}

	b.Unsubscribe(second)
	if _, ok := <-second; ok {
		t.Error("expected unsubscribed channel to be closed")
	}
	if b.Count() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.Count())
	}
}

func TestBroadcaster_SlowSubscriberMissesNothing(t *testing.T) {
	b := New[int]()
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer b.Unsubscribe(slow)
	defer b.Unsubscribe(fast)

	const n = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range n {
			if got := <-fast; got != i {
				t.Errorf("fast subscriber got %d, want %d", got, i)
				return
			}
		}
	}()
	for i := range n {
		b.Publish(i)
	}
	<-done

	for i := range n {
		if got := receive(t, slow); got != i {
			t.Fatalf("slow subscriber got %d, want %d", got, i)
		}
	}
	expectEmpty(t, slow)
}

func TestBroadcaster_CloseDeliversQueuedValues(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	b.Publish(1)
	b.Publish(2)
	b.Close()

	if receive(t, ch) != 1 || receive(t, ch) != 2 {
		t.Fatal("expected the values published before Close")
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel closed once drained")
	}
}

func TestBroadcaster_UnsubscribeDropsQueuedValues(t *testing.T) {
	b := New[int]()
	ch := b.Subscribe()
	for i := range 10 {
		b.Publish(i)
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)

	received := 0
	for range ch {
		received++
	}
	if received > 1 {
		t.Errorf("received %d values after Unsubscribe, want at most the one in hand", received)
	}
	if b.Count() != 0 {
		t.Errorf("expected no subscribers, got %d", b.Count())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := New[string]()
	ch := b.Subscribe()
	b.Close()
	b.Close()
	b.Publish("ignored")
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Close")
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Error("expected subscriptions after Close to be closed")
	}
}

func TestState_ReplaysCurrentValue(t *testing.T) {
	s := NewState(false)
	s.Set(true)

	ch := s.Subscribe()
	if !receive(t, ch) {
		t.Error("expected the current value to be replayed")
	}
	expectEmpty(t, ch)
}

func TestState_EmitsOnlyOnChange(t *testing.T) {
	s := NewState(false)
	ch := s.Subscribe()
	receive(t, ch)

	if s.Set(false) {
		t.Error("expected Set of the current value to report no change")
	}
	expectEmpty(t, ch)

	if !s.Set(true) {
		t.Error("expected Set of a new value to report a change")
	}
	if !receive(t, ch) {
		t.Error("expected true")
	}
	s.Set(true)
	expectEmpty(t, ch)
}

func TestState_SlowSubscriberNeverSeesDuplicates(t *testing.T) {
	s := NewState(false)
	ch := s.Subscribe()
	receive(t, ch)

	// true then false before the reader wakes up: the pair cancels out.
	s.Set(true)
	s.Set(false)
	expectEmpty(t, ch)

	// An odd number of flips leaves the latest value queued.
	s.Set(true)
	s.Set(false)
	s.Set(true)
	if !receive(t, ch) {
		t.Error("expected the latest value true")
	}
	expectEmpty(t, ch)
}

func TestState_UnreadReplayIsReplaced(t *testing.T) {
	s := NewState(0)
	ch := s.Subscribe()
	s.Set(1)
	s.Set(2)
	if got := receive(t, ch); got != 2 {
		t.Errorf("expected latest value 2, got %d", got)
	}
}

func TestState_Update(t *testing.T) {
	s := NewState(0)
	s.Update(func(v int) int { return v + 3 })
	if s.Get() != 3 {
		t.Errorf("expected 3, got %d", s.Get())
	}
	if s.Update(func(v int) int { return v }) {
		t.Error("expected identity update to report no change")
	}
}
