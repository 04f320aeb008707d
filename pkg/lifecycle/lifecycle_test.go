package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu      sync.Mutex
	started int
	stopped int
	err     error
}

func (r *fakeRunner) Start(ctx context.Context) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.started++
	return HandleFunc(func() {
		r.mu.Lock()
		r.stopped++
		r.mu.Unlock()
	}), nil
}

func (r *fakeRunner) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.stopped
}

func next(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no value received")
		return false
	}
}

func expectNothing(t *testing.T, ch <-chan bool) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestController_EnableDisable(t *testing.T) {
	r := &fakeRunner{}
	c := NewController(r)
	states, stop := c.ObserveEnabled()
	defer stop()

	if next(t, states) {
		t.Fatal("initial state should be disabled")
	}

	if err := c.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !next(t, states) {
		t.Fatal("expected enabled")
	}

	// Enabling again restarts without a second emission.
	if err := c.Enable(context.Background()); err != nil {
		t.Fatalf("second Enable: %v", err)
	}
	expectNothing(t, states)
	if started, stopped := r.counts(); started != 2 || stopped != 1 {
		t.Errorf("started=%d stopped=%d, want 2 and 1", started, stopped)
	}

	c.Disable()
	if next(t, states) {
		t.Fatal("expected disabled")
	}
	if _, stopped := r.counts(); stopped != 2 {
		t.Errorf("stopped=%d, want 2", stopped)
	}

	c.Disable()
	expectNothing(t, states)
	if _, stopped := r.counts(); stopped != 2 {
		t.Errorf("Disable while disabled stopped something: %d", stopped)
	}
}

func TestController_EnableFailure(t *testing.T) {
	errBoom := errors.New("boom")
	r := &fakeRunner{err: errBoom}
	c := NewController(r)

	if err := c.Enable(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("Enable error = %v, want %v", err, errBoom)
	}
	if c.Enabled() {
		t.Error("controller should stay disabled")
	}
}

func TestController_ObserveReplaysCurrent(t *testing.T) {
	c := NewController(&fakeRunner{})
	if err := c.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	states, stop := c.ObserveEnabled()
	defer stop()
	if !next(t, states) {
		t.Fatal("late subscriber should see enabled")
	}
}
