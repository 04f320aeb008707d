// Package lifecycle switches mirroring on and off as a whole.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/Galad/musicmirror/pkg/broadcast"
	"github.com/Galad/musicmirror/pkg/plog"
)

// Handle stops what a Runner started. Stop blocks until it has stopped.
type Handle interface {
	Stop()
}

// HandleFunc adapts a func to Handle.
type HandleFunc func()

func (f HandleFunc) Stop() { f() }

// Runner starts the mirroring work.
type Runner interface {
	Start(ctx context.Context) (Handle, error)
}

// Controller owns at most one running Handle.
type Controller struct {
	runner  Runner
	mu      sync.Mutex
	handle  Handle
	enabled *broadcast.State[bool]
}

func NewController(r Runner) *Controller {
	return &Controller{runner: r, enabled: broadcast.NewState(false)}
}

// Enable stops any current run and starts a new one. If starting fails the
// controller ends up disabled.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		c.handle.Stop()
		c.handle = nil
	}
	h, err := c.runner.Start(ctx)
	if err != nil {
		c.enabled.Set(false)
		return fmt.Errorf("starting synchronization: %w", err)
	}
	c.handle = h
	if c.enabled.Set(true) {
		plog.Info("Synchronization enabled")
	}
	return nil
}

// Disable stops the current run, if any.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return
	}
	c.handle.Stop()
	c.handle = nil
	if c.enabled.Set(false) {
		plog.Info("Synchronization disabled")
	}
}

// Enabled reports the current state.
func (c *Controller) Enabled() bool { return c.enabled.Get() }

// ObserveEnabled delivers the current state, then every change. Call the
// returned func to stop observing.
func (c *Controller) ObserveEnabled() (<-chan bool, func()) {
	ch := c.enabled.Subscribe()
	return ch, func() { c.enabled.Unsubscribe(ch) }
}
