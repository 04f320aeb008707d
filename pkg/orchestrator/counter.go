package orchestrator

import (
	"sync"

	"github.com/Galad/musicmirror/pkg/plog"
)

// counter tracks events published but not yet resolved. onChange, if set,
// is called with the new count while the counter is locked.
type counter struct {
	mu       sync.Mutex
	n        int64
	onChange func(n int64)
}

func (c *counter) add(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.n + delta
	if n < 0 {
		// Each event is added once and resolved once.
		plog.Error("In-flight counter went negative", "count", n, "delta", delta)
		n = 0
	}
	c.set(n)
}

func (c *counter) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(0)
}

func (c *counter) set(n int64) {
	c.n = n
	if c.onChange != nil {
		c.onChange(n)
	}
}

func (c *counter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
