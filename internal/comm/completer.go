package comm

import (
	"sync"
	"time"
)

// Completer tracks one batch of poll operations and calls fn once every
// tracked operation is finished and the batch is sealed.
type Completer struct {
	Name    string
	started time.Time
	fn      func(*Completer)

	mu      sync.Mutex
	pending int
	failed  int
	sealed  bool
	fired   bool
}

func NewCompleter(name string, fn func(*Completer)) *Completer {
	return &Completer{Name: name, started: time.Now(), fn: fn}
}

// Track adds op to the batch.
func (c *Completer) Track(op *Operation) {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
	op.OnDone(c.opDone)
}

// Seal marks the batch complete; no more operations will be tracked.
func (c *Completer) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
	c.check()
}

func (c *Completer) opDone(op *Operation) {
	c.mu.Lock()
	c.pending--
	if op.State() != StateSucceeded {
		c.failed++
	}
	c.mu.Unlock()
	c.check()
}

func (c *Completer) check() {
	c.mu.Lock()
	if !c.sealed || c.pending > 0 || c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.mu.Unlock()

	if c.fn != nil {
		c.fn(c)
	}
}

// Pending returns the number of unfinished operations.
func (c *Completer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Failed returns the number of operations that did not succeed.
func (c *Completer) Failed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Elapsed returns the time since the batch was created.
func (c *Completer) Elapsed() time.Duration {
	return time.Since(c.started)
}
