package worker

import (
	"context"
	"sync"
)

// Cancels tracks the cancel functions of running jobs so a client can stop them.
type Cancels struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewCancels returns an empty registry.
func NewCancels() *Cancels {
	return &Cancels{running: make(map[string]context.CancelFunc)}
}

func (c *Cancels) track(jobID string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running[jobID] = cancel
}

func (c *Cancels) release(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.running, jobID)
}

// Cancel stops a running job. It reports whether the job was running.
func (c *Cancels) Cancel(jobID string) bool {
	c.mu.Lock()
	cancel, ok := c.running[jobID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
