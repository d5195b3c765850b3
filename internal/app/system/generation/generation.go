// Package generation tags in-flight requests so that a response to a
// superseded request can be recognised and dropped.
//
// A caller takes a ticket with Begin before issuing a fetch and checks it
// with Current before applying the result. Only the newest ticket for a
// key is current.
package generation

import "sync"

// Counter tracks the latest generation per key. The zero value is ready
// to use.
type Counter struct {
	mu   sync.Mutex
	gens map[string]uint64
}

// Begin starts a new generation for key and returns its ticket.
func (c *Counter) Begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens == nil {
		c.gens = make(map[string]uint64)
	}
	c.gens[key]++
	return c.gens[key]
}

// Current reports whether ticket is still the newest generation for key.
func (c *Counter) Current(key string, ticket uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key] == ticket
}

// Invalidate supersedes every outstanding ticket for key.
func (c *Counter) Invalidate(key string) {
	c.Begin(key)
}
