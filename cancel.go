package simdplan

import "sync/atomic"

// CancelToken is the cooperative cancellation service spec.md §9 calls for
// in place of a process-global atomic flag: a small service with arm,
// is_set and clear, installed once per caller and polled by the search on
// every heap pop (spec.md §5). Re-entrant Arm/Clear calls are safe: the
// flag is a single atomic word, not a counter, so repeated arms or clears
// collapse to the same state.
type CancelToken struct {
	armed atomic.Bool
}

// NewCancelToken returns a token in the cleared state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Arm requests cancellation. Safe to call from any goroutine, including an
// external interrupt handler; safe to call more than once.
func (c *CancelToken) Arm() {
	c.armed.Store(true)
}

// IsSet reports whether cancellation has been requested.
func (c *CancelToken) IsSet() bool {
	return c.armed.Load()
}

// Clear resets the token to the cleared state. Safe to call more than once,
// or on an already-clear token.
func (c *CancelToken) Clear() {
	c.armed.Store(false)
}
