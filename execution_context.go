package asyncgrpc

import "sync"

// ExecutionContext is a user-defined state object shared by every
// handler of a server. Handlers access it through With, which holds the
// context lock for the duration of the callback, or through Value for
// unsynchronized access when the caller provides its own discipline.
type ExecutionContext struct {
	mu    sync.Mutex
	value interface{}
}

// NewExecutionContext wraps a user state object.
func NewExecutionContext(value interface{}) *ExecutionContext {
	return &ExecutionContext{value: value}
}

// With invokes fn with the shared state while holding the context lock.
func (c *ExecutionContext) With(fn func(value interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.value)
}

// Value returns the shared state without synchronization.
func (c *ExecutionContext) Value() interface{} {
	return c.value
}
