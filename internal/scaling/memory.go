package scaling

import (
	"context"
	"io"
	"sync"
)

// MemoryPubSub is an in-process bridge used in tests and single-instance
// deployments without Redis. Publish fans out synchronously to every
// subscriber.
type MemoryPubSub struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

// NewMemoryPubSub creates an empty in-process bridge.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{handlers: make(map[int]Handler)}
}

func (p *MemoryPubSub) Publish(_ context.Context, env Envelope) error {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (p *MemoryPubSub) Subscribe(_ context.Context, handler Handler) (io.Closer, error) {
	p.mu.Lock()
	id := p.next
	p.next++
	p.handlers[id] = handler
	p.mu.Unlock()

	return closerFunc(func() error {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
		return nil
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
