package lifecycle

import (
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Registry collects io.Closers during bootstrap and shuts them down in
// reverse registration order, so resources close before the things they
// depend on were opened after.
type Registry struct {
	mu      sync.Mutex
	closers []io.Closer
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a closer to the registry. Registering after Close is a no-op.
func (r *Registry) Register(c io.Closer) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closers = append(r.closers, c)
}

// RegisterFunc adapts a plain shutdown function into the registry.
func (r *Registry) RegisterFunc(fn func() error) {
	if fn == nil {
		return
	}
	r.Register(closerFunc(fn))
}

// Close shuts down every registered closer in reverse order and combines
// their errors. Subsequent calls return nil.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
