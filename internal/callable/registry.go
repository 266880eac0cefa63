package callable

import "sync"

// Registry is an in-process Resolver: callables registered directly by the
// embedding Go program (spec.md §4.4's "in-process" binding mode).
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Callable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Callable{}}
}

// Register binds target to fn, overwriting any previous binding.
func (r *Registry) Register(target string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[target] = fn
}

// RegisterFunc is a convenience wrapper for CallableFunc values.
func (r *Registry) RegisterFunc(target string, fn CallableFunc) {
	r.Register(target, fn)
}

func (r *Registry) Resolve(target string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.funcs[target]
	return c, ok
}

// Chain tries each Resolver in order, returning the first hit. Used to
// combine an in-process Registry with a SubprocessBinder or HTTPBinder so a
// workflow can mix callable binding modes.
type Chain []Resolver

func (c Chain) Resolve(target string) (Callable, bool) {
	for _, r := range c {
		if cal, ok := r.Resolve(target); ok {
			return cal, true
		}
	}
	return nil, false
}
