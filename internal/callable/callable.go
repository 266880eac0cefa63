// Package callable resolves a node's `call` target to an invocable
// function and dispatches to it, either in-process or as a subprocess
// speaking JSON over stdio.
package callable

import "context"

// Callable is the (module, name) -> func(inputs, config) -> outputs contract
// from spec.md §4.4. Every node execution resolves to exactly one Callable.
type Callable interface {
	Invoke(ctx context.Context, inputs map[string]interface{}, config map[string]interface{}) (map[string]interface{}, error)
}

// CallableFunc adapts a plain function to the Callable interface.
type CallableFunc func(ctx context.Context, inputs, config map[string]interface{}) (map[string]interface{}, error)

func (f CallableFunc) Invoke(ctx context.Context, inputs, config map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, inputs, config)
}

// Resolver looks up a Callable by the target named in a node's `call`
// statement (a single identifier).
type Resolver interface {
	Resolve(target string) (Callable, bool)
}

// NotFoundError reports a `call` target with no registered implementation.
type NotFoundError struct {
	Target string
}

func (e *NotFoundError) Error() string {
	return "no callable registered for target " + e.Target
}
