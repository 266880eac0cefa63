package callable

import "context"

// ModuleBinder is the CLI binding mode from spec.md §6: `runner --functions
// <module>` names one executable that answers every call target in a
// workflow. Each invocation spawns `<module> <target>` and speaks the same
// JSON-over-stdio protocol as SubprocessBinder; the module itself is
// responsible for dispatching target to the right function.
type ModuleBinder struct {
	module string
}

// NewModuleBinder builds a binder around a single executable path.
func NewModuleBinder(module string) *ModuleBinder {
	return &ModuleBinder{module: module}
}

// Resolve always succeeds: dispatch is delegated to the module process,
// which reports MissingCallable-equivalent failures itself via a non-empty
// subprocessResponse.Error.
func (b *ModuleBinder) Resolve(target string) (Callable, bool) {
	argv := []string{b.module, target}
	return CallableFunc(func(ctx context.Context, inputs, config map[string]interface{}) (map[string]interface{}, error) {
		return invokeSubprocess(ctx, argv, inputs, config)
	}), true
}
