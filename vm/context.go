package vm

import "gila/compiler"

// NativeFn is the native extension ABI spec.md §6 describes: a
// host-supplied callable receiving the shared execution context, the
// process context, and the evaluated argument values, in order.
// Native functions must not retain shared/proc beyond the call.
type NativeFn func(shared *SharedContext, proc *ProcessContext, args []compiler.Object) (compiler.Object, error)

// ProcessContext holds one VM run's native function table: the
// process-wide mutable state spec.md §5/§9 calls out as an explicit
// parameter rather than an ambient singleton. Native modules (socket,
// time — out of scope per spec.md §1) register themselves here before
// a program runs.
type ProcessContext struct {
	Natives map[string]NativeFn
}

// NewProcessContext creates an empty native function table.
func NewProcessContext() *ProcessContext {
	return &ProcessContext{Natives: make(map[string]NativeFn)}
}

// Register binds name to fn, so that a CALL on an Atom-valued register
// spelling name dispatches to it (see VM's execCall and DESIGN.md's
// native-dispatch resolution).
func (p *ProcessContext) Register(name string, fn NativeFn) {
	p.Natives[name] = fn
}

// SharedContext is the process-wide object spec.md §5 reserves for
// future multi-VM use. This core gives it no fields of its own, only a
// definite, already-threaded place for multi-VM state to grow into.
type SharedContext struct{}
