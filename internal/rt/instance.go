package rt

import (
	"context"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Instance is a module instance (C9): the Module's metadata paired with the
// concrete Memory/Table/Global objects instantiation allocated for it.
//
// Instance deliberately holds no reference to the engine or linker package
// that built it. Both the interpreter (C6) and the linker (C11) need to
// invoke a function by index against an Instance, and the engine needs to
// read an Instance's Memories/Tables/Globals — an import cycle if either
// side imported the other. Call is set once, after the engine's
// per-instance ModuleEngine exists, and is what Instance.Invoke and the
// interpreter's own OpcodeCall handling both use, so internal/rt never
// needs to import internal/engine.
type Instance struct {
	Module *wasm.Module

	Memories []*Memory
	Tables   []*Table
	Globals  []*Global

	// Name is the name this instance was instantiated under (empty if it
	// was instantiated anonymously).
	Name string

	// Call invokes a function of this instance by combined-index-space
	// index. Set by the linker (C11) once the instance's ModuleEngine has
	// been constructed.
	Call func(ctx context.Context, funcIdx uint32, params []uint64) ([]uint64, error)

	// ImportedFuncs holds, for every combined-index-space slot whose
	// Function.Kind is FunctionKindImport, a closure delegating to the
	// imported instance's own Call. Populated by the linker during
	// instantiation's import-resolution step.
	ImportedFuncs []func(ctx context.Context, params []uint64) ([]uint64, error)

	// PublicModule is the api.Module view of this instance, handed to Go
	// host functions (C12) so they can reach back into the calling
	// module's exports/memory. Set by the linker once construction
	// completes (it wraps Call, which is itself set slightly earlier).
	PublicModule api.Module

	// DroppedElements and DroppedData record, per element/data segment,
	// whether it has been dropped (elem.drop/data.drop, §4.9 bulk-memory
	// ops). The linker creates them empty; no lowered instruction sets them.
	DroppedElements map[wasm.Index]bool
	DroppedData     map[wasm.Index]bool

	// Closer, if set, is invoked by the public Module view's
	// CloseWithExitCode/Close to release resources an embedder attached
	// to this instance (e.g. a WasiContext's open file descriptors).
	// Instance itself never populates it; Runtime.InstantiateModule sets it
	// after instantiation when a WASI context is configured.
	Closer func(ctx context.Context, exitCode uint32) error
}

// Invoke is the ctx-first convenience wrapper other packages (the linker,
// WASI, host function trampolines) call instead of touching the Call field
// directly.
func (in *Instance) Invoke(ctx context.Context, funcIdx uint32, params ...uint64) ([]uint64, error) {
	return in.Call(ctx, funcIdx, params)
}

// Memory0 returns the instance's sole memory, or nil if it declares none
// (§3 invariant: at most one memory).
func (in *Instance) Memory0() *Memory {
	if len(in.Memories) == 0 {
		return nil
	}
	return in.Memories[0]
}
