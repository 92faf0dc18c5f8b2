// Package engine defines the two-level Engine/ModuleEngine contract (C6)
// that turns a decoded, lowered module into something callable, and the
// CompiledFunction artifact the lowerer's output is wrapped in so it can be
// kept alive and re-executed.
//
// The specification describes engines in native-linking vocabulary: init,
// set_symbol_addr, get_internal_function_ptr, get_external_function_ptr,
// get_global_value, set_global_addr. That vocabulary assumes a backend
// that emits real machine code and resolves call targets as raw pointers
// into it. Neither implementation this package ships does that — the
// interpreter walks the ssa.Builder IR directly, and the "compiled"
// backend persists/reloads the module's Wasm bytes plus metadata rather
// than IR or native object code, so reloaded functions are lowered again
// (see internal/engine/compiled and internal/cwasm). So instead of a
// pointer-resolution API, ModuleEngine exposes the one operation every
// caller actually needs: invoke a function by index and get back either
// results or a trap. Internally, "resolving a function pointer" becomes
// "looking up a *CompiledFunction by index", which both engines implement
// the same way a native linker would resolve a symbol — by index into a
// table built at instantiation time, not by name lookup per call.
package engine

import (
	"context"

	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/ssa"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// CompiledFunction is one function body's lowered IR, retained for the
// lifetime of the owning Engine rather than discarded after a single
// execution. The teacher's own builder is documented as reusable ("Init
// must be called to reuse this builder for the next function"), which
// assumes a pipeline that hands each function to a one-shot native codegen
// pass and moves on. This engine instead needs every function's IR
// simultaneously walkable for as long as the module is loaded, so Engine
// allocates one ssa.Builder per function body at compile time and never
// calls Init on it again — the cost of N live builders instead of one
// reused one is the price of being a tree-walking interpreter instead of a
// codegen backend.
type CompiledFunction struct {
	Builder   ssa.Builder
	Signature *ssa.Signature
	Index     wasm.Index
	DebugName string
}

// Engine compiles a Module's function bodies once, independent of any
// particular instantiation (module-level state: signatures, compiled IR).
type Engine interface {
	// CompileModule lowers every local function body in m to SSA IR and
	// returns a Code ready to be instantiated any number of times.
	CompileModule(ctx context.Context, m *wasm.Module, src []byte) (Code, error)
}

// Code is the module-level compiled artifact Engine.CompileModule returns:
// shared, read-only state every instantiation of the same module reuses.
type Code interface {
	// NewModuleEngine binds Code's compiled functions to a concrete
	// instance's Memory/Table/Global objects, returning the per-instance
	// engine the linker (C11) installs as inst.Call.
	NewModuleEngine(inst *rt.Instance) ModuleEngine
}

// ModuleEngine is the per-instance half of the engine split: it is what
// actually executes a call, since the same compiled function body behaves
// differently against different instances' memories/tables/globals.
type ModuleEngine interface {
	// Call invokes the function at funcIdx in the combined index space
	// with params already converted to raw uint64 slots (§4.10 calling
	// convention), returning raw result slots or a *Trap.
	Call(ctx context.Context, funcIdx wasm.Index, params []uint64) ([]uint64, error)
}
