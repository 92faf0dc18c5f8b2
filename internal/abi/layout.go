// Package abi fixes the calling convention and ExecutionContext memory
// layout shared by the function lowerer (C4), the interpreter and compiled
// engines (C6), and the resource cluster (C8/C9/C10): every lowered
// function's first two SSA parameters are a pointer to its
// ExecutionContext and a pointer to its ModuleContext, exactly as spec.md
// §4.10 describes the native calling convention
// "(callee_context, *const raw_value, *mut raw_value) -> void" generalized
// to a typed, per-signature Go-idiomatic call.
package abi

// ExecutionContext field offsets, in bytes, within the flat struct an
// engine hands to every Wasm-to-Wasm and host call (§4.10). Kept here,
// rather than as Go struct field access, because the SSA lowerer (C4)
// must bake these offsets into Load/Store instructions before the
// concrete Go type behind the pointer is known to that package.
const (
	// ExecCtxMemoryDataOffset points to the current linear memory's first
	// byte, or zero if the module has none.
	ExecCtxMemoryDataOffset = 0
	// ExecCtxMemoryLenOffset holds the current linear memory size in bytes.
	ExecCtxMemoryLenOffset = 8
	// ExecCtxGlobalsOffset points to a flat []uint64 holding the module's
	// global values, one 8-byte slot per global regardless of its value
	// type (§4.9 "globals are 64-bit aligned storage slots").
	ExecCtxGlobalsOffset = 16
	// ExecCtxTrapSlotOffset is where a trap handler stashes the TrapReason
	// before unwinding, so the recover() at the call boundary (C10) can
	// read why execution stopped.
	ExecCtxTrapSlotOffset = 24
	// ExecCtxStackBoundOffset is the lowest stack pointer value this call
	// may use before the engine must raise TrapReasonExhaustion (§7).
	ExecCtxStackBoundOffset = 32

	// ExecutionContextSize is the total size, in bytes, of the fixed part
	// of ExecutionContext; C9/C10 allocate at least this much per call.
	ExecutionContextSize = 40
)

// BuiltinFuncRef values are out-of-band FuncRef targets for OpcodeCall that
// don't address a real Wasm function: they request a host-implemented
// builtin the engine must special-case (memory.grow and memory.size need
// cooperation with the Go runtime's allocator, so — like wazero's own
// goCall builtins — they are never compiled inline).
type BuiltinFuncRef uint32

const (
	BuiltinMemoryGrow BuiltinFuncRef = iota
	BuiltinMemorySize
	BuiltinTableGrow
	BuiltinTableSize
	// BuiltinResolveIndirect takes (execCtx, moduleCtx, tableIdx, elemIdx,
	// expectedSignatureID) and returns the callee's native entry point,
	// trapping per §7 (TableOutOfBounds, UninitializedTableElement,
	// IndirectCallTypeMismatch) without the lowerer needing to know how
	// tables are represented.
	BuiltinResolveIndirect
)

// builtinFuncRefBase is subtracted from math.MaxUint32 so builtin refs
// never collide with a real function index, which fits in 32 bits per the
// binary format's use of uint32 indices (§4.1).
const builtinFuncRefBase = ^uint32(0) - 15

// Encode returns the FuncRef-space encoding of a builtin.
func (b BuiltinFuncRef) Encode() uint32 { return builtinFuncRefBase + uint32(b) }

// DecodeBuiltin reports whether ref names a builtin, and which one.
func DecodeBuiltin(ref uint32) (BuiltinFuncRef, bool) {
	if ref < builtinFuncRefBase {
		return 0, false
	}
	return BuiltinFuncRef(ref - builtinFuncRefBase), true
}
