package interpreter

import (
	"github.com/wasmine-go/wasmine/internal/abi"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/ssa"
)

// resolveAddr turns a tagged pointer Value plus a static memarg offset into
// a concrete byte offset against either linear memory or the globals
// array, per values.go's addressing model. ptr must carry a tag — every
// Load/Store the lowerer emits reaches its address through
// execCtx-derived arithmetic (lower.go's effectiveAddr/globalAddr), so an
// untagged ptr here means the IR wasn't produced by that lowerer.
func (ex *execution) resolveAddr(fr *frame, ptr ssa.Value, offset uint32) addrTag {
	t := fr.tag(ptr)
	if t.kind == addrNone {
		panic("BUG: interpreter Load/Store against an untagged pointer")
	}
	off := t.offset + uint64(offset)
	if t.kind == addrMemory && off>>32 != 0 {
		// Beyond the 32-bit address space, so past any memory's end.
		trap(ssa.TrapReasonMemoryOutOfBounds)
	}
	return addrTag{kind: t.kind, offset: off}
}

func (ex *execution) evalLoad(fr *frame, result ssa.Value, ptr ssa.Value, offset uint32, typ ssa.Type, execCtxVal ssa.Value) {
	// Recognize the two fixed execCtx-relative loads lower.go emits to
	// fetch the memory/globals base pointers: these produce a tagged
	// "address" rather than a real loaded value.
	if ptr.ID() == execCtxVal.ID() {
		switch offset {
		case abi.ExecCtxMemoryDataOffset:
			fr.set(result, 0)
			fr.setTag(result, addrTag{kind: addrMemory})
			return
		case abi.ExecCtxGlobalsOffset:
			fr.set(result, 0)
			fr.setTag(result, addrTag{kind: addrGlobals})
			return
		}
	}

	addr := ex.resolveAddr(fr, ptr, offset)
	switch addr.kind {
	case addrMemory:
		fr.set(result, ex.loadMemory(addr.offset, byteSize(typ)))
	case addrGlobals:
		fr.set(result, ex.loadGlobal(addr.offset))
	default:
		panic("BUG: load through a pointer with no address kind")
	}
}

func (ex *execution) evalExtLoad(fr *frame, instr *ssa.Instruction, ptr ssa.Value, offset uint32, execCtxVal ssa.Value) {
	result := instr.Return()
	from, to, signed := extLoadWidths(instr.Opcode())
	if result.Type() == ssa.TypeI64 {
		to = 64
	}
	addr := ex.resolveAddr(fr, ptr, offset)
	var raw uint64
	switch addr.kind {
	case addrMemory:
		raw = ex.loadMemory(addr.offset, from/8)
	case addrGlobals:
		raw = ex.loadGlobal(addr.offset)
	default:
		panic("BUG: load through a pointer with no address kind")
	}
	fr.set(result, extend(raw, from, to, signed))
}

func (ex *execution) evalStore(fr *frame, val, ptr ssa.Value, offset uint32, storeSizeInBits byte, execCtxVal ssa.Value) {
	addr := ex.resolveAddr(fr, ptr, offset)
	v := fr.get(val)
	switch addr.kind {
	case addrMemory:
		ex.storeMemory(addr.offset, storeSizeInBits/8, v)
	case addrGlobals:
		ex.storeGlobal(addr.offset, v)
	default:
		panic("BUG: store through a pointer with no address kind")
	}
}

func (ex *execution) loadMemory(byteOffset uint64, n byte) uint64 {
	mem := ex.me.inst.Memory0()
	if mem == nil {
		trap(ssa.TrapReasonMemoryOutOfBounds)
	}
	b, ok := mem.Read(uint32(byteOffset), uint32(n))
	if !ok {
		trap(ssa.TrapReasonMemoryOutOfBounds)
	}
	var v uint64
	for i := byte(0); i < n; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func (ex *execution) storeMemory(byteOffset uint64, n byte, v uint64) {
	mem := ex.me.inst.Memory0()
	if mem == nil {
		trap(ssa.TrapReasonMemoryOutOfBounds)
	}
	b := make([]byte, n)
	for i := byte(0); i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
	if !mem.Write(uint32(byteOffset), b) {
		trap(ssa.TrapReasonMemoryOutOfBounds)
	}
}

func (ex *execution) loadGlobal(byteOffset uint64) uint64 {
	idx := byteOffset / 8
	globals := ex.me.inst.Globals
	if idx >= uint64(len(globals)) {
		panic("BUG: global index out of range")
	}
	return globals[idx].Get()
}

func (ex *execution) storeGlobal(byteOffset uint64, v uint64) {
	idx := byteOffset / 8
	globals := ex.me.inst.Globals
	if idx >= uint64(len(globals)) {
		panic("BUG: global index out of range")
	}
	globals[idx].Set(v)
}

func byteSize(t ssa.Type) byte {
	switch t {
	case ssa.TypeI32, ssa.TypeF32:
		return 4
	case ssa.TypeI64, ssa.TypeF64:
		return 8
	default:
		panic("BUG: unsupported load/store type")
	}
}

func extLoadWidths(op ssa.Opcode) (from, to byte, signed bool) {
	switch op {
	case ssa.OpcodeUload8:
		return 8, 32, false
	case ssa.OpcodeSload8:
		return 8, 32, true
	case ssa.OpcodeUload16:
		return 16, 32, false
	case ssa.OpcodeSload16:
		return 16, 32, true
	case ssa.OpcodeUload32:
		return 32, 64, false
	case ssa.OpcodeSload32:
		return 32, 64, true
	default:
		panic("BUG: not an extending load opcode")
	}
}

// evalAddrAwareAdd implements Iadd, propagating an address tag from
// whichever operand carries one (lower.go's effectiveAddr/globalAddr
// always add a plain integer offset to an execCtx-derived base, never two
// tagged values together).
func (ex *execution) evalAddrAwareAdd(fr *frame, result, v1, v2 ssa.Value, resTyp ssa.Type) {
	t1, t2 := fr.tag(v1), fr.tag(v2)
	sum := mask(resTyp, fr.get(v1)+fr.get(v2))
	fr.set(result, sum)
	switch {
	case t1.kind != addrNone && t2.kind == addrNone:
		fr.setTag(result, addrTag{kind: t1.kind, offset: t1.offset + fr.get(v2)})
	case t2.kind != addrNone && t1.kind == addrNone:
		fr.setTag(result, addrTag{kind: t2.kind, offset: t2.offset + fr.get(v1)})
	default:
		fr.setTag(result, addrTag{})
	}
}

// evalCall handles both real Wasm-to-Wasm calls and the out-of-band
// builtin calls the lowerer emits for memory.grow/size, table.grow/size,
// and call_indirect's callee resolution (internal/abi.BuiltinFuncRef).
func (ex *execution) evalCall(fr *frame, instr *ssa.Instruction) {
	ref, _, args := instr.CallData()

	if b, ok := abi.DecodeBuiltin(uint32(ref)); ok {
		ex.evalBuiltin(fr, instr, b, args)
		return
	}

	argVals := make([]uint64, len(args)-2)
	for i, a := range args[2:] {
		argVals[i] = fr.get(a)
	}
	results, err := ex.me.callDepth(ex.ctx, uint32(ref), argVals, ex.depth+1)
	if err != nil {
		// callDepth already converted any recovered trap into this error
		// value (its dynamic type is *engine.Trap); re-panicking it lets
		// this call's own callDepth recover catch it intact instead of
		// having to reconstruct a reason here.
		panic(err)
	}
	ex.storeResults(fr, instr, results)
}

// evalCallIndirect invokes the callee already resolved and type-checked
// by a preceding BuiltinResolveIndirect call — funcPtr is a plain function
// index by the time it reaches here, so no further validation happens.
func (ex *execution) evalCallIndirect(fr *frame, instr *ssa.Instruction) {
	funcPtr, _, args := instr.CallIndirectData()
	funcIdx := uint32(fr.get(funcPtr))

	argVals := make([]uint64, len(args)-2)
	for i, a := range args[2:] {
		argVals[i] = fr.get(a)
	}
	results, err := ex.me.callDepth(ex.ctx, funcIdx, argVals, ex.depth+1)
	if err != nil {
		panic(err)
	}
	ex.storeResults(fr, instr, results)
}

func (ex *execution) storeResults(fr *frame, instr *ssa.Instruction, results []uint64) {
	first, rest := instr.Returns()
	if len(results) == 0 {
		return
	}
	fr.set(first, results[0])
	for i, v := range rest {
		fr.set(v, results[i+1])
	}
}

func (ex *execution) evalBuiltin(fr *frame, instr *ssa.Instruction, b abi.BuiltinFuncRef, args []ssa.Value) {
	result, _ := instr.Returns()
	switch b {
	case abi.BuiltinMemorySize:
		mem := ex.me.inst.Memory0()
		if mem == nil {
			fr.set(result, 0)
			return
		}
		fr.set(result, uint64(mem.Size()))

	case abi.BuiltinMemoryGrow:
		mem := ex.me.inst.Memory0()
		delta := uint32(fr.get(args[2]))
		if mem == nil {
			fr.set(result, ^uint64(0))
			return
		}
		prev, ok := mem.Grow(delta)
		if !ok {
			fr.set(result, ^uint64(0))
			return
		}
		fr.set(result, uint64(prev))

	case abi.BuiltinTableSize:
		tableIdx := uint32(fr.get(args[2]))
		fr.set(result, uint64(ex.me.inst.Tables[tableIdx].Size()))

	case abi.BuiltinTableGrow:
		tableIdx := uint32(fr.get(args[2]))
		delta := uint32(fr.get(args[3]))
		fill := fr.get(args[4])
		prev, ok := ex.me.inst.Tables[tableIdx].Grow(delta, fill)
		if !ok {
			fr.set(result, ^uint64(0))
			return
		}
		fr.set(result, uint64(prev))

	case abi.BuiltinResolveIndirect:
		ex.evalResolveIndirect(fr, result, args)

	default:
		panic("BUG: unhandled builtin")
	}
}

// evalResolveIndirect is the concrete implementation of call_indirect's
// table lookup and signature check: it traps TrapReasonTableOutOfBounds,
// TrapReasonUninitializedTableElement, and — the check the lowerer itself
// never performs — TrapReasonIndirectCallTypeMismatch when the table
// element's actual function type doesn't match the call site's declared
// type.
func (ex *execution) evalResolveIndirect(fr *frame, result ssa.Value, args []ssa.Value) {
	tableIdx := uint32(fr.get(args[2]))
	elemIdx := uint32(fr.get(args[3]))
	expectedTypeIdx := uint32(fr.get(args[4]))

	if int(tableIdx) >= len(ex.me.inst.Tables) {
		trap(ssa.TrapReasonTableOutOfBounds)
	}
	table := ex.me.inst.Tables[tableIdx]

	ref, err := table.Get(elemIdx)
	if err != nil {
		trap(ssa.TrapReasonTableOutOfBounds)
	}
	if rt.IsNull(ref) {
		trap(ssa.TrapReasonUninitializedTableElement)
	}

	funcIdx := uint32(ref)
	m := ex.me.code.m
	if int(funcIdx) >= len(m.FunctionSection) {
		trap(ssa.TrapReasonIndirectCallTypeMismatch)
	}
	actual := m.TypeOf(funcIdx)
	expected := &m.TypeSection[expectedTypeIdx]
	if !actual.Equal(expected) {
		trap(ssa.TrapReasonIndirectCallTypeMismatch)
	}

	fr.set(result, uint64(funcIdx))
}
