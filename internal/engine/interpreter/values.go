package interpreter

import "github.com/wasmine-go/wasmine/internal/ssa"

// addrKind distinguishes which ExecutionContext-relative region a tagged
// pointer value refers to, so Load/Store can resolve it against the right
// rt object instead of a real flat address space.
type addrKind byte

const (
	addrNone addrKind = iota
	addrMemory
	addrGlobals
)

// addrTag is attached, per ssa.ValueID, to every Value the interpreter can
// prove is (transitively, through Iadd) derived from a
// Load(execCtx, ExecCtxMemoryDataOffset) or Load(execCtx, ExecCtxGlobalsOffset).
// offset accumulates the concrete runtime byte offset from the region's
// base as Iadd folds in dynamic operands (a Wasm address, a global*8
// stride), so a terminal Load/Store against a tagged pointer resolves
// directly into rt.Memory/rt.Global without ever materializing a literal
// flat byte array for globals the way a native backend's raw pointer would.
//
// This is the engine's one deliberate departure from "be a literal
// interpreter of the IR": internal/lower emits address arithmetic assuming
// a real pointer-sized ExecutionContext, and rather than fabricating one
// with unsafe.Pointer, the interpreter tracks what that arithmetic means
// symbolically. The lowerer is unaware of and unaffected by this —
// swapping in a real compiled backend later would consume the exact same
// IR literally.
type addrTag struct {
	kind   addrKind
	offset uint64
}

// frame is one function activation's register file: a flat array of raw
// 64-bit slots, one per ssa.ValueID the function's Builder allocated
// (sized via Builder.ValueRefCounts()), plus the parallel tag table.
type frame struct {
	regs []uint64
	tags []addrTag
}

func newFrame(valueCount int) *frame {
	return &frame{regs: make([]uint64, valueCount), tags: make([]addrTag, valueCount)}
}

func (f *frame) get(v ssa.Value) uint64    { return f.regs[v.ID()] }
func (f *frame) tag(v ssa.Value) addrTag   { return f.tags[v.ID()] }
func (f *frame) set(v ssa.Value, x uint64) { f.regs[v.ID()] = x }
func (f *frame) setTag(v ssa.Value, t addrTag) {
	f.tags[v.ID()] = t
}
