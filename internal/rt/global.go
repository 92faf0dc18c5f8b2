package rt

import (
	"sync/atomic"

	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Global is a module's global variable instance: a single 64-bit aligned
// storage slot regardless of declared value type (§4.9), addressed by the
// lowerer (C4) as an offset into the flat globals array an
// ExecutionContext points at (internal/abi.ExecCtxGlobalsOffset).
type Global struct {
	typ     wasm.GlobalType
	value   atomic.Uint64
}

// NewGlobal creates a Global of the given type with the given raw initial
// value (already evaluated from its ConstExpr by the linker, C11).
func NewGlobal(typ wasm.GlobalType, init uint64) *Global {
	g := &Global{typ: typ}
	g.value.Store(init)
	return g
}

// Get returns the raw 64-bit value; callers reinterpret per typ.
func (g *Global) Get() uint64 { return g.value.Load() }

// Set stores a new raw value. A global.set on an immutable global is
// rejected by the function lowerer (C4); Set itself does not check.
func (g *Global) Set(v uint64) { g.value.Store(v) }

// Type returns the declared value type and mutability.
func (g *Global) Type() wasm.GlobalType { return g.typ }
