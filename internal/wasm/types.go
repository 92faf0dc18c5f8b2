// Package wasm holds C2's type & section catalog and C5's module object: the
// in-memory representation of a parsed WebAssembly module's metadata, plus
// the module value that carries it alongside its source buffer and a
// registry of lazily-computed derived artifacts (IR, compiled code).
package wasm

import (
	"context"

	"github.com/wasmine-go/wasmine/api"
)

// Index is a dense integer index into one of a module's index spaces
// (types, functions, tables, memories, globals).
type Index = uint32

// FunctionType is a Wasm function signature: an ordered list of parameter
// value types and an ordered list of result value types.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Equal reports whether t and o have identical parameter and result lists,
// the structural equality required by call_indirect's type check (§4.6).
func (t *FunctionType) Equal(o *FunctionType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return sliceEqual(t.Params, o.Params) && sliceEqual(t.Results, o.Results)
}

func sliceEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Limits bounds a table or memory's size in units appropriate to each (wasm
// pages for memories, elements for tables).
type Limits struct {
	Min uint32
	Max uint32
	// HasMax is false when no maximum was declared (Max is then unused).
	HasMax bool
}

// TableType describes a table's element reference type and size limits.
type TableType struct {
	RefType api.RefType
	Limits  Limits
}

// MemoryType describes a linear memory's page-count limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// ImportKind distinguishes what an Import resolves to.
type ImportKind = api.ExternType

// Import is a single entry of the import section: a (module, name)
// qualified reference plus the descriptor of what's expected at that name.
type Import struct {
	Module, Name string
	Kind         ImportKind
	// Exactly one of the following is meaningful, selected by Kind.
	TypeIndex  Index
	Table      TableType
	Memory     MemoryType
	Global     GlobalType
}

// Export is a single entry of the export section: a name bound to an index
// in one of the four index spaces.
type Export struct {
	Name  string
	Kind  api.ExternType
	Index Index
}

// ConstExpr is a constant initializer expression: a numeric literal, a
// global.get of a global, ref.null or ref.func (§3 "active data/element
// segments have a constant i32 offset expression resolvable against
// imported constants").
type ConstExprKind byte

const (
	ConstExprI32Const ConstExprKind = iota
	ConstExprI64Const
	ConstExprF32Const
	ConstExprF64Const
	ConstExprGlobalGet
	ConstExprRefNull
	ConstExprRefFunc
)

type ConstExpr struct {
	Kind  ConstExprKind
	I32   int32
	I64   int64
	F32   float32
	F64   float64
	Index Index // global index (GlobalGet) or function index (RefFunc)
}

// ElementMode distinguishes how an element segment is consumed.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// ElementSegment initializes a table range, either eagerly at instantiation
// (active), on explicit table.init (passive), or never, existing only to
// declare functions referenced by ref.func (declarative).
type ElementSegment struct {
	RefType    api.RefType
	Mode       ElementMode
	TableIndex Index // meaningful only when Mode == ElementModeActive
	Offset     ConstExpr
	// Init holds one constant expression per element: usually a RefFunc or
	// RefNull, occasionally a GlobalGet of an imported externref constant.
	Init []ConstExpr
	// Whether a segment has been dropped is not part of the parsed
	// metadata; rt.Instance.DroppedElements records it per instance.
}

// DataMode distinguishes active and passive data segments.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// DataSegment initializes a memory range, either eagerly at instantiation
// (active) or on explicit memory.init (passive).
type DataSegment struct {
	Mode         DataMode
	MemoryIndex  Index // meaningful only when Mode == DataModeActive
	Offset       ConstExpr
	Init         []byte
}

// FunctionKind tags what a Function entry holds: an import reference, an
// unparsed byte range into the source, or a host function. Lowered IR and
// compiled code are not tracked by this tag.
type FunctionKind byte

const (
	// FunctionKindImport means the function body lives in another module;
	// Code is meaningless and TypeIndex names the expected signature.
	FunctionKindImport FunctionKind = iota
	// FunctionKindUnparsed means only a byte range into the module's
	// source buffer has been recorded; IR has not yet been produced.
	FunctionKindUnparsed
	// FunctionKindHost is a Go closure wrapped per C12; it never has a
	// byte range or precompiled artifact of its own.
	FunctionKindHost
)

// CodeEntry is one function's code-section payload: a byte range into the
// module's source buffer (lazy parsing, §4.2) plus the locally declared
// (non-parameter) local variable types.
type CodeEntry struct {
	// Offset and Size locate the function's instruction bytes (after the
	// size prefix and the local declarations) within the module's source
	// buffer (Artifact.Source).
	Offset, Size int
	LocalTypes   []api.ValueType
	// HostFn is set only for FunctionKindHost code entries; see C12.
	HostFn HostFunction
}

// HostFunction is the type-erased shape a wrapped Go function is reduced
// to before being installed into the code section (C12). Unlike a Wasm
// function's CompiledFunction, a HostFunction is never lowered to SSA: it
// runs as plain Go, invoked with the calling instance so it can read/write
// that instance's memory (api.Module.Memory()).
type HostFunction interface {
	Call(ctx context.Context, mod api.Module, params []uint64) ([]uint64, error)
}

// Function is one entry of the combined import+local function index space.
type Function struct {
	Kind       FunctionKind
	TypeIndex  Index
	Code       CodeEntry // meaningful unless Kind == FunctionKindImport
	Import     *Import   // meaningful only when Kind == FunctionKindImport
	DebugName  string
}

// Global is one entry of the combined import+local global index space.
type Global struct {
	Type    GlobalType
	Init    ConstExpr // meaningful only for locally defined globals
	Import  *Import
}

// Table and Memory mirror Function/Global: either imported or locally
// declared, carrying their declared type either way.
type Table struct {
	Type   TableType
	Import *Import
}

type Memory struct {
	Type   MemoryType
	Import *Import
}
