package wasm

import (
	"crypto/sha256"
	"fmt"
)

// ModuleID uniquely identifies a Module's bytes, used by engines to key
// compiled-artifact caches.
type ModuleID [sha256.Size]byte

// Module is the fully decoded metadata of a Wasm binary (§3 "Module
// metadata"): the index spaces for types, imports, functions, tables,
// memories, globals, element and data segments, and exports, plus which
// function (if any) is the start function.
//
// A Module never holds its source bytes or derived artifacts directly —
// those live in the Artifact wrapper (module_object.go) so that metadata
// alone can be cheaply shared.
type Module struct {
	ID ModuleID

	TypeSection []FunctionType

	// ImportSection is retained in declaration order; ImportFuncCount,
	// ImportTableCount, etc. say how many of each kind precede any locally
	// declared entries in the corresponding combined index space.
	ImportSection []Import

	ImportFuncCount   Index
	ImportTableCount  Index
	ImportMemoryCount Index
	ImportGlobalCount Index

	// FunctionSection, TableSection, MemorySection and GlobalSection hold
	// the full combined index space (imports first, then locally declared
	// entries), matching how instructions reference them.
	FunctionSection []Function
	TableSection    []Table
	MemorySection   []Memory
	GlobalSection   []Global

	ExportSection []Export

	ElementSection []ElementSegment
	DataSection    []DataSegment

	// DataCountSection, if present, must equal len(DataSection) (§4.2).
	DataCountSection    *uint32

	// StartSection names the start function, if any (§3 "exactly one
	// start function or none").
	StartSection *Index

	// NameSection is a best-effort decode of the custom "name" section,
	// supplementing trap messages with function/local names (SPEC_FULL §3b).
	NameSection NameSection
}

// NameSection is the subset of the custom "name" section this engine reads:
// the module name, per-function names and per-function local names, used
// only for diagnostics.
type NameSection struct {
	ModuleName    string
	FunctionNames map[Index]string
	LocalNames    map[Index]map[Index]string
}

// FunctionDefinition resolves index-space bookkeeping a caller needs to
// describe a function for diagnostics: its declared type and a debug name,
// preferring an export name, then the name section, then a synthetic one.
func (m *Module) FunctionDefinition(idx Index) (typ *FunctionType, debugName string) {
	fn := &m.FunctionSection[idx]
	typ = &m.TypeSection[fn.TypeIndex]
	for i := range m.ExportSection {
		e := &m.ExportSection[i]
		if e.Kind == ExternTypeFuncConst && e.Index == idx {
			return typ, e.Name
		}
	}
	if name, ok := m.NameSection.FunctionNames[idx]; ok {
		return typ, name
	}
	return typ, fmt.Sprintf("$f%d", idx)
}

// ExternTypeFuncConst mirrors api.ExternTypeFunc; it is identical in value.
const ExternTypeFuncConst = 0x00

// TypeOf resolves the declared FunctionType for function index idx.
func (m *Module) TypeOf(idx Index) *FunctionType {
	return &m.TypeSection[m.FunctionSection[idx].TypeIndex]
}

// HasMemory reports whether the module declares or imports exactly one
// memory (§3 invariant: "at most one memory").
func (m *Module) HasMemory() bool { return len(m.MemorySection) > 0 }

// ExportedFunctionIndex looks up an exported function's index by name.
func (m *Module) ExportedFunctionIndex(name string) (Index, bool) {
	for i := range m.ExportSection {
		e := &m.ExportSection[i]
		if e.Kind == ExternTypeFuncConst && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}
