package wasm

import (
	"fmt"
	"sync"

	"github.com/wasmine-go/wasmine/internal/cwasm"
)

// Artifact is C5's module object: a Module's decoded metadata paired with
// its source buffer and a registry of lazily-produced derived artifacts
// (compiled IR, a cwasm native payload), matching spec.md §3's "a value
// holding the metadata, the source buffer, and an artifact registry" with
// three operations — load_meta, load_all_functions, store_to_file.
//
// Artifact cannot hold a *engine.Code field directly: internal/engine
// imports internal/wasm for Module/FunctionKind/etc, so the reverse import
// would cycle. Instead Compiled is opaque (interface{}), set once by
// whichever engine compiled this module and type-asserted back by that
// same engine on the next lookup — the same pattern internal/rt.Instance
// uses for Call, generalized to a cached value instead of a closure.
type Artifact struct {
	Module *Module
	Source []byte

	mu       sync.Mutex
	compiled any
}

// NewArtifact wraps m (already decoded by C2) with its source buffer.
func NewArtifact(m *Module, source []byte) *Artifact {
	return &Artifact{Module: m, Source: source}
}

// Compiled returns the previously cached compiled artifact, if any.
func (a *Artifact) Compiled() (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.compiled, a.compiled != nil
}

// SetCompiled caches a compiled artifact (an engine.Code) for reuse across
// repeated instantiation of the same module.
func (a *Artifact) SetCompiled(c any) {
	a.mu.Lock()
	a.compiled = c
	a.mu.Unlock()
}

// FunctionBody returns the function at idx's raw code-section payload,
// sliced out of Source — the "unparsed byte range" half of the tagged
// union C2's decoder leaves local functions in until load_all_functions
// (here, an engine's CompileModule) lowers them.
func (a *Artifact) FunctionBody(idx Index) ([]byte, error) {
	fn := &a.Module.FunctionSection[idx]
	if fn.Kind != FunctionKindUnparsed {
		return nil, fmt.Errorf("function %d has no source body (kind %d)", idx, fn.Kind)
	}
	c := fn.Code
	if c.Offset+c.Size > len(a.Source) {
		return nil, fmt.Errorf("function %d code range [%d:%d] exceeds source buffer (%d bytes)", idx, c.Offset, c.Offset+c.Size, len(a.Source))
	}
	return a.Source[c.Offset : c.Offset+c.Size], nil
}

// StoreToFile persists this module as a cwasm file: its metadata plus the
// caller-supplied native payload (an engine's serialized compiled form),
// per §6's file layout. The caller (an engine) decides what "native" means
// for it — the interpreter has none to offer and callers should pass nil.
func (a *Artifact) StoreToFile(path string, native []byte) error {
	return cwasm.WriteFile(path, a.cwasmMetadata(), native)
}

func (a *Artifact) cwasmMetadata() cwasm.Metadata {
	m := a.Module
	meta := cwasm.Metadata{
		ModuleID:      m.ID,
		TypeSection:   make([]cwasm.MetaFunctionType, len(m.TypeSection)),
		FunctionTypes: make([]uint32, len(m.FunctionSection)),
		ImportCount:   m.ImportFuncCount,
		HasMemory:     m.HasMemory(),
		TablePages:    make([]cwasm.MetaLimits, len(m.TableSection)),
		GlobalTypes:   make([]cwasm.MetaGlobalType, len(m.GlobalSection)),
		FunctionNames: make(map[uint32]string, len(m.NameSection.FunctionNames)),
	}
	for i, ft := range m.TypeSection {
		meta.TypeSection[i] = cwasm.MetaFunctionType{Params: ft.Params, Results: ft.Results}
	}
	for i, fn := range m.FunctionSection {
		meta.FunctionTypes[i] = fn.TypeIndex
	}
	if m.HasMemory() {
		lim := m.MemorySection[0].Type.Limits
		meta.MemoryPages = cwasm.MetaLimits{Min: lim.Min, Max: lim.Max, HasMax: lim.HasMax}
	}
	for i, t := range m.TableSection {
		meta.TablePages[i] = cwasm.MetaLimits{Min: t.Type.Limits.Min, Max: t.Type.Limits.Max, HasMax: t.Type.Limits.HasMax}
	}
	for i, g := range m.GlobalSection {
		meta.GlobalTypes[i] = cwasm.MetaGlobalType{ValType: g.Type.ValType, Mutable: g.Type.Mutable}
	}
	for idx, name := range m.NameSection.FunctionNames {
		meta.FunctionNames[idx] = name
	}
	return meta
}

// LoadArtifactMetadata reconstructs enough of a Module to instantiate from
// a previously decoded cwasm Payload, without needing the original .wasm
// binary — the read half of AOT persistence (§8 scenario 6). Function
// bodies are not recovered this way; only the engine's native payload
// (decoded by the engine itself from Payload.Native) makes the module
// executable again.
func LoadArtifactMetadata(p *cwasm.Payload) *Module {
	m := &Module{
		ID:                p.Metadata.ModuleID,
		TypeSection:       make([]FunctionType, len(p.Metadata.TypeSection)),
		FunctionSection:   make([]Function, len(p.Metadata.FunctionTypes)),
		ImportFuncCount:   p.Metadata.ImportCount,
		TableSection:      make([]Table, len(p.Metadata.TablePages)),
		GlobalSection:     make([]Global, len(p.Metadata.GlobalTypes)),
		NameSection:       NameSection{FunctionNames: p.Metadata.FunctionNames},
	}
	for i, t := range p.Metadata.TypeSection {
		m.TypeSection[i] = FunctionType{Params: t.Params, Results: t.Results}
	}
	for i, typeIdx := range p.Metadata.FunctionTypes {
		m.FunctionSection[i] = Function{Kind: FunctionKindUnparsed, TypeIndex: typeIdx}
	}
	if p.Metadata.HasMemory {
		l := p.Metadata.MemoryPages
		m.MemorySection = []Memory{{Type: MemoryType{Limits: Limits{Min: l.Min, Max: l.Max, HasMax: l.HasMax}}}}
	}
	for i, l := range p.Metadata.TablePages {
		m.TableSection[i] = Table{Type: TableType{Limits: Limits{Min: l.Min, Max: l.Max, HasMax: l.HasMax}}}
	}
	for i, g := range p.Metadata.GlobalTypes {
		m.GlobalSection[i] = Global{Type: GlobalType{ValType: g.ValType, Mutable: g.Mutable}}
	}
	return m
}
