// Package linker implements C11: resolving a module's imports against
// previously instantiated modules or registered host functions, allocating
// its memories/tables/globals, running its active element/data segment
// initializers and start function, and handing back a ready-to-call
// instance handle.
//
// Grounded on wazero's own instantiation sequence
// (internal/wasm/instance.go and wasm.Store.Instantiate): resolve imports
// first, allocate locally declared resources next in the same combined
// index space order instructions already assume, then run initializers,
// then the start function — the same four-phase shape, generalized here
// around this module's own Instance/Cluster/Engine types.
package linker

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/engine"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// hostExport is a single (module, field) binding registered directly by
// the embedder rather than produced by instantiating a Wasm binary.
type hostExport struct {
	kind   api.ExternType
	fn     wasm.HostFunction
	fnType wasm.FunctionType
	global *rt.Global
	gType  wasm.GlobalType
	memory *rt.Memory
	table  *rt.Table
}

// Store is the namespace (C11's "dependency store of qualified bindings")
// every Instantiate call resolves imports against: named module instances
// plus directly registered host exports, matching §5's "a store mapping
// (module, field) to a concrete export".
type Store struct {
	cluster   *rt.Cluster
	instances map[string]*rt.Instance
	host      map[string]map[string]*hostExport
}

// NewStore returns an empty Store backed by cluster for all resource
// allocation it performs during instantiation.
func NewStore(cluster *rt.Cluster) *Store {
	return &Store{
		cluster:   cluster,
		instances: make(map[string]*rt.Instance),
		host:      make(map[string]map[string]*hostExport),
	}
}

// Instance looks up a previously instantiated module by the name it was
// instantiated with.
func (s *Store) Instance(name string) (*rt.Instance, bool) {
	in, ok := s.instances[name]
	return in, ok
}

// RegisterHostFunction wraps fn (an ordinary Go func, see internal/hostfunc)
// and registers it under (moduleName, fieldName) for later import
// resolution — the embedder-facing half of C12.
func (s *Store) RegisterHostFunction(moduleName, fieldName string, fn wasm.HostFunction, fnType wasm.FunctionType) {
	s.host[moduleName] = ensure(s.host[moduleName])
	s.host[moduleName][fieldName] = &hostExport{kind: api.ExternTypeFunc, fn: fn, fnType: fnType}
}

// RegisterHostGlobal registers a host-owned global under (moduleName,
// fieldName).
func (s *Store) RegisterHostGlobal(moduleName, fieldName string, g *rt.Global, gType wasm.GlobalType) {
	s.host[moduleName] = ensure(s.host[moduleName])
	s.host[moduleName][fieldName] = &hostExport{kind: api.ExternTypeGlobal, global: g, gType: gType}
}

// RegisterHostMemory registers a host-owned memory under (moduleName,
// fieldName).
func (s *Store) RegisterHostMemory(moduleName, fieldName string, m *rt.Memory) {
	s.host[moduleName] = ensure(s.host[moduleName])
	s.host[moduleName][fieldName] = &hostExport{kind: api.ExternTypeMemory, memory: m}
}

// RegisterHostTable registers a host-owned table under (moduleName,
// fieldName).
func (s *Store) RegisterHostTable(moduleName, fieldName string, t *rt.Table) {
	s.host[moduleName] = ensure(s.host[moduleName])
	s.host[moduleName][fieldName] = &hostExport{kind: api.ExternTypeTable, table: t}
}

func ensure(m map[string]*hostExport) map[string]*hostExport {
	if m == nil {
		return make(map[string]*hostExport)
	}
	return m
}

// Instantiate resolves art's imports against s, allocates its locally
// declared memories/tables/globals, runs its active element/data segments
// and start function, and — if name is non-empty — registers the result
// for later modules to import from.
func (s *Store) Instantiate(ctx context.Context, eng engine.Engine, art *wasm.Artifact, name string) (*rt.Instance, error) {
	m := art.Module

	code, err := s.compiled(ctx, eng, art)
	if err != nil {
		return nil, fmt.Errorf("compiling module %q: %w", name, err)
	}

	inst := s.cluster.NewInstance(m)
	inst.DroppedElements = make(map[wasm.Index]bool)
	inst.DroppedData = make(map[wasm.Index]bool)

	if err := s.resolveImports(m, inst); err != nil {
		return nil, fmt.Errorf("instantiating module %q: %w", name, err)
	}

	s.allocateLocals(m, inst)

	if err := s.runElementSegments(m, inst); err != nil {
		return nil, fmt.Errorf("instantiating module %q: %w", name, err)
	}
	if err := s.runDataSegments(m, inst); err != nil {
		return nil, fmt.Errorf("instantiating module %q: %w", name, err)
	}

	me := code.NewModuleEngine(inst)
	inst.Call = me.Call
	inst.Name = name
	inst.PublicModule = newPublicModule(name, m, inst)

	if m.StartSection != nil {
		if err := callStart(ctx, inst, *m.StartSection); err != nil {
			return nil, fmt.Errorf("module %q: start function: %w", name, err)
		}
	}

	if name != "" {
		s.instances[name] = inst
	}
	return inst, nil
}

func (s *Store) compiled(ctx context.Context, eng engine.Engine, art *wasm.Artifact) (engine.Code, error) {
	if c, ok := art.Compiled(); ok {
		code, ok := c.(engine.Code)
		if !ok {
			return nil, fmt.Errorf("artifact's cached compiled form is not an engine.Code")
		}
		return code, nil
	}
	code, err := eng.CompileModule(ctx, art.Module, art.Source)
	if err != nil {
		return nil, err
	}
	art.SetCompiled(code)
	return code, nil
}

// resolveImports binds inst's import-space slots (Tables/Memories/Globals
// prefixes and ImportedFuncs) against s's registered instances and host
// exports, accumulating every unresolvable or mismatched import via
// multierr rather than stopping at the first one — an embedder debugging
// a missing-imports module wants the whole list in one report, the same
// reason the teacher's own validation passes collect every error from a
// section before returning.
func (s *Store) resolveImports(m *wasm.Module, inst *rt.Instance) error {
	var errs error

	inst.ImportedFuncs = make([]func(ctx context.Context, params []uint64) ([]uint64, error), m.ImportFuncCount)
	inst.Tables = make([]*rt.Table, 0, len(m.TableSection))
	inst.Memories = make([]*rt.Memory, 0, len(m.MemorySection))
	inst.Globals = make([]*rt.Global, 0, len(m.GlobalSection))

	var funcIdx int
	for i := range m.ImportSection {
		imp := &m.ImportSection[i]
		switch imp.Kind {
		case api.ExternTypeFunc:
			slot := funcIdx
			funcIdx++
			call, fnType, err := s.resolveFunc(imp, inst)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			expected := &m.TypeSection[imp.TypeIndex]
			if fnType != nil && !fnType.Equal(expected) {
				errs = multierr.Append(errs, fmt.Errorf("import %s.%s: signature mismatch", imp.Module, imp.Name))
				continue
			}
			inst.ImportedFuncs[slot] = call

		case api.ExternTypeTable:
			t, err := s.resolveTable(imp)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			inst.Tables = append(inst.Tables, t)

		case api.ExternTypeMemory:
			mem, err := s.resolveMemory(imp)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			inst.Memories = append(inst.Memories, mem)

		case api.ExternTypeGlobal:
			g, err := s.resolveGlobal(imp)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			inst.Globals = append(inst.Globals, g)

		default:
			errs = multierr.Append(errs, fmt.Errorf("import %s.%s: unknown kind %d", imp.Module, imp.Name, imp.Kind))
		}
	}

	return errs
}

func (s *Store) resolveFunc(imp *wasm.Import, inst *rt.Instance) (func(ctx context.Context, params []uint64) ([]uint64, error), *wasm.FunctionType, error) {
	if src, ok := s.instances[imp.Module]; ok {
		idx, ok := src.Module.ExportedFunctionIndex(imp.Name)
		if !ok {
			return nil, nil, fmt.Errorf("import %s.%s: not exported", imp.Module, imp.Name)
		}
		typ := src.Module.TypeOf(idx)
		return func(ctx context.Context, params []uint64) ([]uint64, error) {
			return src.Invoke(ctx, idx, params...)
		}, typ, nil
	}
	if mod, ok := s.host[imp.Module]; ok {
		if e, ok := mod[imp.Name]; ok && e.kind == api.ExternTypeFunc {
			return func(ctx context.Context, params []uint64) ([]uint64, error) {
				return e.fn.Call(ctx, inst.PublicModule, params)
			}, &e.fnType, nil
		}
	}
	return nil, nil, fmt.Errorf("import %s.%s: unresolved function import", imp.Module, imp.Name)
}

func (s *Store) resolveTable(imp *wasm.Import) (*rt.Table, error) {
	if src, ok := s.instances[imp.Module]; ok {
		if idx, ok := exportedIndex(src.Module, imp.Name, api.ExternTypeTable); ok {
			return src.Tables[idx], nil
		}
	}
	if mod, ok := s.host[imp.Module]; ok {
		if e, ok := mod[imp.Name]; ok && e.kind == api.ExternTypeTable {
			return e.table, nil
		}
	}
	return nil, fmt.Errorf("import %s.%s: unresolved table import", imp.Module, imp.Name)
}

func (s *Store) resolveMemory(imp *wasm.Import) (*rt.Memory, error) {
	if src, ok := s.instances[imp.Module]; ok {
		if idx, ok := exportedIndex(src.Module, imp.Name, api.ExternTypeMemory); ok {
			return src.Memories[idx], nil
		}
	}
	if mod, ok := s.host[imp.Module]; ok {
		if e, ok := mod[imp.Name]; ok && e.kind == api.ExternTypeMemory {
			return e.memory, nil
		}
	}
	return nil, fmt.Errorf("import %s.%s: unresolved memory import", imp.Module, imp.Name)
}

func (s *Store) resolveGlobal(imp *wasm.Import) (*rt.Global, error) {
	if src, ok := s.instances[imp.Module]; ok {
		if idx, ok := exportedIndex(src.Module, imp.Name, api.ExternTypeGlobal); ok {
			return src.Globals[idx], nil
		}
	}
	if mod, ok := s.host[imp.Module]; ok {
		if e, ok := mod[imp.Name]; ok && e.kind == api.ExternTypeGlobal {
			return e.global, nil
		}
	}
	return nil, fmt.Errorf("import %s.%s: unresolved global import", imp.Module, imp.Name)
}

func exportedIndex(m *wasm.Module, name string, kind api.ExternType) (wasm.Index, bool) {
	for i := range m.ExportSection {
		e := &m.ExportSection[i]
		if e.Kind == kind && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}

// allocateLocals appends the locally declared (non-import) tables,
// memories, and globals onto inst's already-import-populated slices,
// preserving the combined-index-space order every instruction assumes.
func (s *Store) allocateLocals(m *wasm.Module, inst *rt.Instance) {
	for i := int(m.ImportTableCount); i < len(m.TableSection); i++ {
		inst.Tables = append(inst.Tables, s.cluster.NewTable(m.TableSection[i].Type))
	}
	for i := int(m.ImportMemoryCount); i < len(m.MemorySection); i++ {
		inst.Memories = append(inst.Memories, s.cluster.NewMemory(m.MemorySection[i].Type))
	}
	for i := int(m.ImportGlobalCount); i < len(m.GlobalSection); i++ {
		g := &m.GlobalSection[i]
		init := evalConstExpr(inst, g.Init)
		inst.Globals = append(inst.Globals, s.cluster.NewGlobal(g.Type, init))
	}
}

// evalConstExpr evaluates a constant initializer against inst's
// already-populated Globals slice (§4.2: only imported globals, which
// sort before any local one, may be referenced by global.get here).
func evalConstExpr(inst *rt.Instance, e wasm.ConstExpr) uint64 {
	switch e.Kind {
	case wasm.ConstExprI32Const:
		return uint64(uint32(e.I32))
	case wasm.ConstExprI64Const:
		return uint64(e.I64)
	case wasm.ConstExprF32Const:
		return uint64(api.EncodeF32(e.F32))
	case wasm.ConstExprF64Const:
		return api.EncodeF64(e.F64)
	case wasm.ConstExprGlobalGet:
		return inst.Globals[e.Index].Get()
	case wasm.ConstExprRefNull:
		return rt.NullRef()
	case wasm.ConstExprRefFunc:
		return uint64(e.Index)
	default:
		panic("BUG: unhandled ConstExpr kind")
	}
}

// runElementSegments performs the active element segments' eager table
// initialization (§4.2/§4.9).
func (s *Store) runElementSegments(m *wasm.Module, inst *rt.Instance) error {
	for i := range m.ElementSection {
		seg := &m.ElementSection[i]
		if seg.Mode != wasm.ElementModeActive {
			continue
		}
		base := uint32(evalConstExpr(inst, seg.Offset))
		if int(seg.TableIndex) >= len(inst.Tables) {
			return fmt.Errorf("element segment %d: table index %d out of range", i, seg.TableIndex)
		}
		table := inst.Tables[seg.TableIndex]
		for j, init := range seg.Init {
			ref := evalConstExpr(inst, init)
			if err := table.Set(base+uint32(j), ref); err != nil {
				return fmt.Errorf("element segment %d: %w", i, err)
			}
		}
	}
	return nil
}

// runDataSegments performs the active data segments' eager memory
// initialization (§4.2/§4.9).
func (s *Store) runDataSegments(m *wasm.Module, inst *rt.Instance) error {
	for i := range m.DataSection {
		seg := &m.DataSection[i]
		if seg.Mode != wasm.DataModeActive {
			continue
		}
		base := uint32(evalConstExpr(inst, seg.Offset))
		if int(seg.MemoryIndex) >= len(inst.Memories) {
			return fmt.Errorf("data segment %d: memory index %d out of range", i, seg.MemoryIndex)
		}
		if !inst.Memories[seg.MemoryIndex].Write(base, seg.Init) {
			return fmt.Errorf("data segment %d: out of bounds write", i)
		}
	}
	return nil
}
