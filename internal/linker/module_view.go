package linker

import (
	"context"
	"fmt"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// publicModule is the api.Module view handed to Go host functions and to
// an embedder holding an instantiated module, backed directly by an
// *rt.Instance. It exists in internal/linker, not internal/rt, because
// building it requires exported-name lookups (wasm.Module.ExportSection)
// that are linker/instantiation concerns, not Instance's own.
type publicModule struct {
	name string
	m    *wasm.Module
	inst *rt.Instance
}

func newPublicModule(name string, m *wasm.Module, inst *rt.Instance) *publicModule {
	return &publicModule{name: name, m: m, inst: inst}
}

// callStart invokes inst's start function, recovering a panicked
// api.ExitError the same way functionView.Call does — a start function
// that calls proc_exit must not be reported as a trap.
func callStart(ctx context.Context, inst *rt.Instance, funcIdx wasm.Index) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(api.ExitError); ok {
				err = ee
				return
			}
			panic(r)
		}
	}()
	_, err = inst.Invoke(ctx, funcIdx)
	return err
}

func (p *publicModule) Name() string { return p.name }

func (p *publicModule) String() string { return fmt.Sprintf("Module[%s]", p.name) }

func (p *publicModule) Memory() api.Memory {
	if mem := p.inst.Memory0(); mem != nil {
		return &memoryView{mem}
	}
	return nil
}

func (p *publicModule) ExportedFunction(name string) api.Function {
	idx, ok := p.m.ExportedFunctionIndex(name)
	if !ok {
		return nil
	}
	typ, debugName := p.m.FunctionDefinition(idx)
	return &functionView{inst: p.inst, idx: idx, typ: typ, moduleName: p.name, name: name, debugName: debugName}
}

func (p *publicModule) ExportedMemory(name string) api.Memory {
	idx, ok := exportedIndex(p.m, name, api.ExternTypeMemory)
	if !ok || int(idx) >= len(p.inst.Memories) {
		return nil
	}
	return &memoryView{p.inst.Memories[idx]}
}

func (p *publicModule) ExportedGlobal(name string) api.Global {
	idx, ok := exportedIndex(p.m, name, api.ExternTypeGlobal)
	if !ok || int(idx) >= len(p.inst.Globals) {
		return nil
	}
	return &globalView{g: p.inst.Globals[idx], typ: p.m.GlobalSection[idx].Type}
}

func (p *publicModule) ExportedTable(name string) api.Table {
	idx, ok := exportedIndex(p.m, name, api.ExternTypeTable)
	if !ok || int(idx) >= len(p.inst.Tables) {
		return nil
	}
	return &tableView{t: p.inst.Tables[idx], typ: p.m.TableSection[idx].Type}
}

func (p *publicModule) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	if p.inst.Closer == nil {
		return nil
	}
	return p.inst.Closer(ctx, exitCode)
}

func (p *publicModule) Close(ctx context.Context) error {
	return p.CloseWithExitCode(ctx, 0)
}

// functionView implements api.Function/api.FunctionDefinition together,
// since every caller of a Function also wants its Definition and
// splitting them into two allocations buys nothing here.
type functionView struct {
	inst       *rt.Instance
	idx        wasm.Index
	typ        *wasm.FunctionType
	moduleName string
	name       string
	debugName  string
}

func (f *functionView) Definition() api.FunctionDefinition { return f }

// Call invokes the function, recovering any panicked api.ExitError (e.g.
// WASI's proc_exit) into a normal returned error instead of letting it
// unwind past the embedder uncaught — every other panic (a trap) still
// propagates as-is.
func (f *functionView) Call(ctx context.Context, params ...uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ee, ok := r.(api.ExitError); ok {
				err = ee
				return
			}
			panic(r)
		}
	}()
	return f.inst.Invoke(ctx, f.idx, params...)
}

func (f *functionView) ModuleName() string { return f.moduleName }
func (f *functionView) Index() uint32      { return f.idx }
func (f *functionView) Name() string       { return f.name }
func (f *functionView) DebugName() string  { return f.debugName }
func (f *functionView) Import() (moduleName, name string, isImport bool) {
	fn := &f.inst.Module.FunctionSection[f.idx]
	if fn.Kind != wasm.FunctionKindImport {
		return "", "", false
	}
	return fn.Import.Module, fn.Import.Name, true
}
func (f *functionView) ExportNames() []string {
	var names []string
	for i := range f.inst.Module.ExportSection {
		e := &f.inst.Module.ExportSection[i]
		if e.Kind == api.ExternTypeFunc && e.Index == f.idx {
			names = append(names, e.Name)
		}
	}
	return names
}
func (f *functionView) ParamTypes() []api.ValueType  { return f.typ.Params }
func (f *functionView) ResultTypes() []api.ValueType { return f.typ.Results }

type globalView struct {
	g   *rt.Global
	typ wasm.GlobalType
}

func (g *globalView) String() string      { return fmt.Sprintf("Global(%#x)", g.g.Get()) }
func (g *globalView) Type() api.ValueType { return g.typ.ValType }
func (g *globalView) Get(ctx context.Context) uint64 { return g.g.Get() }
func (g *globalView) Set(ctx context.Context, v uint64) { g.g.Set(v) }

type tableView struct {
	t   *rt.Table
	typ wasm.TableType
}

func (t *tableView) Type() api.RefType { return t.typ.RefType }
func (t *tableView) Size() uint32      { return t.t.Size() }

// memoryView adapts *rt.Memory (§4.9's unrestricted internal memory
// object) to api.Memory's context-threaded, byte/word-granularity reader/
// writer surface, grounded on wazero's own internal.MemoryInstance ->
// api.Memory wrapper split.
type memoryView struct {
	m *rt.Memory
}

func (v *memoryView) Size(ctx context.Context) uint32 { return v.m.Size() * rt.PageSize }

func (v *memoryView) Grow(ctx context.Context, deltaPages uint32) (uint32, bool) {
	return v.m.Grow(deltaPages)
}

func (v *memoryView) ReadByte(ctx context.Context, offset uint32) (byte, bool) {
	b, ok := v.m.Read(offset, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (v *memoryView) ReadUint32Le(ctx context.Context, offset uint32) (uint32, bool) {
	b, ok := v.m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return leUint32(b), true
}

func (v *memoryView) ReadUint64Le(ctx context.Context, offset uint32) (uint64, bool) {
	b, ok := v.m.Read(offset, 8)
	if !ok {
		return 0, false
	}
	return leUint64(b), true
}

func (v *memoryView) Read(ctx context.Context, offset, byteCount uint32) ([]byte, bool) {
	return v.m.Read(offset, byteCount)
}

func (v *memoryView) WriteByte(ctx context.Context, offset uint32, val byte) bool {
	return v.m.Write(offset, []byte{val})
}

func (v *memoryView) WriteUint32Le(ctx context.Context, offset, val uint32) bool {
	b := []byte{byte(val), byte(val >> 8), byte(val >> 16), byte(val >> 24)}
	return v.m.Write(offset, b)
}

func (v *memoryView) Write(ctx context.Context, offset uint32, val []byte) bool {
	return v.m.Write(offset, val)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
