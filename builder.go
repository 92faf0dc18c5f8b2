package wasmine

import (
	"fmt"

	"github.com/wasmine-go/wasmine/internal/hostfunc"
	"github.com/wasmine-go/wasmine/internal/linker"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// HostModuleBuilder registers Go functions and values under a module name
// so Wasm binaries can import them, the embedding-API surface for C12's
// host-function wrapping. Grounded on the teacher's own
// HostModuleBuilder/HostFunctionBuilder split (builder.go), simplified to
// this engine's single WithFunc reflection path — the WithGoFunction/
// WithGoModuleFunction low-level variants the teacher also offers exist to
// skip a reflection cost this engine doesn't optimize away elsewhere, so
// they're not duplicated here.
type HostModuleBuilder struct {
	store      *linker.Store
	moduleName string
	err        error
}

// NewHostModuleBuilder returns a builder that registers functions under
// moduleName against r's Store.
func (r *Runtime) NewHostModuleBuilder(moduleName string) *HostModuleBuilder {
	return &HostModuleBuilder{store: r.store, moduleName: moduleName}
}

// NewFunctionBuilder starts defining a single host function.
func (b *HostModuleBuilder) NewFunctionBuilder() *HostFunctionBuilder {
	return &HostFunctionBuilder{parent: b}
}

// HostFunctionBuilder accumulates a single host function's Go closure,
// name, and export name; Export registers it with the Store right away.
type HostFunctionBuilder struct {
	parent *HostModuleBuilder
	fn     interface{}
	name   string
	export string
}

// WithFunc uses reflection (internal/hostfunc) to map a Go func to a Wasm
// FunctionType. See internal/hostfunc's doc comment for the accepted
// parameter/result shapes.
func (f *HostFunctionBuilder) WithFunc(fn interface{}) *HostFunctionBuilder {
	f.fn = fn
	return f
}

// WithName sets the module-local name (diagnostics only).
func (f *HostFunctionBuilder) WithName(name string) *HostFunctionBuilder {
	f.name = name
	return f
}

// Export registers fn under exportName and returns to the parent builder.
func (f *HostFunctionBuilder) Export(exportName string) *HostModuleBuilder {
	f.export = exportName
	if f.parent.err != nil {
		return f.parent
	}
	hf, typ, err := hostfunc.New(f.fn)
	if err != nil {
		f.parent.err = fmt.Errorf("wasmine: host function %q: %w", exportName, err)
		return f.parent
	}
	f.parent.store.RegisterHostFunction(f.parent.moduleName, exportName, hf, typ)
	return f.parent
}

// ExportGlobal registers a mutable host-owned global under exportName.
func (b *HostModuleBuilder) ExportGlobal(exportName string, g *rt.Global, gType wasm.GlobalType) *HostModuleBuilder {
	b.store.RegisterHostGlobal(b.moduleName, exportName, g, gType)
	return b
}

// ExportMemory registers a host-owned memory under exportName.
func (b *HostModuleBuilder) ExportMemory(exportName string, m *rt.Memory) *HostModuleBuilder {
	b.store.RegisterHostMemory(b.moduleName, exportName, m)
	return b
}

// Instantiate finalizes the host module's registration, returning any
// deferred WithFunc error.
func (b *HostModuleBuilder) Instantiate() error {
	return b.err
}
