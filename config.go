package wasmine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wasmine-go/wasmine/api"
	wasi "github.com/wasmine-go/wasmine/imports/wasi_snapshot_preview1"
)

// RuntimeConfig controls Runtime construction, with NewRuntimeConfig as the
// default. Instances are immutable; every With* method returns a copy,
// grounded on the teacher's own RuntimeConfig clone-and-return builder
// pattern (config.go).
type RuntimeConfig struct {
	ctx            context.Context
	log            *zap.Logger
	coreFeatures   api.CoreFeatures
	memoryMaxPages uint32
	engineKind     engineKind
}

type engineKind int

const (
	engineInterpreter engineKind = iota
	engineCompiled
)

// NewRuntimeConfig returns the default configuration: the tree-walking
// interpreter backend, WebAssembly 2.0 core features, a no-op logger, and
// this engine's full 4GiB address space as the default memory ceiling.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		ctx:            context.Background(),
		log:            zap.NewNop(),
		coreFeatures:   api.CoreFeaturesV2,
		memoryMaxPages: 65536,
		engineKind:     engineInterpreter,
	}
}

// NewRuntimeConfigInterpreter is an alias of NewRuntimeConfig naming the
// backend explicitly, for parity with the conceptual `Engine::interpreter()`
// constructor.
func NewRuntimeConfigInterpreter() *RuntimeConfig {
	return NewRuntimeConfig()
}

// NewRuntimeConfigCompiler selects the cwasm-backed persistence path
// (§6/§8 scenario 6) instead of compiling straight from a .wasm binary
// every time. It still executes with the same tree-walking interpreter —
// this engine's native code generator is the undocumented external
// collaborator §1 excludes, so "compiled" here means "loadable from a
// cwasm artifact without its original source," not a different runtime
// strategy. Named `Engine::llvm()` conceptually in the host-embedding API;
// that native backend is out of scope.
func NewRuntimeConfigCompiler() *RuntimeConfig {
	c := NewRuntimeConfig()
	c.engineKind = engineCompiled
	return c
}

func (c *RuntimeConfig) clone() *RuntimeConfig {
	cp := *c
	return &cp
}

// WithContext sets the default context used for a module's start function
// and any api.Function call that receives a nil context.
func (c *RuntimeConfig) WithContext(ctx context.Context) *RuntimeConfig {
	if ctx == nil {
		ctx = context.Background()
	}
	cp := c.clone()
	cp.ctx = ctx
	return cp
}

// WithLogger installs a zap logger the engine uses for compile/instantiate/
// trap diagnostics (ambient, not part of any spec module).
func (c *RuntimeConfig) WithLogger(log *zap.Logger) *RuntimeConfig {
	cp := c.clone()
	if log == nil {
		log = zap.NewNop()
	}
	cp.log = log
	return cp
}

// WithMemoryMaxPages reduces the maximum number of pages a module's memory
// may grow to below this engine's 65536-page (4GiB) ceiling.
func (c *RuntimeConfig) WithMemoryMaxPages(pages uint32) *RuntimeConfig {
	cp := c.clone()
	cp.memoryMaxPages = pages
	return cp
}

// WithCoreFeatures overrides the enabled Core WebAssembly feature set;
// NewRuntimeConfig defaults to api.CoreFeaturesV2.
func (c *RuntimeConfig) WithCoreFeatures(f api.CoreFeatures) *RuntimeConfig {
	cp := c.clone()
	cp.coreFeatures = f
	return cp
}

// ModuleConfig configures a single Runtime.InstantiateModule call: the name
// the instance is registered under and, if the module imports
// "wasi_snapshot_preview1", the WasiContext resolving those imports.
type ModuleConfig struct {
	name string
	wasi *wasi.WasiContext
}

// NewModuleConfig returns a config that registers the instance under name
// with no WASI bindings.
func NewModuleConfig(name string) *ModuleConfig {
	return &ModuleConfig{name: name}
}

// WithName overrides the registered instance name.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	cp := *c
	cp.name = name
	return &cp
}

// WithWasiContext resolves any "wasi_snapshot_preview1.*" imports this
// module declares against wctx (built via
// wasi_snapshot_preview1.NewWasiContextBuilder), the Go-side equivalent of
// the spec's instantiate_and_link_with_wasi.
func (c *ModuleConfig) WithWasiContext(wctx *wasi.WasiContext) *ModuleConfig {
	cp := *c
	cp.wasi = wctx
	return &cp
}
