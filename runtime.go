// Package wasmine is the embedder-facing root of the engine: parsing a Wasm
// binary into a Module (C1/C2), compiling it (C6), instantiating it against
// a Store of host and module imports (C11), and invoking its exports
// (C9/C10). It wires together every internal package the way the teacher's
// own root-level runtime/config/builder/cache files wire together
// internal/wasm, internal/engine, and internal/wasi_snapshot_preview1.
package wasmine

import (
	"context"
	"fmt"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/engine"
	"github.com/wasmine-go/wasmine/internal/engine/interpreter"
	"github.com/wasmine-go/wasmine/internal/linker"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/wasm"
	"github.com/wasmine-go/wasmine/internal/wasm/binary"
)

// Runtime is the top-level engine handle: one compiler (Engine), one
// resource cluster (C8) every instantiation allocates from, and one Store
// (C11) every instantiation resolves imports against. Matches the spec's
// conceptual `BoundLinker::new(cluster)` paired with an `Engine` instance.
type Runtime struct {
	cfg     *RuntimeConfig
	eng     engine.Engine
	cluster *rt.Cluster
	store   *linker.Store
}

// NewRuntime constructs a Runtime per cfg (NewRuntimeConfig() if nil).
func NewRuntime(cfg *RuntimeConfig) *Runtime {
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	cluster := rt.NewCluster()
	cluster.SetMemoryCeiling(cfg.memoryMaxPages)
	return &Runtime{
		cfg:     cfg,
		eng:     interpreter.New(cfg.log),
		cluster: cluster,
		store:   linker.NewStore(cluster),
	}
}

// CompiledModule is a decoded, not-yet-instantiated module: the
// specification's parse_from_file/parse_from_bytes result.
type CompiledModule struct {
	art *wasm.Artifact
}

func decodeModule(src []byte) (*wasm.Module, error) {
	m, err := binary.DecodeModule(src)
	if err != nil {
		return nil, fmt.Errorf("wasmine: decoding module: %w", err)
	}
	return m, nil
}

// CompileModule parses src's binary metadata and wraps it with its source
// buffer, ready for InstantiateModule. Actual function-body lowering is
// deferred to instantiation's first CompileModule call against the engine
// (C6), matching C5's lazy load_all_functions.
func (r *Runtime) CompileModule(ctx context.Context, src []byte) (*CompiledModule, error) {
	m, err := decodeModule(src)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{art: wasm.NewArtifact(m, src)}, nil
}

// CompileArtifact wraps an already-built *wasm.Artifact (e.g. one produced
// by LoadFromCWasm) as a CompiledModule.
func CompileArtifact(art *wasm.Artifact) *CompiledModule {
	return &CompiledModule{art: art}
}

// InstantiateModule instantiates compiled against r's Store per cfg,
// returning the resulting api.Module. If cfg declares a WasiContext, any
// "wasi_snapshot_preview1.*" imports are registered against r.store first.
func (r *Runtime) InstantiateModule(ctx context.Context, compiled *CompiledModule, cfg *ModuleConfig) (api.Module, error) {
	if cfg == nil {
		cfg = NewModuleConfig("")
	}
	if ctx == nil {
		ctx = r.cfg.ctx
	}
	if cfg.wasi != nil {
		if err := instantiateWasi(r.store, cfg.wasi); err != nil {
			return nil, err
		}
	}
	inst, err := r.store.Instantiate(ctx, r.eng, compiled.art, cfg.name)
	if err != nil {
		return nil, err
	}
	if cfg.wasi != nil {
		wctx := cfg.wasi
		inst.Closer = func(ctx context.Context, exitCode uint32) error {
			return wctx.Close(ctx)
		}
	}
	return inst.PublicModule, nil
}

// Instance looks up a previously instantiated, named module.
func (r *Runtime) Instance(name string) (api.Module, bool) {
	inst, ok := r.store.Instance(name)
	if !ok {
		return nil, false
	}
	return inst.PublicModule, true
}

// Store exposes the underlying linker.Store so a HostModuleBuilder (C12,
// builder.go) can register its functions against the same namespace
// InstantiateModule resolves imports through.
func (r *Runtime) Store() *linker.Store { return r.store }

// Close releases the Runtime's resources. This engine has no external
// process/file handles of its own to release beyond whatever WASI fds an
// embedder opened (closed by api.Module.Close on the owning instance).
func (r *Runtime) Close(ctx context.Context) error { return nil }
