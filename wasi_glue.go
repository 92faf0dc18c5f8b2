package wasmine

import (
	wasi "github.com/wasmine-go/wasmine/imports/wasi_snapshot_preview1"
	"github.com/wasmine-go/wasmine/internal/linker"
)

// instantiateWasi registers wctx's implemented functions into store under
// wasi.ModuleName, the glue between ModuleConfig.WithWasiContext and the
// linker's import resolution.
func instantiateWasi(store *linker.Store, wctx *wasi.WasiContext) error {
	return wasi.Instantiate(store, wctx)
}

// WasiContextBuilder re-exports the WASI package's builder so callers don't
// need a second import line for the common case.
type WasiContextBuilder = wasi.WasiContextBuilder

// NewWasiContextBuilder returns a new WasiContextBuilder.
func NewWasiContextBuilder() *WasiContextBuilder { return wasi.NewWasiContextBuilder() }
