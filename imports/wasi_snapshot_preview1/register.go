package wasi_snapshot_preview1

import (
	"fmt"

	"github.com/wasmine-go/wasmine/internal/hostfunc"
	"github.com/wasmine-go/wasmine/internal/linker"
)

// registerAll wraps each implemented WASI function through hostfunc.New
// (C12) and registers it under ModuleName, so a module's
// "wasi_snapshot_preview1.fd_write" import resolves against wctx during
// instantiation exactly like any other host import.
func registerAll(store *linker.Store, wctx *WasiContext) error {
	fns := map[string]interface{}{
		"args_sizes_get":      wctx.ArgsSizesGet,
		"args_get":            wctx.ArgsGet,
		"environ_sizes_get":   wctx.EnvironSizesGet,
		"environ_get":         wctx.EnvironGet,
		"clock_time_get":      wctx.ClockTimeGet,
		"random_get":          wctx.RandomGet,
		"proc_exit":           wctx.ProcExit,
		"sched_yield":         wctx.SchedYield,
		"fd_write":            wctx.FdWrite,
		"fd_read":             wctx.FdRead,
		"fd_close":            wctx.FdClose,
		"fd_fdstat_get":       wctx.FdFdstatGet,
		"fd_prestat_get":      wctx.FdPrestatGet,
		"fd_prestat_dir_name": wctx.FdPrestatDirName,
		"path_open":           wctx.PathOpen,
	}
	for name, fn := range fns {
		hf, typ, err := hostfunc.New(fn)
		if err != nil {
			return fmt.Errorf("wasi: wrapping %s: %w", name, err)
		}
		store.RegisterHostFunction(ModuleName, name, hf, typ)
	}
	return nil
}
