// Package wasi_snapshot_preview1 implements the host-call side of the
// "wasi_snapshot_preview1" import module: args/env access, clock/random
// reads, and capability-scoped file descriptor I/O backed by preopened
// host directories.
//
// The specification treats "the WASI host-call implementations" as an
// external collaborator with a documented interface (WasiContextBuilder),
// not a module this engine must itself re-derive from the upstream WASI
// spec byte for byte. What's implemented here is the practical subset the
// teacher's own wasi_snapshot_preview1 package covers for stdio and
// preopened-directory access, grounded directly on its fd_32.go/fs.go/
// clock.go/args.go/environ.go/random.go/proc.go files, adapted to this
// engine's simpler hostfunc.New-based registration instead of the
// teacher's proxyResultParams wrapper generation.
package wasi_snapshot_preview1

import (
	"io"
	"os"

	"github.com/wasmine-go/wasmine/internal/linker"
)

// ModuleName is the import module name Wasm binaries reference.
const ModuleName = "wasi_snapshot_preview1"

// DirPerms is a bitset of capabilities granted to a preopened directory,
// mirroring the spec's "perms are union of READ, WRITE".
type DirPerms uint8

const (
	PermRead DirPerms = 1 << iota
	PermWrite
)

// fd is one entry of a WasiContext's open file-descriptor table: either a
// preopened directory capability or an open file/stdio stream.
type fd struct {
	isPreopenDir bool
	guestPath    string // preopen guest mount point, meaningful when isPreopenDir
	hostPath     string // preopen host path, meaningful when isPreopenDir
	perms        DirPerms

	file        *os.File
	reader      io.Reader
	writer      io.Writer
	shouldClose bool
}

// WasiContext is the resolved configuration a WasiContextBuilder produces:
// argv, envp, the open fd table (0/1/2 plus any preopens), seeded per
// spec's WasiContextBuilder option table.
type WasiContext struct {
	args    []string
	environ []string
	fds     map[uint32]*fd
	nextFD  uint32
}

// WasiContextBuilder accumulates options before producing an immutable
// WasiContext, matching the spec's conceptual host-embedding API of the
// same name.
type WasiContextBuilder struct {
	ctx *WasiContext
}

// NewWasiContextBuilder returns a builder with no argv/envp and no fds
// open — every standard stream must be explicitly inherited or set.
func NewWasiContextBuilder() *WasiContextBuilder {
	return &WasiContextBuilder{ctx: &WasiContext{fds: make(map[uint32]*fd), nextFD: 3}}
}

// Arg appends a single argv entry.
func (b *WasiContextBuilder) Arg(s string) *WasiContextBuilder {
	b.ctx.args = append(b.ctx.args, s)
	return b
}

// Args appends every element of ss to argv.
func (b *WasiContextBuilder) Args(ss []string) *WasiContextBuilder {
	b.ctx.args = append(b.ctx.args, ss...)
	return b
}

// Env appends a single "k=v" envp entry.
func (b *WasiContextBuilder) Env(k, v string) *WasiContextBuilder {
	b.ctx.environ = append(b.ctx.environ, k+"="+v)
	return b
}

// Envs appends every element of kv (already "k=v" formatted) to envp.
func (b *WasiContextBuilder) Envs(kv []string) *WasiContextBuilder {
	b.ctx.environ = append(b.ctx.environ, kv...)
	return b
}

// InheritHostEnv copies the embedding process's own environment into envp.
func (b *WasiContextBuilder) InheritHostEnv() *WasiContextBuilder {
	b.ctx.environ = append(b.ctx.environ, os.Environ()...)
	return b
}

// InheritStdin duplicates the host's stdin into guest fd 0.
func (b *WasiContextBuilder) InheritStdin() *WasiContextBuilder {
	return b.SetStdin(os.Stdin, false)
}

// InheritStdout duplicates the host's stdout into guest fd 1.
func (b *WasiContextBuilder) InheritStdout() *WasiContextBuilder {
	return b.SetStdout(os.Stdout, false)
}

// InheritStderr duplicates the host's stderr into guest fd 2.
func (b *WasiContextBuilder) InheritStderr() *WasiContextBuilder {
	return b.SetStderr(os.Stderr, false)
}

// InheritStdio is shorthand for inheriting all three standard streams.
func (b *WasiContextBuilder) InheritStdio() *WasiContextBuilder {
	return b.InheritStdin().InheritStdout().InheritStderr()
}

// SetStdin installs r as guest fd 0, closing it on module close if
// shouldClose is set.
func (b *WasiContextBuilder) SetStdin(r io.Reader, shouldClose bool) *WasiContextBuilder {
	b.ctx.fds[0] = &fd{reader: r, shouldClose: shouldClose, file: asFile(r)}
	return b
}

// SetStdout installs w as guest fd 1.
func (b *WasiContextBuilder) SetStdout(w io.Writer, shouldClose bool) *WasiContextBuilder {
	b.ctx.fds[1] = &fd{writer: w, shouldClose: shouldClose, file: asFile(w)}
	return b
}

// SetStderr installs w as guest fd 2.
func (b *WasiContextBuilder) SetStderr(w io.Writer, shouldClose bool) *WasiContextBuilder {
	b.ctx.fds[2] = &fd{writer: w, shouldClose: shouldClose, file: asFile(w)}
	return b
}

// PreopenDir exposes hostDir under guestPath as a new preopened directory
// fd, capability-scoped to perms; inheritPerms is accepted for parity with
// the spec's option signature but this engine grants exactly perms (no
// broader ambient capability exists to inherit from).
func (b *WasiContextBuilder) PreopenDir(hostDir, guestPath string, perms DirPerms, inheritPerms DirPerms) *WasiContextBuilder {
	id := b.ctx.nextFD
	b.ctx.nextFD++
	b.ctx.fds[id] = &fd{isPreopenDir: true, guestPath: guestPath, hostPath: hostDir, perms: perms}
	return b
}

// Build finalizes the context.
func (b *WasiContextBuilder) Build() *WasiContext { return b.ctx }

func asFile(v interface{}) *os.File {
	if f, ok := v.(*os.File); ok {
		return f
	}
	return nil
}

// Instantiate registers every implemented wasi_snapshot_preview1 function
// under ModuleName in store, bound to wctx, so that a module importing
// "wasi_snapshot_preview1.fd_write" (etc.) resolves against it during
// linker.Store.Instantiate — the Go-side equivalent of the spec's
// BoundLinker::instantiate_and_link_with_wasi.
func Instantiate(store *linker.Store, wctx *WasiContext) error {
	return registerAll(store, wctx)
}
