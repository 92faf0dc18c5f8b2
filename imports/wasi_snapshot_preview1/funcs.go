package wasi_snapshot_preview1

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wasmine-go/wasmine/api"
)

// ExitError is panicked by ProcExit to unwind out of a running call without
// involving the trap/recover machinery (§6 "exit codes"): it is not a Wasm
// trap, just a normal process-exit request a host function makes, so it
// must not be reported as one. It satisfies api.ExitError so the linker's
// Function.Call recovers it automatically and returns it as a normal error
// instead of letting it escape uncaught, mirroring the teacher's own
// sys.ExitError.
type ExitError struct{ exitCode uint32 }

func (e *ExitError) Error() string    { return fmt.Sprintf("wasi: proc_exit(%d)", e.exitCode) }
func (e *ExitError) ExitCode() uint32 { return e.exitCode }

// ArgsSizesGet writes argc and the total NUL-terminated byte size of argv.
func (w *WasiContext) ArgsSizesGet(ctx context.Context, mod api.Module, argcPtr, argvBufSizePtr uint32) uint32 {
	mem := mod.Memory()
	size := uint32(0)
	for _, a := range w.args {
		size += uint32(len(a)) + 1
	}
	if !mem.WriteUint32Le(ctx, argcPtr, uint32(len(w.args))) || !mem.WriteUint32Le(ctx, argvBufSizePtr, size) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// ArgsGet writes argv (an array of guest pointers into argvBuf) and argvBuf
// (the NUL-terminated argument bytes themselves) to memory.
func (w *WasiContext) ArgsGet(ctx context.Context, mod api.Module, argvPtr, argvBufPtr uint32) uint32 {
	return writeStringVector(ctx, mod, w.args, argvPtr, argvBufPtr)
}

// EnvironSizesGet writes environ count and total NUL-terminated byte size.
func (w *WasiContext) EnvironSizesGet(ctx context.Context, mod api.Module, countPtr, bufSizePtr uint32) uint32 {
	mem := mod.Memory()
	size := uint32(0)
	for _, e := range w.environ {
		size += uint32(len(e)) + 1
	}
	if !mem.WriteUint32Le(ctx, countPtr, uint32(len(w.environ))) || !mem.WriteUint32Le(ctx, bufSizePtr, size) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// EnvironGet writes environ (an array of guest pointers) and environBuf.
func (w *WasiContext) EnvironGet(ctx context.Context, mod api.Module, environPtr, environBufPtr uint32) uint32 {
	return writeStringVector(ctx, mod, w.environ, environPtr, environBufPtr)
}

func writeStringVector(ctx context.Context, mod api.Module, vals []string, vecPtr, bufPtr uint32) uint32 {
	mem := mod.Memory()
	cursor := bufPtr
	for i, s := range vals {
		if !mem.WriteUint32Le(ctx, vecPtr+uint32(i)*4, cursor) {
			return ErrnoFault
		}
		if !mem.Write(ctx, cursor, append([]byte(s), 0)) {
			return ErrnoFault
		}
		cursor += uint32(len(s)) + 1
	}
	return ErrnoSuccess
}

// clock IDs, matching the WASI snapshot-01 clockid enum subset this engine
// supports (realtime and monotonic; CPU-time clocks are not implemented).
const (
	clockIDRealtime  = 0
	clockIDMonotonic = 1
)

// ClockTimeGet writes the current time for clockID (nanoseconds since the
// Unix epoch for realtime, process-relative for monotonic) to resultPtr.
func (w *WasiContext) ClockTimeGet(ctx context.Context, mod api.Module, clockID uint32, precision uint64, resultPtr uint32) uint32 {
	var now uint64
	switch clockID {
	case clockIDRealtime:
		now = uint64(time.Now().UnixNano())
	case clockIDMonotonic:
		now = uint64(time.Since(processStart))
	default:
		return ErrnoInval
	}
	if !mod.Memory().WriteUint64Le(ctx, resultPtr, clockIDToNanos(now)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func clockIDToNanos(n uint64) uint64 { return n }

var processStart = time.Now()

// RandomGet fills bufLen bytes at bufPtr with cryptographically random data.
func (w *WasiContext) RandomGet(ctx context.Context, mod api.Module, bufPtr, bufLen uint32) uint32 {
	buf := make([]byte, bufLen)
	if _, err := rand.Read(buf); err != nil {
		return ErrnoIo
	}
	if !mod.Memory().Write(ctx, bufPtr, buf) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// ProcExit terminates the running module, propagating exitCode to the
// embedder via ExitError rather than returning normally.
func (w *WasiContext) ProcExit(ctx context.Context, mod api.Module, exitCode uint32) {
	_ = mod.CloseWithExitCode(ctx, exitCode)
	panic(&ExitError{exitCode: exitCode})
}

// SchedYield is a no-op: this engine has no cooperative scheduler for a
// WASI guest to yield to.
func (w *WasiContext) SchedYield(ctx context.Context, mod api.Module) uint32 {
	return ErrnoSuccess
}

// FdWrite gathers len(iovs) (ptr,len) pairs from memory starting at iovsPtr
// and writes their concatenated bytes to fd, storing the total byte count
// at resultPtr.
func (w *WasiContext) FdWrite(ctx context.Context, mod api.Module, fdNum, iovsPtr, iovsLen, resultPtr uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok || f.writer == nil {
		return ErrnoBadf
	}
	mem := mod.Memory()
	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		base := iovsPtr + i*8
		ptr, ok1 := mem.ReadUint32Le(ctx, base)
		length, ok2 := mem.ReadUint32Le(ctx, base+4)
		if !ok1 || !ok2 {
			return ErrnoFault
		}
		data, ok3 := mem.Read(ctx, ptr, length)
		if !ok3 {
			return ErrnoFault
		}
		n, err := f.writer.Write(data)
		if err != nil {
			return ErrnoIo
		}
		total += uint32(n)
	}
	if !mem.WriteUint32Le(ctx, resultPtr, total) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdRead scatters bytes read from fd across len(iovs) (ptr,len) buffers,
// storing the total byte count read at resultPtr.
func (w *WasiContext) FdRead(ctx context.Context, mod api.Module, fdNum, iovsPtr, iovsLen, resultPtr uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok || f.reader == nil {
		return ErrnoBadf
	}
	mem := mod.Memory()
	var total uint32
	for i := uint32(0); i < iovsLen; i++ {
		base := iovsPtr + i*8
		ptr, ok1 := mem.ReadUint32Le(ctx, base)
		length, ok2 := mem.ReadUint32Le(ctx, base+4)
		if !ok1 || !ok2 {
			return ErrnoFault
		}
		buf := make([]byte, length)
		n, err := f.reader.Read(buf)
		if n > 0 {
			if !mem.Write(ctx, ptr, buf[:n]) {
				return ErrnoFault
			}
			total += uint32(n)
		}
		if err != nil {
			break
		}
	}
	if !mem.WriteUint32Le(ctx, resultPtr, total) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdClose closes fdNum, honoring shouldClose, and removes it from the
// table.
func (w *WasiContext) FdClose(ctx context.Context, mod api.Module, fdNum uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok {
		return ErrnoBadf
	}
	if f.shouldClose && f.file != nil {
		_ = f.file.Close()
	}
	delete(w.fds, fdNum)
	return ErrnoSuccess
}

// Close releases every open fd marked shouldClose (stdio streams the
// embedder handed over via SetStdin/Stdout/Stderr with shouldClose=true,
// plus every file PathOpen opened), the cleanup half of CloseWithExitCode.
// Preopened directory capabilities hold no OS handle and are skipped.
func (w *WasiContext) Close(ctx context.Context) error {
	var firstErr error
	for num, f := range w.fds {
		if f.shouldClose && f.file != nil {
			if err := f.file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(w.fds, num)
	}
	return firstErr
}

// fdstatSize is the byte size of the fdstat record fd_fdstat_get writes;
// only its file-type byte is filled in, since this engine does not model
// fd flags or non-blocking I/O.
const fdstatSize = 24

// FdFdstatGet writes a minimal fdstat record (file type + rights) for
// fdNum to resultPtr, enough for libc's fd-kind probing during startup.
func (w *WasiContext) FdFdstatGet(ctx context.Context, mod api.Module, fdNum, resultPtr uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok {
		return ErrnoBadf
	}
	buf := make([]byte, fdstatSize)
	if f.isPreopenDir {
		buf[0] = 3 // __WASI_FILETYPE_DIRECTORY
	} else {
		buf[0] = 4 // __WASI_FILETYPE_REGULAR_FILE (stdio approximated as a regular file)
	}
	if !mod.Memory().Write(ctx, resultPtr, buf) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdPrestatGet reports fdNum's preopen kind and guest-path length, used by
// libc to enumerate preopened directories at startup.
func (w *WasiContext) FdPrestatGet(ctx context.Context, mod api.Module, fdNum, resultPtr uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok || !f.isPreopenDir {
		return ErrnoBadf
	}
	mem := mod.Memory()
	if !mem.WriteByte(ctx, resultPtr, 0) { // __WASI_PREOPENTYPE_DIR
		return ErrnoFault
	}
	if !mem.WriteUint32Le(ctx, resultPtr+4, uint32(len(f.guestPath))) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// FdPrestatDirName writes fdNum's guest mount path (up to pathLen bytes).
func (w *WasiContext) FdPrestatDirName(ctx context.Context, mod api.Module, fdNum, pathPtr, pathLen uint32) uint32 {
	f, ok := w.fds[fdNum]
	if !ok || !f.isPreopenDir {
		return ErrnoBadf
	}
	name := f.guestPath
	if uint32(len(name)) > pathLen {
		name = name[:pathLen]
	}
	if !mod.Memory().Write(ctx, pathPtr, []byte(name)) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

// PathOpen opens guestRelPath (relative to dirFd's preopen) for reading
// and/or writing according to fsRightsBase (oflags is not consulted), a reduced translation
// of the WASI path_open call covering the plain-file case this engine's
// sandboxed capability model supports (no symlink/rename/directory-create
// flags).
func (w *WasiContext) PathOpen(
	ctx context.Context, mod api.Module,
	dirFd, pathPtr, pathLen, oflags uint32,
	fsRightsBase, fsRightsInheriting uint64,
	fdFlags uint32, resultFdPtr uint32,
) uint32 {
	dir, ok := w.fds[dirFd]
	if !ok || !dir.isPreopenDir {
		return ErrnoBadf
	}
	raw, ok := mod.Memory().Read(ctx, pathPtr, pathLen)
	if !ok {
		return ErrnoFault
	}
	rel := strings.TrimPrefix(string(raw), "/")

	wantWrite := fsRightsBase&uint64(PermWrite) != 0
	if wantWrite && dir.perms&PermWrite == 0 {
		return ErrnoPerm
	}
	if !wantWrite && dir.perms&PermRead == 0 {
		return ErrnoPerm
	}

	flag := os.O_RDONLY
	if wantWrite {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(dir.hostPath+"/"+rel, flag, 0o644)
	if err != nil {
		return ErrnoNoent
	}

	id := w.nextFD
	w.nextFD++
	w.fds[id] = &fd{file: f, reader: f, writer: f, shouldClose: true}
	if !mod.Memory().WriteUint32Le(ctx, resultFdPtr, id) {
		return ErrnoFault
	}
	return ErrnoSuccess
}
