package wasi_snapshot_preview1

// Errno mirrors the WASI error code enum's representation (a plain
// uint32, matching wasm's i32 result slot) trimmed to the subset this
// implementation's functions can actually produce, named after the
// teacher's own errno.go.
type Errno = uint32

const (
	ErrnoSuccess Errno = 0
	ErrnoBadf    Errno = 8
	ErrnoFault   Errno = 21
	ErrnoInval   Errno = 28
	ErrnoIo      Errno = 29
	ErrnoNosys   Errno = 52
	ErrnoNotdir  Errno = 54
	ErrnoNoent   Errno = 44
	ErrnoPerm    Errno = 63
)
