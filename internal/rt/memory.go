// Package rt holds the concrete runtime objects instantiation produces —
// Memory, Table, and Global (C9) — plus the flat ExecutionContext every
// lowered function call carries (C10). These are the Go-side counterparts
// of the abstract "Memory instance"/"Table instance"/"Global instance" and
// "execution context" the specification describes; internal/abi fixes the
// byte offsets the lowerer (C4) bakes into Load/Store instructions to
// reach into an *ExecutionContext, and this package is the struct those
// offsets actually index into.
package rt

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wasmine-go/wasmine/internal/wasm"
)

// PageSize is the unit memory.grow/memory.size operate in (§4.9).
const PageSize = 65536

// MaxPages bounds a memory to the 32-bit address space this engine
// supports (4GiB / PageSize), matching wazero's own sparse-mmap
// reservation strategy, which this package's Memory mirrors directly:
// reserve the whole range up front so growth never needs to relocate
// (and so pointers baked into already-running calls stay valid).
const MaxPages = 65536

// Memory is a module's linear memory instance. The full ceiling (the
// module's declared max, or the cluster's configured ceiling if it
// declares none) is reserved up front via an anonymous mmap with no
// access rights, and memory.grow extends access rights over already-
// reserved pages via mprotect rather than reallocating — the address
// never moves, exactly like the teacher's AOT engine relies on memory
// addresses staying stable across a memory.grow executed by a
// concurrently running call. This mirrors the teacher's own
// internal/platform mmap/mprotect dance for executable code segments,
// applied here to linear memory instead.
type Memory struct {
	mu       sync.RWMutex
	reserved []byte // full ceiling*PageSize reservation, PROT_NONE beyond committed
	size     uint32 // committed size in pages; reserved[:size*PageSize] is PROT_READ|PROT_WRITE
	min, max uint32 // in pages
	hasMax   bool
	ceiling  uint32 // in pages; embedder-configured cap, defaults to MaxPages
}

// NewMemory reserves a freestanding Memory per mt, with min pages
// committed. Most callers go through a Cluster (C8) instead, so this
// grows out of the cluster's own bookkeeping; it remains for tests and
// other standalone uses.
func NewMemory(mt wasm.MemoryType) *Memory {
	m := &Memory{}
	initMemory(m, mt, MaxPages)
	return m
}

// initMemory initializes a zero-valued Memory (as Cluster.NewMemory hands
// back from its pool) in place. ceiling is the embedder-configured page
// cap (RuntimeConfig.WithMemoryMaxPages), never above MaxPages.
func initMemory(m *Memory, mt wasm.MemoryType, ceiling uint32) {
	m.min, m.max, m.hasMax = mt.Limits.Min, mt.Limits.Max, mt.Limits.HasMax
	if ceiling == 0 || ceiling > MaxPages {
		ceiling = MaxPages
	}
	m.ceiling = ceiling
	reserve := ceiling
	if mt.Limits.HasMax && mt.Limits.Max < reserve {
		reserve = mt.Limits.Max
	}
	if reserve < mt.Limits.Min {
		reserve = mt.Limits.Min
	}

	buf, err := unix.Mmap(-1, 0, int(uint64(reserve)*PageSize), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		// Falls back to a plain heap allocation (no unmapped guard pages
		// beyond it) on platforms/sandboxes where anonymous mmap is
		// unavailable; growth still works, just without mprotect's
		// committed-pages tracking, so every reserved byte starts
		// accessible.
		buf = make([]byte, uint64(reserve)*PageSize)
	} else if mt.Limits.Min > 0 {
		if perr := unix.Mprotect(buf[:uint64(mt.Limits.Min)*PageSize], unix.PROT_READ|unix.PROT_WRITE); perr != nil {
			_ = unix.Munmap(buf)
			buf = make([]byte, uint64(reserve)*PageSize)
		}
	}
	m.reserved = buf
	m.size = mt.Limits.Min
}

// Size returns the current size in pages.
func (m *Memory) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Grow attempts to grow the memory by delta pages, returning the previous
// size in pages and whether it succeeded (§4.9 "grow returns −1 on
// failure" — modeled here as ok==false; the interpreter's memory.grow
// builtin turns that into −1, while the api.Memory wrapper passes ok
// through unchanged). The reservation made at init time already covers every page
// this memory could ever commit to, so growth only needs to mprotect the
// newly visible range, never reallocate or copy.
func (m *Memory) Grow(delta uint32) (previous uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.size
	next := cur + delta
	if next < cur { // overflow
		return cur, false
	}
	if m.hasMax && next > m.max {
		return cur, false
	}
	if next > m.ceiling {
		return cur, false
	}
	newEnd := uint64(next) * PageSize
	if newEnd > uint64(len(m.reserved)) {
		// Falls back to growing the backing slice directly: the
		// reservation's capacity fallback path (anonymous mmap
		// unavailable) means there are no unmapped guard pages to
		// mprotect in the first place.
		grown := make([]byte, newEnd)
		copy(grown, m.reserved[:uint64(cur)*PageSize])
		m.reserved = grown
	} else if newEnd > uint64(cur)*PageSize {
		if err := unix.Mprotect(m.reserved[uint64(cur)*PageSize:newEnd], unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return cur, false
		}
	}
	m.size = next
	return cur, true
}

// Data returns the raw backing slice, sized to the currently committed
// pages. The interpreter (C6) uses this directly for bounds-checked
// loads/stores; holding the slice header across a call is safe only
// because Grow's mprotect calls extend rights over already-reserved
// memory at a stable address rather than relocating it, serialized by the
// lock above.
func (m *Memory) Data() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reserved[:uint64(m.size)*PageSize]
}

// Read returns a view of byteCount bytes at offset, or false if the
// access is out of bounds (§7 TrapReasonMemoryOutOfBounds at the
// instruction level; this method is the non-trapping api.Memory form).
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(m.size)*PageSize {
		return nil, false
	}
	return m.reserved[offset:end], true
}

// Write copies v into the memory at offset, or returns false if out of
// bounds.
func (m *Memory) Write(offset uint32, v []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(offset) + uint64(len(v))
	if end > uint64(m.size)*PageSize {
		return false
	}
	copy(m.reserved[offset:end], v)
	return true
}

// Fill implements memory.fill: b repeated n times starting at offset.
func (m *Memory) Fill(offset uint32, b byte, n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(offset) + uint64(n)
	if end > uint64(m.size)*PageSize {
		return fmt.Errorf("memory.fill out of bounds")
	}
	chunk := m.reserved[offset:end]
	for i := range chunk {
		chunk[i] = b
	}
	return nil
}

// Copy implements memory.copy, correctly handling overlap.
func (m *Memory) Copy(dst, src, n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := uint64(m.size) * PageSize
	if uint64(src)+uint64(n) > limit || uint64(dst)+uint64(n) > limit {
		return fmt.Errorf("memory.copy out of bounds")
	}
	copy(m.reserved[dst:uint64(dst)+uint64(n)], m.reserved[src:uint64(src)+uint64(n)])
	return nil
}
