package rt

import (
	"fmt"
	"sync"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// nullRef is the sentinel element value for an uninitialized/null table
// slot. A lowered ref.null always produces this value (internal/lower's
// valueTypeToSSA collapses funcref/externref to an opaque i64 handle).
const nullRef uint64 = ^uint64(0)

// Table is a module's table instance: a resizable array of opaque
// 64-bit reference handles (§4.9's funcref/externref, represented here as
// a dense function-index or host-object-handle rather than a pointer,
// since this engine has no tracing GC to chase — Non-goal).
type Table struct {
	mu       sync.RWMutex
	elems    []uint64
	refType  api.RefType
	max      uint32
	hasMax   bool
}

// NewTable reserves a freestanding Table per tt, filled with null
// references. Most callers go through a Cluster (C8) instead; this
// remains for tests and other standalone uses.
func NewTable(tt wasm.TableType) *Table {
	t := &Table{}
	initTable(t, tt)
	return t
}

// initTable initializes a zero-valued Table (as Cluster.NewTable hands
// back from its pool) in place.
func initTable(t *Table, tt wasm.TableType) {
	t.refType, t.max, t.hasMax = tt.RefType, tt.Limits.Max, tt.Limits.HasMax
	t.elems = make([]uint64, tt.Limits.Min)
	for i := range t.elems {
		t.elems[i] = nullRef
	}
}

// Size returns the current element count.
func (t *Table) Size() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint32(len(t.elems))
}

// Type returns the stored reference type.
func (t *Table) Type() api.RefType { return t.refType }

// Grow attempts to grow the table by delta elements filled with fill,
// mirroring Memory.Grow's success/failure contract.
func (t *Table) Grow(delta uint32, fill uint64) (previous uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := uint32(len(t.elems))
	next := cur + delta
	if next < cur || (t.hasMax && next > t.max) {
		return cur, false
	}
	grown := make([]uint64, next)
	copy(grown, t.elems)
	for i := cur; i < next; i++ {
		grown[i] = fill
	}
	t.elems = grown
	return cur, true
}

// Get returns the reference stored at idx, or an error if idx is out of
// bounds (§7 TrapReasonTableOutOfBounds).
func (t *Table) Get(idx uint32) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx >= uint32(len(t.elems)) {
		return 0, fmt.Errorf("table index %d out of bounds (size %d)", idx, len(t.elems))
	}
	return t.elems[idx], nil
}

// Set stores ref at idx.
func (t *Table) Set(idx uint32, ref uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx >= uint32(len(t.elems)) {
		return fmt.Errorf("table index %d out of bounds (size %d)", idx, len(t.elems))
	}
	t.elems[idx] = ref
	return nil
}

// IsNull reports whether ref is the null-reference sentinel.
func IsNull(ref uint64) bool { return ref == nullRef }

// NullRef returns the null-reference sentinel value.
func NullRef() uint64 { return nullRef }
