package rt

import (
	"sync"

	"github.com/wasmine-go/wasmine/internal/pool"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Cluster is C8's resource cluster: the owner of every Memory, Table,
// Global, and Instance a runtime has allocated, each kept in its own
// segmented list (internal/pool) guarded by its own mutex, matching §5's
// "segmented-lists of owned objects, one per resource kind, each behind
// its own mutex so concurrent instantiation on different resource kinds
// doesn't serialize on a single lock."
//
// A Cluster is shared by every module instantiated against one Runtime
// (C11's linker allocates through it); Memory/Table/Global/NewGlobal's
// package-level constructors remain available unpooled for the rare
// caller (tests, a host module with no associated Runtime) that wants a
// freestanding object outside any cluster's ownership.
type Cluster struct {
	memMu  sync.Mutex
	memory pool.Pool[Memory]

	tableMu sync.Mutex
	table   pool.Pool[Table]

	globalMu sync.Mutex
	global   pool.Pool[Global]

	instMu   sync.Mutex
	instance pool.Pool[Instance]

	// memoryCeiling bounds every Memory this cluster allocates, below
	// MaxPages if an embedder's RuntimeConfig.WithMemoryMaxPages asked
	// for a smaller address space. Defaults to MaxPages.
	memoryCeiling uint32
}

// NewCluster returns an empty, ready-to-use Cluster.
func NewCluster() *Cluster {
	return &Cluster{
		memory:        pool.New[Memory](),
		table:         pool.New[Table](),
		global:        pool.New[Global](),
		instance:      pool.New[Instance](),
		memoryCeiling: MaxPages,
	}
}

// SetMemoryCeiling caps every Memory subsequently allocated by this
// cluster to at most pages, the Cluster-level wiring for
// RuntimeConfig.WithMemoryMaxPages.
func (c *Cluster) SetMemoryCeiling(pages uint32) {
	if pages == 0 || pages > MaxPages {
		pages = MaxPages
	}
	c.memoryCeiling = pages
}

// NewMemory allocates and initializes a Memory from the cluster's memory
// list.
func (c *Cluster) NewMemory(mt wasm.MemoryType) *Memory {
	c.memMu.Lock()
	m := c.memory.Allocate()
	c.memMu.Unlock()
	initMemory(m, mt, c.memoryCeiling)
	return m
}

// NewTable allocates and initializes a Table from the cluster's table
// list.
func (c *Cluster) NewTable(tt wasm.TableType) *Table {
	c.tableMu.Lock()
	t := c.table.Allocate()
	c.tableMu.Unlock()
	initTable(t, tt)
	return t
}

// NewGlobal allocates and initializes a Global from the cluster's global
// list.
func (c *Cluster) NewGlobal(gt wasm.GlobalType, init uint64) *Global {
	c.globalMu.Lock()
	g := c.global.Allocate()
	c.globalMu.Unlock()
	g.typ = gt
	g.value.Store(init)
	return g
}

// NewInstance allocates a zeroed Instance from the cluster's instance
// list; the caller (C11's linker) fills in its fields as instantiation
// proceeds.
func (c *Cluster) NewInstance(m *wasm.Module) *Instance {
	c.instMu.Lock()
	in := c.instance.Allocate()
	c.instMu.Unlock()
	in.Module = m
	return in
}

// Stats reports how many of each resource kind this cluster currently
// owns, the cluster-level counterpart to a single Memory/Table's own
// Size().
type Stats struct {
	Memories, Tables, Globals, Instances int
}

func (c *Cluster) Stats() Stats {
	c.memMu.Lock()
	mem := c.memory.Allocated()
	c.memMu.Unlock()

	c.tableMu.Lock()
	tbl := c.table.Allocated()
	c.tableMu.Unlock()

	c.globalMu.Lock()
	glob := c.global.Allocated()
	c.globalMu.Unlock()

	c.instMu.Lock()
	inst := c.instance.Allocated()
	c.instMu.Unlock()

	return Stats{Memories: mem, Tables: tbl, Globals: glob, Instances: inst}
}
