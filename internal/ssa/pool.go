package ssa

import "github.com/wasmine-go/wasmine/internal/pool"

// Pool and NewPool alias the segmented-list allocator shared with the
// resource cluster (C8): the builder's instruction/basic-block pools and
// the cluster's memory/table/global/instance pools are the same data
// structure, because both need stable addresses for entries handed out
// between growths (spec §4.8/§9's "segmented list").
type Pool[T any] = pool.Pool[T]

// NewPool returns a ready-to-use Pool.
func NewPool[T any]() Pool[T] { return pool.New[T]() }
