package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many sequences may be admitted for scheduling at once,
// the same role the teacher's server gives its seqsSem: a caller blocks in
// Acquire until a batch index frees up, rather than growing the store's
// per-layer slot arrays without bound.
type Pool struct {
	sem *semaphore.Weighted
	n   int
}

// NewPool returns a Pool admitting at most n sequences concurrently.
func NewPool(n int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release frees a previously acquired slot.
func (p *Pool) Release() { p.sem.Release(1) }

// Cap reports the pool's admission bound.
func (p *Pool) Cap() int { return p.n }
