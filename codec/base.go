package codec

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zsiec/pv4/dv"
)

// DefaultThreadCount returns the number of processors when there is more
// than one, and 0 otherwise.
func DefaultThreadCount() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 0
}

// Base holds the container a codec works on and the per-thread handles a
// backend acquires for each unit of parallel work. The thread count is a
// capacity, not a promise that work runs in parallel.
type Base struct {
	dv      *dv.DV
	threads int

	mu      sync.Mutex
	handles *semaphore.Weighted
	closed  bool
}

// NewBase returns a Base over d provisioning threadCount handles. A
// threadCount of 0 means single-threaded; one handle is still provided.
func NewBase(d *dv.DV, threadCount int) *Base {
	if threadCount < 0 {
		threadCount = 0
	}
	return &Base{
		dv:      d,
		threads: threadCount,
		handles: semaphore.NewWeighted(int64(max(threadCount, 1))),
	}
}

// DV returns the container.
func (b *Base) DV() *dv.DV { return b.dv }

// ThreadCount returns the configured thread count.
func (b *Base) ThreadCount() int { return b.threads }

// Acquire takes one handle, blocking until one is free or ctx is done.
func (b *Base) Acquire(ctx context.Context) error {
	b.mu.Lock()
	h := b.handles
	b.mu.Unlock()
	if h == nil {
		return ErrClosed
	}
	return h.Acquire(ctx, 1)
}

// Release returns a handle taken with Acquire.
func (b *Base) Release() {
	b.mu.Lock()
	h := b.handles
	b.mu.Unlock()
	if h != nil {
		h.Release(1)
	}
}

// CheckClosed returns ErrClosed once Close has been called.
func (b *Base) CheckClosed() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the handles. It does not close the container and is safe
// to call more than once.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handles = nil
	return nil
}
