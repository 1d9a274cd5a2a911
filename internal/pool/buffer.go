package pool

import "github.com/yairfalse/pulse/internal/logger"

// DefaultBufferLen is the length buffers are created with when no sized
// request drove the allocation.
const DefaultBufferLen = 4096

// BufferPool pools float64 render buffers. The sized acquire path trades
// an extra allocation for simplicity: a reused buffer whose length does
// not match the request goes straight back to the free list and a fresh
// buffer is allocated at the exact size. Resizing in place invites
// partial-state bugs and is deliberately avoided.
type BufferPool struct {
	inner *Pool[[]float64]
}

// NewBufferPool creates a buffer pool holding at most maxSize free
// buffers.
func NewBufferPool(name string, maxSize int, log logger.Logger) *BufferPool {
	inner, _ := New(Config[[]float64]{
		Name:    name,
		MaxSize: maxSize,
		Factory: func() ([]float64, error) {
			return make([]float64, DefaultBufferLen), nil
		},
		Reset: func(buf []float64) {
			for i := range buf {
				buf[i] = 0
			}
		},
		Logger: log,
	})
	return &BufferPool{inner: inner}
}

// Acquire returns a buffer of whatever length the free list offers.
func (bp *BufferPool) Acquire() (*Entry[[]float64], error) {
	return bp.inner.Acquire()
}

// AcquireSized returns a buffer of exactly n elements. A reused entry of
// the wrong length is released back to the pool and replaced by a fresh
// allocation.
func (bp *BufferPool) AcquireSized(n int) (*Entry[[]float64], error) {
	e, err := bp.inner.Acquire()
	if err != nil {
		return nil, err
	}
	if len(e.Value) == n {
		return e, nil
	}

	bp.inner.log.WithFields(map[string]interface{}{
		"have": len(e.Value),
		"want": n,
	}).Debug("pooled buffer size mismatch, allocating fresh")
	bp.inner.Release(e)
	return bp.inner.adopt(make([]float64, n)), nil
}

// Release returns a buffer to the pool.
func (bp *BufferPool) Release(e *Entry[[]float64]) {
	bp.inner.Release(e)
}

// Stats reports the underlying pool occupancy.
func (bp *BufferPool) Stats() Stats {
	return bp.inner.Stats()
}
