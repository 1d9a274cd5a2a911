package pool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/pulse/internal/errors"
)

func newIntPool(t *testing.T, maxSize int) (*Pool[int], *int) {
	t.Helper()

	made := 0
	p, err := New(Config[int]{
		Name:    "test",
		MaxSize: maxSize,
		Factory: func() (int, error) {
			made++
			return made, nil
		},
	})
	require.NoError(t, err)
	return p, &made
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Config[int]{Name: "broken"})
	assert.ErrorIs(t, err, ErrNilFactory)
}

func TestPool_AcquireRelease(t *testing.T) {
	p, made := newIntPool(t, 4)

	e, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, e.Value)
	assert.Equal(t, 1, *made)

	s := p.Stats()
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 0, s.Free)
	assert.Equal(t, 1.0, s.Utilization)

	p.Release(e)
	s = p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 1, s.Free)
	assert.Equal(t, 0.0, s.Utilization)

	// Reacquiring must reuse the released entry, not build a new one.
	e2, err := p.Acquire()
	require.NoError(t, err)
	assert.Same(t, e, e2)
	assert.Equal(t, 1, *made)
}

func TestPool_ReuseIsLIFO(t *testing.T) {
	p, _ := newIntPool(t, 4)

	a, err := p.Acquire()
	require.NoError(t, err)
	b, err := p.Acquire()
	require.NoError(t, err)

	p.Release(a)
	p.Release(b)

	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Same(t, b, got, "most recently released entry comes back first")
}

func TestPool_FreeListBounded(t *testing.T) {
	p, _ := newIntPool(t, 2)

	entries := make([]*Entry[int], 0, 5)
	for i := 0; i < 5; i++ {
		e, err := p.Acquire()
		require.NoError(t, err)
		entries = append(entries, e)
	}
	assert.Equal(t, 5, p.Stats().Active)

	for _, e := range entries {
		p.Release(e)
	}

	s := p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 2, s.Free, "free list never exceeds MaxSize")
	assert.Equal(t, 2, s.Total)
}

func TestPool_CountsStayConsistent(t *testing.T) {
	p, _ := newIntPool(t, 3)

	held := make([]*Entry[int], 0, 8)
	for round := 0; round < 4; round++ {
		for i := 0; i < 2; i++ {
			e, err := p.Acquire()
			require.NoError(t, err)
			held = append(held, e)
		}
		p.Release(held[0])
		held = held[1:]

		s := p.Stats()
		assert.Equal(t, len(held), s.Active)
		assert.LessOrEqual(t, s.Free, 3)
		assert.Equal(t, s.Free+s.Active, s.Total)
	}
}

func TestPool_DoubleReleaseIgnored(t *testing.T) {
	p, _ := newIntPool(t, 4)

	e, err := p.Acquire()
	require.NoError(t, err)
	p.Release(e)
	p.Release(e)

	s := p.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 1, s.Free, "second release must not duplicate the entry")
}

func TestPool_ForeignReleaseIgnored(t *testing.T) {
	p1, _ := newIntPool(t, 4)
	p2, _ := newIntPool(t, 4)

	e, err := p1.Acquire()
	require.NoError(t, err)

	p2.Release(e)
	assert.Equal(t, 0, p2.Stats().Total, "foreign entry must not enter the pool")
	assert.Equal(t, 1, p1.Stats().Active, "entry stays active in its own pool")

	p1.Release(e)
	assert.Equal(t, 1, p1.Stats().Free)
}

func TestPool_NilReleaseIgnored(t *testing.T) {
	p, _ := newIntPool(t, 4)
	p.Release(nil)
	assert.Equal(t, 0, p.Stats().Total)
}

func TestPool_FactoryFailure(t *testing.T) {
	boom := fmt.Errorf("out of contexts")
	p, err := New(Config[int]{
		Name: "gpu-contexts",
		Factory: func() (int, error) {
			return 0, boom
		},
	})
	require.NoError(t, err)

	_, err = p.Acquire()
	require.Error(t, err)
	assert.True(t, errors.IsAllocationError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Stats().Total, "failed acquire leaves the pool unchanged")
}

func TestPool_ResetRunsOnRelease(t *testing.T) {
	resets := 0
	p, err := New(Config[[]float64]{
		Name:    "buffers",
		MaxSize: 2,
		Factory: func() ([]float64, error) { return make([]float64, 8), nil },
		Reset: func(buf []float64) {
			resets++
			for i := range buf {
				buf[i] = 0
			}
		},
	})
	require.NoError(t, err)

	e, err := p.Acquire()
	require.NoError(t, err)
	e.Value[3] = 42
	p.Release(e)

	assert.Equal(t, 1, resets)

	e2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0.0, e2.Value[3], "reused buffer arrives zeroed")
}

func TestBufferPool_AcquireSized(t *testing.T) {
	bp := NewBufferPool("render", 4, nil)

	e, err := bp.AcquireSized(100)
	require.NoError(t, err)
	assert.Len(t, e.Value, 100)
	bp.Release(e)

	// Same size comes back from the free list.
	e2, err := bp.AcquireSized(100)
	require.NoError(t, err)
	assert.Same(t, e, e2)
	bp.Release(e2)

	// A mismatched request leaves the reused buffer pooled and allocates
	// fresh at the exact size.
	e3, err := bp.AcquireSized(250)
	require.NoError(t, err)
	assert.Len(t, e3.Value, 250)
	assert.NotSame(t, e, e3)
	bp.Release(e3)

	s := bp.Stats()
	assert.Equal(t, 0, s.Active)
	assert.Equal(t, 2, s.Free)
}

func TestBufferPool_DefaultLen(t *testing.T) {
	bp := NewBufferPool("render", 2, nil)

	e, err := bp.Acquire()
	require.NoError(t, err)
	assert.Len(t, e.Value, DefaultBufferLen)
	bp.Release(e)
}
