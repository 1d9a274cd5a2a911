package pool

import (
	stderrors "errors"
	"sync"

	"github.com/yairfalse/pulse/internal/errors"
	"github.com/yairfalse/pulse/internal/logger"
)

// ErrNilFactory is returned by New when no factory is configured.
var ErrNilFactory = stderrors.New("pool: factory must not be nil")

// Entry is a pooled value. Callers borrow an entry exclusively between
// Acquire and Release and must not hold it past Release. Entry identity
// (the pointer) is what ties a borrowed value back to its pool.
type Entry[T any] struct {
	Value T

	owner  *Pool[T]
	active bool
}

// Config configures a Pool.
type Config[T any] struct {
	// Name identifies the pool in logs and stats.
	Name string
	// MaxSize bounds the free list. Released entries beyond MaxSize are
	// dropped and reclaimed by the garbage collector.
	MaxSize int
	// Factory constructs a new value when the free list is empty.
	Factory func() (T, error)
	// Reset restores a value to a reusable state before it re-enters the
	// free list. Optional.
	Reset func(T)
	// Logger receives misuse diagnostics. Optional.
	Logger logger.Logger
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Name        string  `json:"name"`
	Free        int     `json:"free"`
	Active      int     `json:"active"`
	Total       int     `json:"total"`
	Utilization float64 `json:"utilization"`
}

// Pool bounds how many instances of an expensive object exist at once.
// Reuse is LIFO: Acquire pops the most recently released entry, which
// keeps hot objects hot.
type Pool[T any] struct {
	mu     sync.Mutex
	name   string
	max    int
	make   func() (T, error)
	reset  func(T)
	log    logger.Logger
	free   []*Entry[T]
	active map[*Entry[T]]struct{}
}

// New creates a pool from cfg. MaxSize values below 1 fall back to 1.
func New[T any](cfg Config[T]) (*Pool[T], error) {
	if cfg.Factory == nil {
		return nil, ErrNilFactory
	}
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool[T]{
		name:   cfg.Name,
		max:    cfg.MaxSize,
		make:   cfg.Factory,
		reset:  cfg.Reset,
		log:    log.WithField("pool", cfg.Name),
		active: make(map[*Entry[T]]struct{}),
	}, nil
}

// Acquire returns a free entry if one exists, else constructs a new one
// via the factory. A factory failure is returned as *errors.AllocationError
// and leaves the pool unchanged.
func (p *Pool[T]) Acquire() (*Entry[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		e := p.free[n-1]
		p.free = p.free[:n-1]
		e.active = true
		p.active[e] = struct{}{}
		return e, nil
	}

	v, err := p.make()
	if err != nil {
		return nil, errors.NewAllocationError(p.name, err)
	}

	e := &Entry[T]{Value: v, owner: p, active: true}
	p.active[e] = struct{}{}
	return e, nil
}

// Release returns an entry to the pool. Releasing an entry that is not
// currently active in this pool (foreign, already released, or nil) is
// logged and ignored. Entries released while the free list is full are
// dropped rather than retained.
func (p *Pool[T]) Release(e *Entry[T]) {
	if e == nil {
		p.misuse("release of nil entry ignored")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e.owner != p {
		p.misuse("release of entry owned by another pool ignored")
		return
	}
	if _, ok := p.active[e]; !ok {
		p.misuse("release of inactive entry ignored")
		return
	}

	delete(p.active, e)
	e.active = false

	if p.reset != nil {
		p.reset(e.Value)
	}

	if len(p.free) < p.max {
		p.free = append(p.free, e)
	}
	// Beyond capacity the entry is simply dropped; the runtime reclaims it.
}

// Stats reports free, active and total counts plus utilization
// (active / total). An empty pool reports zero utilization.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Name:   p.name,
		Free:   len(p.free),
		Active: len(p.active),
	}
	s.Total = s.Free + s.Active
	if s.Total > 0 {
		s.Utilization = float64(s.Active) / float64(s.Total)
	}
	return s
}

// misuse logs an API-misuse diagnostic. Misuse never propagates as an
// error; the operation is a no-op.
func (p *Pool[T]) misuse(msg string) {
	p.log.WithField("error_type", string(errors.ErrorTypeMisuse)).Warn(msg)
}

// adopt registers an externally constructed value as an active entry.
// Used by sized specializations that must allocate at an exact size
// instead of reshaping a reused value.
func (p *Pool[T]) adopt(v T) *Entry[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := &Entry[T]{Value: v, owner: p, active: true}
	p.active[e] = struct{}{}
	return e
}
