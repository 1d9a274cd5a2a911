package leak

import (
	"sync"
	"time"

	"github.com/yairfalse/pulse/internal/logger"
)

// Object is a tracked application object. Objects are keyed by opaque
// stable ids supplied at registration; the registry never inspects the
// application value itself.
type Object struct {
	ID             string    `json:"id"`
	TypeTag        string    `json:"type_tag"`
	EstimatedBytes int64     `json:"estimated_bytes"`
	RegisteredAt   time.Time `json:"registered_at"`
	LastAccess     time.Time `json:"last_access"`

	refs map[string]struct{}
}

// Stats summarizes the registry for the memory monitor. It is a
// heuristic leak signal, not a reachability guarantee.
type Stats struct {
	Registered       int   `json:"registered"`
	TotalBytes       int64 `json:"total_bytes"`
	OrphanCandidates int   `json:"orphan_candidates"`
	Edges            int   `json:"edges"`
}

// Registry tracks live application objects, their approximate byte cost,
// last-access times, and a directed reference graph between them. It
// surfaces orphan candidates: stale objects nothing live points at.
// Orphan status is advisory; nothing is reclaimed automatically.
type Registry struct {
	mu        sync.Mutex
	objects   map[string]*Object
	staleness time.Duration
	log       logger.Logger
	now       func() time.Time
}

// NewRegistry creates a registry with the given staleness window. An
// object untouched for longer than the window becomes an orphan
// candidate once no live referrer remains.
func NewRegistry(staleness time.Duration, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		objects:   make(map[string]*Object),
		staleness: staleness,
		log:       log,
		now:       time.Now,
	}
}

// Register starts tracking an object. Re-registering an id refreshes its
// metadata and last-access time but keeps existing outgoing edges.
func (r *Registry) Register(id, typeTag string, estimatedBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.objects[id]; ok {
		existing.TypeTag = typeTag
		existing.EstimatedBytes = estimatedBytes
		existing.LastAccess = now
		return
	}

	r.objects[id] = &Object{
		ID:             id,
		TypeTag:        typeTag,
		EstimatedBytes: estimatedBytes,
		RegisteredAt:   now,
		LastAccess:     now,
		refs:           make(map[string]struct{}),
	}
}

// Touch updates an object's last-access time. Cheap and idempotent;
// unknown ids are ignored.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obj, ok := r.objects[id]; ok {
		obj.LastAccess = r.now()
	}
}

// Link records a directed "from retains to" edge. Both ends must be
// registered; anything else is logged and ignored.
func (r *Registry) Link(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.objects[from]
	if !ok {
		r.log.WithField("id", from).Warn("link from unregistered object ignored")
		return
	}
	if _, ok := r.objects[to]; !ok {
		r.log.WithField("id", to).Warn("link to unregistered object ignored")
		return
	}
	src.refs[to] = struct{}{}
}

// Unlink removes a previously recorded edge. Unknown edges are ignored.
func (r *Registry) Unlink(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if src, ok := r.objects[from]; ok {
		delete(src.refs, to)
	}
}

// Deregister stops tracking an object and drops its outgoing edges.
// Edges pointing at it from elsewhere remain until their owners drop
// them or are removed.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.objects, id)
}

// Cleanup removes objects that are stale and have no incoming edge from
// any still-registered object. Removal does not cascade: a dependent
// that loses its sole referrer here becomes eligible only on the next
// pass. Returns the number of objects removed.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.staleness)
	incoming := r.incomingCounts()

	var victims []string
	for id, obj := range r.objects {
		if obj.LastAccess.After(cutoff) {
			continue
		}
		if incoming[id] > 0 {
			continue
		}
		victims = append(victims, id)
	}

	for _, id := range victims {
		delete(r.objects, id)
	}

	if len(victims) > 0 {
		r.log.WithField("removed", len(victims)).Debug("cleanup pass removed stale objects")
	}
	return len(victims)
}

// Orphans returns ids of orphan candidates: stale objects whose every
// incoming edge comes from another orphan candidate. Computed as a
// fixpoint so that a stale chain with a live root is never reported.
func (r *Registry) Orphans() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.orphanSet()
}

// Stats returns registry-wide counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Registered: len(r.objects)}
	for _, obj := range r.objects {
		s.TotalBytes += obj.EstimatedBytes
		s.Edges += len(obj.refs)
	}
	s.OrphanCandidates = len(r.orphanSet())
	return s
}

// OrphanCount returns the number of orphan candidates. Satisfies the
// monitor's leak signal interface without exposing the full stats.
func (r *Registry) OrphanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.orphanSet())
}

// incomingCounts computes incoming-edge counts for every object. Edges
// to unregistered ids are skipped. Caller holds the lock.
func (r *Registry) incomingCounts() map[string]int {
	incoming := make(map[string]int, len(r.objects))
	for _, obj := range r.objects {
		for to := range obj.refs {
			if _, ok := r.objects[to]; ok {
				incoming[to]++
			}
		}
	}
	return incoming
}

// orphanSet finds stale objects with no live (non-orphan) referrer by
// iterating to a fixpoint. Caller holds the lock.
func (r *Registry) orphanSet() []string {
	cutoff := r.now().Add(-r.staleness)

	// An object touched within the window can never be an orphan,
	// regardless of edges.
	live := make(map[string]bool, len(r.objects))
	for id, obj := range r.objects {
		live[id] = obj.LastAccess.After(cutoff)
	}

	// Liveness propagates along edges until stable.
	for changed := true; changed; {
		changed = false
		for id, obj := range r.objects {
			if !live[id] {
				continue
			}
			for to := range obj.refs {
				if _, ok := r.objects[to]; ok && !live[to] {
					live[to] = true
					changed = true
				}
			}
		}
	}

	var orphans []string
	for id := range r.objects {
		if !live[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}
