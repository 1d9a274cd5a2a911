package leak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// advance shifts the registry's clock forward without sleeping.
func advance(r *Registry, d time.Duration) {
	base := r.now()
	r.now = func() time.Time { return base.Add(d) }
}

func TestRegistry_RegisterAndStats(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("series-1", "series", 2048)
	r.Register("series-2", "series", 1024)
	r.Link("series-1", "series-2")

	s := r.Stats()
	assert.Equal(t, 2, s.Registered)
	assert.Equal(t, int64(3072), s.TotalBytes)
	assert.Equal(t, 1, s.Edges)
	assert.Equal(t, 0, s.OrphanCandidates)
}

func TestRegistry_ReregisterKeepsEdges(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("a", "series", 100)
	r.Register("b", "series", 100)
	r.Link("a", "b")

	r.Register("a", "series", 500)

	s := r.Stats()
	assert.Equal(t, 2, s.Registered)
	assert.Equal(t, int64(600), s.TotalBytes, "re-register refreshes metadata")
	assert.Equal(t, 1, s.Edges, "re-register keeps outgoing edges")
}

func TestRegistry_LinkRequiresBothEnds(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("a", "series", 100)
	r.Link("a", "ghost")
	r.Link("ghost", "a")

	assert.Equal(t, 0, r.Stats().Edges)
}

func TestRegistry_CleanupRemovesStaleUnreferenced(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("stale", "buffer", 100)
	r.Register("fresh", "buffer", 100)

	advance(r, 2*time.Minute)
	r.Touch("fresh")

	removed := r.Cleanup()
	assert.Equal(t, 1, removed)

	s := r.Stats()
	assert.Equal(t, 1, s.Registered)
	assert.Equal(t, 0, s.OrphanCandidates, "touched object survives")
}

func TestRegistry_TouchProtectsWithinWindow(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("a", "buffer", 100)
	advance(r, 45*time.Second)
	r.Touch("a")
	advance(r, 30*time.Second)

	// Last access is 30s ago, inside the one minute window.
	assert.Equal(t, 0, r.Cleanup())
	assert.Empty(t, r.Orphans())
}

func TestRegistry_IncomingEdgeBlocksCleanup(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("parent", "view", 100)
	r.Register("child", "series", 100)
	r.Link("parent", "child")

	advance(r, 2*time.Minute)

	// Both are stale, but child has an incoming edge from a registered
	// object, so only parent goes.
	removed := r.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Stats().Registered)

	// No cascade within a pass: the child becomes eligible only now.
	removed = r.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, r.Stats().Registered)
}

func TestRegistry_UnlinkReleasesDependent(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("parent", "view", 100)
	r.Register("child", "series", 100)
	r.Link("parent", "child")

	advance(r, 2*time.Minute)
	r.Touch("parent")
	r.Unlink("parent", "child")

	removed := r.Cleanup()
	assert.Equal(t, 1, removed)
	_, ok := r.objects["child"]
	assert.False(t, ok)
}

func TestRegistry_OrphansIgnoreStaleChainsWithLiveRoot(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	// root -> mid -> leaf, only root stays touched.
	r.Register("root", "view", 100)
	r.Register("mid", "series", 100)
	r.Register("leaf", "buffer", 100)
	r.Link("root", "mid")
	r.Link("mid", "leaf")

	advance(r, 2*time.Minute)
	r.Touch("root")

	assert.Empty(t, r.Orphans(), "liveness reaches the whole chain")
	assert.Equal(t, 0, r.OrphanCount())
}

func TestRegistry_OrphanCycleDetected(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	// Two stale objects keeping each other referenced.
	r.Register("a", "series", 100)
	r.Register("b", "series", 100)
	r.Link("a", "b")
	r.Link("b", "a")

	advance(r, 2*time.Minute)

	orphans := r.Orphans()
	assert.ElementsMatch(t, []string{"a", "b"}, orphans, "mutual references do not keep stale objects alive")
}

func TestRegistry_DeregisterDropsEdges(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	r.Register("parent", "view", 100)
	r.Register("child", "series", 100)
	r.Link("parent", "child")

	r.Deregister("parent")
	advance(r, 2*time.Minute)

	// The dangling edge no longer counts as incoming.
	assert.Equal(t, 1, r.Cleanup())
	assert.Equal(t, 0, r.Stats().Registered)
}
