package scheduler

import (
	"sync"

	"github.com/lafikl/consistent"
)

// AffinityRouter resolves an arbitrary affinity key (e.g. a client session
// id) to a preferred engine, so repeated submissions sharing a key tend to
// land on the same engine — useful for engines that cache state between
// tasks. It composes with, rather than replaces, the ipyparallel placement
// pipeline: a resolved engine is installed as the submission's sole
// Targets entry before normal follow/blacklist/hwm processing runs, so an
// unavailable or blacklisted sticky engine still falls back to ordinary
// unreachability handling.
//
// Grounded on orchestrator/loadbalancer.go's ConsistentHashLoadBalancer,
// repurposed from "select the one engine for a workflow" to "suggest a
// preferred engine for a submission".
type AffinityRouter struct {
	ring *consistent.Consistent
	mu   sync.RWMutex
}

// NewAffinityRouter creates an empty router.
func NewAffinityRouter() *AffinityRouter {
	return &AffinityRouter{ring: consistent.New()}
}

// AddEngine adds id to the hash ring.
func (r *AffinityRouter) AddEngine(id EngineID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring.Add(string(id))
}

// RemoveEngine removes id from the hash ring.
func (r *AffinityRouter) RemoveEngine(id EngineID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring.Remove(string(id))
}

// Resolve returns the engine key should stick to, if any engine is
// currently registered.
func (r *AffinityRouter) Resolve(key string) (EngineID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.ring.Hosts()) == 0 {
		return "", false
	}
	id, err := r.ring.Get(key)
	if err != nil {
		return "", false
	}
	return EngineID(id), true
}
