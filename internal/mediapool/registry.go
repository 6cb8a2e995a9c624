package mediapool

import (
	"sort"
	"sync"
)

// Registry maps containers to their pool. Each container gets exactly one
// pool, created on first use.
type Registry struct {
	mu    sync.Mutex
	pools map[ContainerID]*Pool
	opts  []PoolOption
}

// NewRegistry returns an empty registry. opts apply to every pool it creates.
func NewRegistry(opts ...PoolOption) *Registry {
	return &Registry{
		pools: make(map[ContainerID]*Pool),
		opts:  opts,
	}
}

// PoolFor returns the pool of container, creating it if needed.
func (r *Registry) PoolFor(container ContainerID) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[container]; ok {
		return p
	}
	p := NewPool(container, r.opts...)
	r.pools[container] = p
	return p
}

// HasPool reports whether a pool exists for container.
func (r *Registry) HasPool(container ContainerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pools[container]
	return ok
}

// Lookup returns the pool of container without creating one.
func (r *Registry) Lookup(container ContainerID) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[container]
	return p, ok
}

// Teardown closes the pool of container and forgets it. A later PoolFor
// creates a fresh pool.
func (r *Registry) Teardown(container ContainerID) bool {
	r.mu.Lock()
	p, ok := r.pools[container]
	delete(r.pools, container)
	r.mu.Unlock()

	if ok {
		p.Close()
	}
	return ok
}

// Containers returns the ids of every container with a pool, sorted.
func (r *Registry) Containers() []ContainerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]ContainerID, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
