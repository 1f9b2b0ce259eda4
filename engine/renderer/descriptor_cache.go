package renderer

import (
	"sync"

	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// DescriptorSetCache hands out descriptor sets for shader programs, keeping
// one DescriptorPool per distinct set layout. Layouts are matched by their
// reflection hash, so two programs with identical set layouts share a pool.
type DescriptorSetCache struct {
	backend        gpu.Backend
	maxSetsPerPool uint32

	mu    sync.Mutex
	pools map[uint64]*DescriptorPool
}

func NewDescriptorSetCache(backend gpu.Backend, maxSetsPerPool uint32) *DescriptorSetCache {
	return &DescriptorSetCache{
		backend:        backend,
		maxSetsPerPool: maxSetsPerPool,
		pools:          make(map[uint64]*DescriptorPool),
	}
}

// Allocate returns a ref-counted descriptor set for one set index of the
// given program, creating the backing pool on first use of that layout.
func (c *DescriptorSetCache) Allocate(program *ShaderProgram, set uint32) (*DescriptorSetRef, error) {
	layout, ok := program.SetLayout(set)
	if !ok {
		return nil, core.ConfigurationError("shader program has no descriptor set %d", set)
	}

	pool := c.poolFor(program.Reflection(), set, layout)
	return pool.Allocate()
}

func (c *DescriptorSetCache) poolFor(reflection *Reflection, set uint32, layout gpu.DescriptorSetLayout) *DescriptorPool {
	key := reflection.SetHash(set)

	c.mu.Lock()
	defer c.mu.Unlock()

	pool, ok := c.pools[key]
	if !ok {
		pool = NewDescriptorPool(c.backend, layout, reflection.TypeCounts(set), c.maxSetsPerPool)
		c.pools[key] = pool
	}
	return pool
}

// PoolCount reports how many distinct layouts have pools.
func (c *DescriptorSetCache) PoolCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools)
}

// Destroy tears down every pool. Callers must ensure no in-flight work
// still references sets from this cache.
func (c *DescriptorSetCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, pool := range c.pools {
		pool.Destroy()
		delete(c.pools, key)
	}
}
