package renderer

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/mirage/engine/containers"
	"github.com/spaghettifunk/mirage/engine/core"
	"github.com/spaghettifunk/mirage/engine/renderer/gpu"
)

// DefaultMaxSetsPerPool caps descriptor set allocations per backing pool.
const DefaultMaxSetsPerPool uint32 = 64

// DescriptorPool allocates descriptor sets of a single layout from a
// growable list of backing pools. Pools are append-only: once created they
// are reused, never shrunk, for the lifetime of the cache. Released sets go
// through a recycle queue and are handed out again before fresh allocations.
type DescriptorPool struct {
	backend        gpu.Backend
	layout         gpu.DescriptorSetLayout
	typeCounts     map[gpu.DescriptorType]uint32
	maxSetsPerPool uint32

	mu       sync.Mutex
	records  []*poolRecord
	recycled *containers.RingQueue[recycledSet]
}

// poolRecord tracks one backing pool handle and how many sets have been
// allocated from it. The count never exceeds maxSetsPerPool.
type poolRecord struct {
	handle          gpu.DescriptorPool
	allocationCount uint32
}

type recycledSet struct {
	set    gpu.DescriptorSet
	record *poolRecord
}

// NewDescriptorPool builds a pool for one set layout. typeCounts is the
// layout's resource-type histogram, computed once from reflection.
func NewDescriptorPool(backend gpu.Backend, layout gpu.DescriptorSetLayout, typeCounts map[gpu.DescriptorType]uint32, maxSetsPerPool uint32) *DescriptorPool {
	if maxSetsPerPool == 0 {
		maxSetsPerPool = DefaultMaxSetsPerPool
	}
	return &DescriptorPool{
		backend:        backend,
		layout:         layout,
		typeCounts:     typeCounts,
		maxSetsPerPool: maxSetsPerPool,
		recycled:       containers.NewRingQueue[recycledSet](int(maxSetsPerPool) * 4),
	}
}

// Allocate returns a reference-counted descriptor set of the pool's layout.
// It selects the last backing pool with room, creating and appending a new
// one when every pool is at capacity. Fails only when the backend itself is
// out of memory.
func (dp *DescriptorPool) Allocate() (*DescriptorSetRef, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if rec, err := dp.recycled.Dequeue(); err == nil {
		return newDescriptorSetRef(dp, rec.record, rec.set), nil
	}

	record, err := dp.selectRecord()
	if err != nil {
		return nil, err
	}

	set, err := dp.backend.AllocateDescriptorSet(record.handle, dp.layout)
	if err != nil {
		return nil, err
	}
	record.allocationCount++

	return newDescriptorSetRef(dp, record, set), nil
}

// selectRecord picks the newest pool that still has room, appending a fresh
// backing pool sized by the layout's histogram when none does.
func (dp *DescriptorPool) selectRecord() (*poolRecord, error) {
	if n := len(dp.records); n > 0 {
		if r := dp.records[n-1]; r.allocationCount < dp.maxSetsPerPool {
			return r, nil
		}
	}

	sizes := make(map[gpu.DescriptorType]uint32, len(dp.typeCounts))
	for t, c := range dp.typeCounts {
		sizes[t] = c * dp.maxSetsPerPool
	}
	handle, err := dp.backend.CreateDescriptorPool(sizes, dp.maxSetsPerPool)
	if err != nil {
		return nil, err
	}

	record := &poolRecord{handle: handle}
	dp.records = append(dp.records, record)
	core.LogDebug("descriptor pool grown to %d backing pools", len(dp.records))
	return record, nil
}

// release returns a set whose last reference was dropped. The set is queued
// for reuse; if the recycle queue is full it is freed back to its backing
// pool instead.
func (dp *DescriptorPool) release(record *poolRecord, set gpu.DescriptorSet) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if err := dp.recycled.Enqueue(recycledSet{set: set, record: record}); err != nil {
		if err := dp.backend.FreeDescriptorSet(record.handle, set); err != nil {
			core.LogWarn("freeing descriptor set: %s", err)
			return
		}
		record.allocationCount--
	}
}

// PoolCount reports how many backing pools exist.
func (dp *DescriptorPool) PoolCount() int {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return len(dp.records)
}

// Destroy drops the recycle queue and every backing pool. Callers must
// ensure no set allocated from this pool is referenced by in-flight work.
func (dp *DescriptorPool) Destroy() {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	for !dp.recycled.IsEmpty() {
		dp.recycled.Dequeue()
	}
	for _, r := range dp.records {
		dp.backend.DestroyDescriptorPool(r.handle)
	}
	dp.records = nil
}

// DescriptorSetRef is a reference-counted handle to an allocated descriptor
// set. The set itself is owned by the backing pool that allocated it; every
// live ref borrows it. When the last ref is released the set returns to its
// pool for reuse.
type DescriptorSetRef struct {
	pool   *DescriptorPool
	record *poolRecord
	set    gpu.DescriptorSet
	refs   atomic.Int32
}

func newDescriptorSetRef(pool *DescriptorPool, record *poolRecord, set gpu.DescriptorSet) *DescriptorSetRef {
	ref := &DescriptorSetRef{pool: pool, record: record, set: set}
	ref.refs.Store(1)
	return ref
}

// Set returns the underlying descriptor set handle.
func (r *DescriptorSetRef) Set() gpu.DescriptorSet {
	return r.set
}

// Retain adds one reference.
func (r *DescriptorSetRef) Retain() *DescriptorSetRef {
	r.refs.Add(1)
	return r
}

// Release drops one reference; the last release returns the set to its
// pool. Using the ref after its last release is a caller error.
func (r *DescriptorSetRef) Release() {
	if r.refs.Add(-1) == 0 {
		r.pool.release(r.record, r.set)
	}
}

// BindUniformBuffer writes a buffer resource into one binding slot. The
// write is observable by subsequent recordings immediately; rewriting a set
// still referenced by in-flight work requires waiting the owning frame
// slot's fence first.
func (r *DescriptorSetRef) BindUniformBuffer(binding uint32, buffer gpu.Buffer, offset, size uint64) error {
	return r.pool.backend.WriteDescriptor(r.set, binding, gpu.Resource{
		Type:         gpu.DescriptorUniformBuffer,
		Buffer:       buffer,
		BufferOffset: offset,
		BufferRange:  size,
	})
}

// BindCombinedImageSampler writes a sampled image into one binding slot.
func (r *DescriptorSetRef) BindCombinedImageSampler(binding uint32, image gpu.Image) error {
	return r.pool.backend.WriteDescriptor(r.set, binding, gpu.Resource{
		Type:        gpu.DescriptorCombinedImageSampler,
		Image:       image,
		ImageLayout: gpu.ImageLayoutShaderReadOnly,
	})
}

// BindStorageImage writes a storage image into one binding slot.
func (r *DescriptorSetRef) BindStorageImage(binding uint32, image gpu.Image) error {
	return r.pool.backend.WriteDescriptor(r.set, binding, gpu.Resource{
		Type:        gpu.DescriptorStorageImage,
		Image:       image,
		ImageLayout: gpu.ImageLayoutGeneral,
	})
}
