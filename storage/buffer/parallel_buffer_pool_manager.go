package buffer

import (
	"github.com/sasha-s/go-deadlock"

	"github.com/medakadb/medaka/recovery"
	"github.com/medakadb/medaka/storage/disk"
	"github.com/medakadb/medaka/storage/page"
	"github.com/medakadb/medaka/types"
)

// ParallelBufferPoolManager shards the page id space over independent
// buffer pool instances. Every page id belongs to exactly one instance
// (page id mod the number of instances), so instances never contend for
// the same page and their mutexes stay disjoint.
type ParallelBufferPoolManager struct {
	instances    []*BufferPoolManagerInstance
	numInstances uint32
	poolSize     uint32 // frames per instance
	startIndex   uint32
	mutex        deadlock.Mutex
}

// NewParallelBufferPoolManager creates numInstances buffer pool
// instances of poolSize frames each, sharing one disk and log manager.
func NewParallelBufferPoolManager(numInstances uint32, poolSize uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *ParallelBufferPoolManager {
	instances := make([]*BufferPoolManagerInstance, numInstances)
	for i := uint32(0); i < numInstances; i++ {
		instances[i] = newBufferPoolManagerInstance(poolSize, numInstances, i, diskManager, logManager)
	}

	return &ParallelBufferPoolManager{
		instances:    instances,
		numInstances: numInstances,
		poolSize:     poolSize,
	}
}

// getBufferPoolManager routes a page id to the instance that owns it
func (p *ParallelBufferPoolManager) getBufferPoolManager(pageID types.PageID) *BufferPoolManagerInstance {
	return p.instances[uint32(pageID)%p.numInstances]
}

// FetchPage fetches the page from the responsible instance.
func (p *ParallelBufferPoolManager) FetchPage(pageID types.PageID) *page.Page {
	return p.getBufferPoolManager(pageID).FetchPage(pageID)
}

// UnpinPage unpins the page at the responsible instance.
func (p *ParallelBufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) bool {
	return p.getBufferPoolManager(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage flushes the page at the responsible instance.
func (p *ParallelBufferPoolManager) FlushPage(pageID types.PageID) bool {
	return p.getBufferPoolManager(pageID).FlushPage(pageID)
}

// NewPage asks the instances for a new page in round-robin order,
// starting one instance further on every call. Spreading the starting
// point spreads allocation pressure when some instances have every
// frame pinned.
func (p *ParallelBufferPoolManager) NewPage() *page.Page {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	index := p.startIndex
	var pg *page.Page
	for {
		pg = p.instances[index].NewPage()
		if pg != nil {
			break
		}
		index = (index + 1) % p.numInstances
		if index == p.startIndex {
			break
		}
	}

	p.startIndex = (p.startIndex + 1) % p.numInstances
	return pg
}

// DeletePage deletes the page at the responsible instance.
func (p *ParallelBufferPoolManager) DeletePage(pageID types.PageID) bool {
	return p.getBufferPoolManager(pageID).DeletePage(pageID)
}

// FlushAllPages flushes every resident page of every instance.
func (p *ParallelBufferPoolManager) FlushAllPages() {
	for _, instance := range p.instances {
		instance.FlushAllPages()
	}
}

// GetPoolSize returns the total number of frames across all instances
func (p *ParallelBufferPoolManager) GetPoolSize() uint32 {
	return p.numInstances * p.poolSize
}

// GetNumResidentPages returns how many pages occupy frames across all
// instances
func (p *ParallelBufferPoolManager) GetNumResidentPages() uint32 {
	total := uint32(0)
	for _, instance := range p.instances {
		total += instance.GetNumResidentPages()
	}
	return total
}
