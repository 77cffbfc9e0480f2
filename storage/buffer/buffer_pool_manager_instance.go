package buffer

import (
	"fmt"

	"github.com/golang-collections/collections/queue"
	"github.com/ncw/directio"
	"github.com/sasha-s/go-deadlock"

	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/recovery"
	"github.com/medakadb/medaka/storage/disk"
	"github.com/medakadb/medaka/storage/page"
	"github.com/medakadb/medaka/types"
)

// BufferPoolManagerInstance caches a bounded set of pages in memory.
// When it serves as one shard of a ParallelBufferPoolManager it only
// allocates page ids from the progression
// {instanceIndex, instanceIndex+numInstances, ...}, so every page id it
// hands out routes back to it.
type BufferPoolManagerInstance struct {
	poolSize      uint32
	numInstances  uint32
	instanceIndex uint32
	nextPageID    types.PageID
	diskManager   disk.DiskManager
	logManager    *recovery.LogManager
	pages         []*page.Page // index is FrameID
	pageTable     map[types.PageID]FrameID
	freeList      *queue.Queue // of FrameID
	replacer      *LRUReplacer
	mutex         deadlock.Mutex
}

// NewBufferPoolManagerInstance returns a buffer pool that owns the full
// page id space.
func NewBufferPoolManagerInstance(poolSize uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *BufferPoolManagerInstance {
	return newBufferPoolManagerInstance(poolSize, 1, 0, diskManager, logManager)
}

func newBufferPoolManagerInstance(poolSize uint32, numInstances uint32, instanceIndex uint32, diskManager disk.DiskManager, logManager *recovery.LogManager) *BufferPoolManagerInstance {
	common.MD_Assert(numInstances > 0, "if the instance is not part of a pool, the number of instances should just be 1")
	common.MD_Assert(instanceIndex < numInstances, "instance index cannot reach the number of instances in the pool")

	freeList := queue.New()
	pages := make([]*page.Page, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		freeList.Enqueue(FrameID(i))
	}

	return &BufferPoolManagerInstance{
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    types.PageID(instanceIndex),
		diskManager:   diskManager,
		logManager:    logManager,
		pages:         pages,
		pageTable:     make(map[types.PageID]FrameID),
		freeList:      freeList,
		replacer:      NewLRUReplacer(poolSize),
	}
}

// FetchPage fetches the requested page from the buffer pool.
func (b *BufferPoolManagerInstance) FetchPage(pageID types.PageID) *page.Page {
	b.mutex.Lock()

	// if it is on the buffer pool return it
	if frameID, ok := b.pageTable[pageID]; ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.Pin(frameID)
		b.mutex.Unlock()
		if common.EnableDebug {
			common.MdPrintf(common.DEBUG_INFO, "FetchPage: PageId=%d PinCount=%d\n", pg.GetPageId(), pg.PinCount())
		}
		return pg
	}

	frameID, ok := b.evictFrame()
	if !ok {
		b.mutex.Unlock()
		return nil
	}

	data := directio.AlignedBlock(common.PageSize)
	if common.EnableDebug {
		common.MdPrintf(common.CACHE_OUT_IN_INFO, "FetchPage: cache in occurs. requested pageId:%d\n", pageID)
	}
	err := b.diskManager.ReadPage(pageID, data)
	if err != nil {
		if err == types.DeallocatedPageErr {
			// target page was already deallocated
			b.freeList.Enqueue(frameID)
			b.mutex.Unlock()
			return nil
		}
		panic(fmt.Sprintf("FetchPage: I/O error while reading pageId:%d: %v", pageID, err))
	}
	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageID, false, &pageData)

	b.pageTable[pageID] = frameID
	b.pages[frameID] = pg
	b.replacer.Pin(frameID)
	b.mutex.Unlock()

	return pg
}

// UnpinPage unpins the target page from the buffer pool. The dirty hint
// is ORed into the frame's dirty flag, never cleared by it.
func (b *BufferPoolManagerInstance) UnpinPage(pageID types.PageID, isDirty bool) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	pg := b.pages[frameID]

	if isDirty {
		pg.SetIsDirty(true)
	}

	if pg.PinCount() == 0 {
		return false
	}

	pg.DecPinCount()
	if pg.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}

	if common.EnableDebug {
		common.MdPrintf(common.DEBUG_INFO, "UnpinPage: PageId=%d PinCount=%d\n", pg.GetPageId(), pg.PinCount())
	}
	return true
}

// FlushPage writes the target page to disk whether or not it is dirty,
// then clears the dirty flag.
func (b *BufferPoolManagerInstance) FlushPage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.flushPageLocked(pageID)
}

func (b *BufferPoolManagerInstance) flushPageLocked(pageID types.PageID) bool {
	if !pageID.IsValid() {
		return false
	}
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	pg := b.pages[frameID]

	data := pg.Data()
	err := b.diskManager.WritePage(pageID, data[:])
	common.MD_Assert(err == nil, fmt.Sprintf("FlushPage: I/O error while writing pageId:%d", pageID))
	pg.SetIsDirty(false)
	return true
}

// NewPage allocates a new page id out of this instance's progression
// and pins a zeroed frame for it. The freshly allocated page is still
// read back from disk: disk managers return zeros for unwritten pages,
// and that read is part of the contract.
func (b *BufferPoolManagerInstance) NewPage() *page.Page {
	b.mutex.Lock()

	frameID, ok := b.evictFrame()
	if !ok {
		b.mutex.Unlock()
		return nil // the buffer is full and everything is pinned
	}

	pageID := b.allocatePage()

	data := directio.AlignedBlock(common.PageSize)
	err := b.diskManager.ReadPage(pageID, data)
	common.MD_Assert(err == nil, fmt.Sprintf("NewPage: I/O error while reading pageId:%d", pageID))
	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageID, false, &pageData)

	b.pageTable[pageID] = frameID
	b.pages[frameID] = pg
	b.replacer.Pin(frameID)
	b.mutex.Unlock()

	if common.EnableDebug {
		common.MdPrintf(common.DEBUG_INFO, "NewPage: returned pageID: %d\n", pageID)
	}
	return pg
}

// DeletePage removes the page from the buffer pool and deallocates it
// on disk. A page that is not resident is already deleted; a pinned
// page cannot be.
func (b *BufferPoolManagerInstance) DeletePage(pageID types.PageID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return true
	}

	pg := b.pages[frameID]
	if pg.PinCount() > 0 {
		return false
	}

	if pg.IsDirty() {
		b.flushPageLocked(pageID)
	}

	b.diskManager.DeallocatePage(pageID)
	delete(b.pageTable, pageID)
	b.replacer.Pin(frameID)
	b.pages[frameID] = nil
	b.freeList.Enqueue(frameID)

	return true
}

// FlushAllPages flushes all the pages in the buffer pool to disk.
func (b *BufferPoolManagerInstance) FlushAllPages() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for pageID := range b.pageTable {
		b.flushPageLocked(pageID)
	}
}

// GetPoolSize returns the number of frames in this instance
func (b *BufferPoolManagerInstance) GetPoolSize() uint32 {
	return b.poolSize
}

// GetNumResidentPages returns how many pages currently occupy frames
func (b *BufferPoolManagerInstance) GetNumResidentPages() uint32 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return uint32(len(b.pageTable))
}

// evictFrame picks the frame a new page will occupy: the free list
// first, then an LRU victim whose old contents are written back when
// dirty. The caller must hold the instance mutex.
func (b *BufferPoolManagerInstance) evictFrame() (FrameID, bool) {
	if b.freeList.Len() > 0 {
		return b.freeList.Dequeue().(FrameID), true
	}

	victim := b.replacer.Victim()
	if victim == nil {
		return 0, false
	}
	frameID := *victim

	currentPage := b.pages[frameID]
	if currentPage != nil {
		common.MD_Assert(currentPage.PinCount() == 0,
			fmt.Sprintf("evictFrame: pin count of the page to cache out must be zero. pageId:%d PinCount:%d",
				currentPage.GetPageId(), currentPage.PinCount()))
		if currentPage.IsDirty() {
			if common.EnableLogging && b.logManager != nil {
				b.logManager.Flush()
			}
			if common.EnableDebug {
				common.MdPrintf(common.CACHE_OUT_IN_INFO, "evictFrame: cache out occurs. pageId:%d\n", currentPage.GetPageId())
			}
			currentPage.WLatch()
			data := currentPage.Data()
			err := b.diskManager.WritePage(currentPage.GetPageId(), data[:])
			currentPage.WUnlatch()
			common.MD_Assert(err == nil,
				fmt.Sprintf("evictFrame: I/O error while writing pageId:%d", currentPage.GetPageId()))
		}
		delete(b.pageTable, currentPage.GetPageId())
		b.pages[frameID] = nil
	}

	return frameID, true
}

// allocatePage carves the next page id out of this instance's
// arithmetic progression. The caller must hold the instance mutex.
func (b *BufferPoolManagerInstance) allocatePage() types.PageID {
	pageID := b.nextPageID
	b.nextPageID += types.PageID(b.numInstances)
	b.validatePageId(pageID)
	return pageID
}

func (b *BufferPoolManagerInstance) validatePageId(pageID types.PageID) {
	// allocated pages mod back to this instance
	common.MD_Assert(uint32(pageID)%b.numInstances == b.instanceIndex,
		fmt.Sprintf("allocated pageId:%d does not route back to instance %d", pageID, b.instanceIndex))
}
