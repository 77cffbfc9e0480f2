package buffer

import (
	"github.com/medakadb/medaka/storage/page"
	"github.com/medakadb/medaka/types"
)

// BufferPoolManager is the page cache surface the access layers build
// on. BufferPoolManagerInstance serves a single pool; ParallelBufferPoolManager
// shards page ids over several instances behind the same interface.
type BufferPoolManager interface {
	// FetchPage returns the pinned frame holding the page, or nil when
	// every frame is pinned or the page cannot be read.
	FetchPage(pageID types.PageID) *page.Page
	// UnpinPage drops one pin and ORs isDirty into the frame's dirty
	// flag. False when the page is not resident or not pinned.
	UnpinPage(pageID types.PageID, isDirty bool) bool
	// FlushPage writes the page out regardless of its dirty flag and
	// clears the flag. False when the page is not resident.
	FlushPage(pageID types.PageID) bool
	// NewPage allocates a fresh page id and returns its pinned frame,
	// or nil when every frame is pinned.
	NewPage() *page.Page
	// DeletePage drops a resident page with no pins and frees its
	// frame. True when the page is gone, false while it is pinned.
	DeletePage(pageID types.PageID) bool
	// FlushAllPages writes every resident page out.
	FlushAllPages()
	// GetPoolSize returns the number of frames.
	GetPoolSize() uint32
}
