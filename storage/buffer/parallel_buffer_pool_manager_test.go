package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medakadb/medaka/storage/disk"
	"github.com/medakadb/medaka/types"
)

func TestParallelBPMSharding(t *testing.T) {
	numInstances := uint32(5)
	poolSize := uint32(10)

	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewParallelBufferPoolManager(numInstances, poolSize, dm, nil)

	assert.Equal(t, numInstances*poolSize, bpm.GetPoolSize())

	// every allocated page id routes back to the instance that owns it
	seen := make(map[types.PageID]bool)
	for i := 0; i < 20; i++ {
		p := bpm.NewPage()
		require.NotNil(t, p)
		pageID := p.GetPageId()
		assert.False(t, seen[pageID], "page id %d allocated twice", pageID)
		seen[pageID] = true
		owner := bpm.getBufferPoolManager(pageID)
		assert.Equal(t, uint32(pageID)%numInstances, owner.instanceIndex)
		require.True(t, bpm.UnpinPage(pageID, false))
	}
}

func TestParallelBPMRoundRobinNewPage(t *testing.T) {
	numInstances := uint32(3)

	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewParallelBufferPoolManager(numInstances, 2, dm, nil)

	// the starting instance advances by one on every call, so the first
	// allocations walk the instances in order
	for i := 0; i < 3; i++ {
		p := bpm.NewPage()
		require.NotNil(t, p)
		assert.Equal(t, types.PageID(i), p.GetPageId())
	}
}

func TestParallelBPMExhaustionFallsOver(t *testing.T) {
	numInstances := uint32(2)
	poolSize := uint32(1)

	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewParallelBufferPoolManager(numInstances, poolSize, dm, nil)

	// two frames total; both NewPage calls succeed even though the
	// round robin start points at a different instance each time
	p0 := bpm.NewPage()
	require.NotNil(t, p0)
	p1 := bpm.NewPage()
	require.NotNil(t, p1)

	// all frames pinned now
	assert.Nil(t, bpm.NewPage())

	// freeing one frame lets the walk find the instance with room
	require.True(t, bpm.UnpinPage(p0.GetPageId(), false))
	p2 := bpm.NewPage()
	require.NotNil(t, p2)
	assert.Equal(t, uint32(p0.GetPageId())%numInstances, uint32(p2.GetPageId())%numInstances)
}

func TestParallelBPMFetchAndFlush(t *testing.T) {
	numInstances := uint32(4)
	poolSize := uint32(8)

	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewParallelBufferPoolManager(numInstances, poolSize, dm, nil)

	pageIDs := make([]types.PageID, 0)
	for i := 0; i < 8; i++ {
		p := bpm.NewPage()
		require.NotNil(t, p)
		p.Copy(0, []byte{byte(i)})
		pageIDs = append(pageIDs, p.GetPageId())
		require.True(t, bpm.UnpinPage(p.GetPageId(), true))
	}

	bpm.FlushAllPages()

	for i, pageID := range pageIDs {
		p := bpm.FetchPage(pageID)
		require.NotNil(t, p)
		assert.Equal(t, byte(i), p.Data()[0])
		require.True(t, bpm.UnpinPage(pageID, false))
		require.True(t, bpm.FlushPage(pageID))
		require.True(t, bpm.DeletePage(pageID))
	}

	assert.Equal(t, uint32(0), bpm.GetNumResidentPages())
}
