package buffer

import (
	"crypto/rand"
	"testing"

	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/storage/disk"
	"github.com/medakadb/medaka/storage/page"
	testingpkg "github.com/medakadb/medaka/testing/testing_assert"
	"github.com/medakadb/medaka/types"
)

func TestBinaryData(t *testing.T) {
	poolSize := uint32(10)

	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManagerInstance(poolSize, dm, nil)

	page0 := bpm.NewPage()

	// Scenario: The buffer pool is empty. We should be able to create a new page.
	testingpkg.Equals(t, types.PageID(0), page0.GetPageId())

	// Generate random binary data
	randomBinaryData := make([]byte, common.PageSize)
	rand.Read(randomBinaryData)

	// Insert terminal characters both in the middle and at end
	randomBinaryData[common.PageSize/2] = '0'
	randomBinaryData[common.PageSize-1] = '0'

	var fixedRandomBinaryData [common.PageSize]byte
	copy(fixedRandomBinaryData[:], randomBinaryData[:common.PageSize])

	// Scenario: Once we have a page, we should be able to read and write content.
	page0.Copy(0, randomBinaryData)
	testingpkg.Equals(t, fixedRandomBinaryData, *page0.Data())

	// Scenario: We should be able to create new pages until we fill up the buffer pool.
	for i := uint32(1); i < poolSize; i++ {
		p := bpm.NewPage()
		testingpkg.Equals(t, types.PageID(i), p.GetPageId())
	}

	// Scenario: Once the buffer pool is full, we should not be able to create any new pages.
	for i := poolSize; i < poolSize*2; i++ {
		testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	}

	// Scenario: After unpinning pages {0, 1, 2, 3, 4} and pinning another 4 new pages,
	// there would still be one cache frame left for reading page 0.
	for i := 0; i < 5; i++ {
		testingpkg.Ok(t, bpm.UnpinPage(types.PageID(i), true))
		bpm.FlushPage(types.PageID(i))
	}
	for i := 0; i < 4; i++ {
		p := bpm.NewPage()
		bpm.UnpinPage(p.GetPageId(), false)
	}

	// Scenario: We should be able to fetch the data we wrote a while ago.
	page0 = bpm.FetchPage(types.PageID(0))
	testingpkg.Equals(t, fixedRandomBinaryData, *page0.Data())
	testingpkg.Ok(t, bpm.UnpinPage(types.PageID(0), true))
}

func TestSample(t *testing.T) {
	poolSize := uint32(10)

	dm := disk.NewDiskManagerTest()
	defer dm.ShutDown()
	bpm := NewBufferPoolManagerInstance(poolSize, dm, nil)

	page0 := bpm.NewPage()

	// Scenario: The buffer pool is empty. We should be able to create a new page.
	testingpkg.Equals(t, types.PageID(0), page0.GetPageId())

	// Scenario: Once we have a page, we should be able to read and write content.
	page0.Copy(0, []byte("Hello"))
	testingpkg.Equals(t, [common.PageSize]byte{'H', 'e', 'l', 'l', 'o'}, *page0.Data())

	// Scenario: We should be able to create new pages until we fill up the buffer pool.
	for i := uint32(1); i < poolSize; i++ {
		p := bpm.NewPage()
		testingpkg.Equals(t, types.PageID(i), p.GetPageId())
	}

	// Scenario: Once the buffer pool is full, we should not be able to create any new pages.
	for i := poolSize; i < poolSize*2; i++ {
		testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	}

	// Scenario: After unpinning pages {0, 1, 2, 3, 4} and pinning another 4 new pages,
	// there would still be one cache frame left for reading page 0.
	for i := 0; i < 5; i++ {
		testingpkg.Ok(t, bpm.UnpinPage(types.PageID(i), true))
		bpm.FlushPage(types.PageID(i))
	}
	for i := 0; i < 4; i++ {
		bpm.NewPage()
	}
	// Scenario: We should be able to fetch the data we wrote a while ago.
	page0 = bpm.FetchPage(types.PageID(0))
	testingpkg.Equals(t, [common.PageSize]byte{'H', 'e', 'l', 'l', 'o'}, *page0.Data())

	// Scenario: If we unpin page 0 and then make a new page, all the buffer pages should
	// now be pinned. Fetching page 0 should fail.
	testingpkg.Ok(t, bpm.UnpinPage(types.PageID(0), true))

	testingpkg.Equals(t, types.PageID(14), bpm.NewPage().GetPageId())
	testingpkg.Equals(t, (*page.Page)(nil), bpm.NewPage())
	testingpkg.Equals(t, (*page.Page)(nil), bpm.FetchPage(types.PageID(0)))
}

func TestDirtyPageWriteBackOnEviction(t *testing.T) {
	poolSize := uint32(10)

	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewBufferPoolManagerInstance(poolSize, dm, nil)

	page0 := bpm.NewPage()
	page0.Copy(0, []byte("dirty data"))
	testingpkg.Ok(t, bpm.UnpinPage(page0.GetPageId(), true))

	// Scenario: pin ten other pages so page 0 is evicted and written back.
	for i := uint32(0); i < poolSize; i++ {
		p := bpm.NewPage()
		testingpkg.Assert(t, p != nil, "NewPage must succeed while a frame is evictable")
		bpm.UnpinPage(p.GetPageId(), false)
	}

	page0 = bpm.FetchPage(types.PageID(0))
	var expect [common.PageSize]byte
	copy(expect[:], "dirty data")
	testingpkg.Equals(t, expect, *page0.Data())
	testingpkg.Ok(t, bpm.UnpinPage(types.PageID(0), false))
}

func TestUnpinIsIdempotentAtZero(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewBufferPoolManagerInstance(10, dm, nil)

	page0 := bpm.NewPage()
	pageID := page0.GetPageId()

	testingpkg.Ok(t, bpm.UnpinPage(pageID, false))
	// a second unpin is a no-op and reports failure
	testingpkg.Nok(t, bpm.UnpinPage(pageID, false))
	testingpkg.Equals(t, int32(0), page0.PinCount())

	// unpinning a page that is not resident also fails
	testingpkg.Nok(t, bpm.UnpinPage(types.PageID(9999), false))
}

func TestDirtyFlagSurvivesCleanUnpin(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewBufferPoolManagerInstance(10, dm, nil)

	page0 := bpm.NewPage()
	pageID := page0.GetPageId()
	page0.IncPinCount()

	testingpkg.Ok(t, bpm.UnpinPage(pageID, true))
	// the clean unpin must not clear the dirty flag
	testingpkg.Ok(t, bpm.UnpinPage(pageID, false))
	testingpkg.Ok(t, page0.IsDirty())

	// an explicit flush clears it
	testingpkg.Ok(t, bpm.FlushPage(pageID))
	testingpkg.Nok(t, page0.IsDirty())
}

func TestDeletePage(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	bpm := NewBufferPoolManagerInstance(10, dm, nil)

	page0 := bpm.NewPage()
	pageID := page0.GetPageId()

	// a pinned page cannot be deleted
	testingpkg.Nok(t, bpm.DeletePage(pageID))

	testingpkg.Ok(t, bpm.UnpinPage(pageID, true))
	testingpkg.Ok(t, bpm.DeletePage(pageID))
	testingpkg.Equals(t, uint32(0), bpm.GetNumResidentPages())

	// deleting a page that is not resident is vacuously true
	testingpkg.Ok(t, bpm.DeletePage(types.PageID(9999)))

	// the freed frame is reusable
	p := bpm.NewPage()
	testingpkg.Assert(t, p != nil, "NewPage must reuse the freed frame")
}

func TestPageIdAllocationFollowsInstanceProgression(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl("test.db")
	numInstances := uint32(5)
	instanceIndex := uint32(2)
	bpm := newBufferPoolManagerInstance(4, numInstances, instanceIndex, dm, nil)

	for i := 0; i < 4; i++ {
		p := bpm.NewPage()
		testingpkg.Equals(t, types.PageID(instanceIndex+uint32(i)*numInstances), p.GetPageId())
		testingpkg.Equals(t, instanceIndex, uint32(p.GetPageId())%numInstances)
	}
}
