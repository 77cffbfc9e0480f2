package disk

import (
	"testing"

	"github.com/medakadb/medaka/common"
	testingpkg "github.com/medakadb/medaka/testing/testing_assert"
	"github.com/medakadb/medaka/types"
)

func TestReadWritePage(t *testing.T) {
	dm := NewDiskManagerTest()
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	buf := make([]byte, common.PageSize)

	copy(data, "A test string.")

	dm.ReadPage(0, buf) // tolerate empty read
	dm.WritePage(0, data)
	dm.ReadPage(0, buf)
	testingpkg.Equals(t, data, buf)
	testingpkg.Equals(t, uint64(1), dm.GetNumWrites())

	buf = make([]byte, common.PageSize)
	copy(data, "Another test string.")

	dm.WritePage(5, data)
	dm.ReadPage(5, buf)
	testingpkg.Equals(t, data, buf)
	testingpkg.Equals(t, uint64(2), dm.GetNumWrites())

	// a page past the end of file reads as zeros
	buf = make([]byte, common.PageSize)
	dm.ReadPage(100, buf)
	testingpkg.Equals(t, make([]byte, common.PageSize), buf)
}

func TestVirtualDiskManager(t *testing.T) {
	dm := NewVirtualDiskManagerImpl("virtual.db")
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	buf := make([]byte, common.PageSize)
	copy(data, "A test string.")

	dm.WritePage(3, data)
	dm.ReadPage(3, buf)
	testingpkg.Equals(t, data, buf)
	testingpkg.Equals(t, uint64(1), dm.GetNumWrites())

	// a page that was never written reads as zeros
	buf2 := make([]byte, common.PageSize)
	dm.ReadPage(7, buf2)
	testingpkg.Equals(t, make([]byte, common.PageSize), buf2)

	// a deallocated page cannot be read until it is written again
	dm.DeallocatePage(3)
	err := dm.ReadPage(3, buf)
	testingpkg.Equals(t, types.DeallocatedPageErr, err)

	dm.WritePage(3, data)
	testingpkg.Equals(t, nil, dm.ReadPage(3, buf))
}

func TestVirtualDiskManagerAllocation(t *testing.T) {
	dm := NewVirtualDiskManagerImpl("virtual.db")

	testingpkg.Equals(t, types.PageID(0), dm.AllocatePage())
	testingpkg.Equals(t, types.PageID(1), dm.AllocatePage())
	testingpkg.Equals(t, types.PageID(2), dm.AllocatePage())
}

func TestWriteLogCountsFlushes(t *testing.T) {
	dm := NewVirtualDiskManagerImpl("virtual.db")

	testingpkg.Equals(t, uint64(0), dm.GetNumFlushes())
	testingpkg.Equals(t, nil, dm.WriteLog([]byte("log record")))
	testingpkg.Equals(t, nil, dm.WriteLog([]byte("another record")))
	testingpkg.Equals(t, uint64(2), dm.GetNumFlushes())
}
