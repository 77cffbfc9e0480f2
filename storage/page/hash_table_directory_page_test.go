package page

import (
	"testing"

	testingpkg "github.com/medakadb/medaka/testing/testing_assert"
	"github.com/medakadb/medaka/types"
)

func TestDirectoryPageDepths(t *testing.T) {
	dir := new(HashTableDirectoryPage)
	dir.SetPageId(types.PageID(0))

	testingpkg.Equals(t, uint32(0), dir.GetGlobalDepth())
	testingpkg.Equals(t, uint32(0), dir.GetGlobalDepthMask())
	testingpkg.Equals(t, uint32(1), dir.Size())
	testingpkg.Nok(t, dir.CanShrink())

	dir.SetBucketPageId(0, types.PageID(1))
	dir.IncrGlobalDepth()

	testingpkg.Equals(t, uint32(1), dir.GetGlobalDepth())
	testingpkg.Equals(t, uint32(1), dir.GetGlobalDepthMask())
	testingpkg.Equals(t, uint32(2), dir.Size())

	// the new upper half mirrors the lower half
	testingpkg.Equals(t, types.PageID(1), dir.GetBucketPageId(1))
	testingpkg.Equals(t, dir.GetLocalDepth(0), dir.GetLocalDepth(1))

	// both halves sit below the global depth, so the directory can halve
	testingpkg.Ok(t, dir.CanShrink())
	dir.DecrGlobalDepth()
	testingpkg.Equals(t, uint32(0), dir.GetGlobalDepth())
}

func TestDirectoryPageLocalDepths(t *testing.T) {
	dir := new(HashTableDirectoryPage)
	dir.SetBucketPageId(0, types.PageID(1))
	dir.IncrGlobalDepth()

	dir.IncrLocalDepth(0)
	dir.IncrLocalDepth(1)
	testingpkg.Equals(t, uint32(1), dir.GetLocalDepth(0))
	testingpkg.Equals(t, uint32(1), dir.GetLocalDepthMask(0))
	testingpkg.Nok(t, dir.CanShrink())

	// split image flips the highest local depth bit
	testingpkg.Equals(t, uint32(1), dir.GetSplitImageIndex(0))
	testingpkg.Equals(t, uint32(0), dir.GetSplitImageIndex(1))

	dir.SetBucketPageId(1, types.PageID(2))
	dir.VerifyIntegrity()

	dir.DecrLocalDepth(1)
	testingpkg.Equals(t, uint32(0), dir.GetLocalDepth(1))
}

func TestDirectoryPageSplitImageIndex(t *testing.T) {
	dir := new(HashTableDirectoryPage)
	dir.SetBucketPageId(0, types.PageID(1))
	dir.IncrGlobalDepth()
	dir.IncrGlobalDepth()
	dir.IncrGlobalDepth()

	dir.SetLocalDepth(5, 3)
	testingpkg.Equals(t, uint32(1), dir.GetSplitImageIndex(5))
	dir.SetLocalDepth(5, 2)
	testingpkg.Equals(t, uint32(7), dir.GetSplitImageIndex(5))
	dir.SetLocalDepth(5, 1)
	testingpkg.Equals(t, uint32(4), dir.GetSplitImageIndex(5))
}
