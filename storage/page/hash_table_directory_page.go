package page

import (
	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/types"
)

// MaxGlobalDepth bounds how many hash bits the directory may consume.
const MaxGlobalDepth = 9

// DirectoryArraySize is the number of slots the directory page reserves.
// Only the first 1 << globalDepth of them are meaningful.
const DirectoryArraySize = 1 << MaxGlobalDepth

/**
 * Directory page format:
 *  --------------------------------------------------------------------------------------
 * | PageId (4) | LSN (4) | GlobalDepth (4) | BucketPageIds (4 * 512) | LocalDepths (512) |
 *  --------------------------------------------------------------------------------------
 */
type HashTableDirectoryPage struct {
	pageId        types.PageID
	lsn           types.LSN
	globalDepth   uint32
	bucketPageIds [DirectoryArraySize]types.PageID
	localDepths   [DirectoryArraySize]uint8
}

func (page *HashTableDirectoryPage) GetPageId() types.PageID {
	return page.pageId
}

func (page *HashTableDirectoryPage) SetPageId(pageId types.PageID) {
	page.pageId = pageId
}

func (page *HashTableDirectoryPage) GetLSN() types.LSN {
	return page.lsn
}

func (page *HashTableDirectoryPage) SetLSN(lsn types.LSN) {
	page.lsn = lsn
}

// GetGlobalDepth returns the number of hash bits used to index the directory
func (page *HashTableDirectoryPage) GetGlobalDepth() uint32 {
	return page.globalDepth
}

// GetGlobalDepthMask returns a mask of globalDepth 1's and the rest 0's
func (page *HashTableDirectoryPage) GetGlobalDepthMask() uint32 {
	return (1 << page.globalDepth) - 1
}

// IncrGlobalDepth doubles the directory. The new upper half mirrors the
// lower half so every old bucket stays reachable through both buddies.
func (page *HashTableDirectoryPage) IncrGlobalDepth() {
	common.MD_Assert(page.globalDepth < MaxGlobalDepth, "directory cannot grow beyond MaxGlobalDepth")
	size := uint32(1) << page.globalDepth
	for i := uint32(0); i < size; i++ {
		page.bucketPageIds[size+i] = page.bucketPageIds[i]
		page.localDepths[size+i] = page.localDepths[i]
	}
	page.globalDepth++
}

func (page *HashTableDirectoryPage) DecrGlobalDepth() {
	common.MD_Assert(page.globalDepth > 0, "directory cannot shrink below zero depth")
	page.globalDepth--
}

// CanShrink checks whether every bucket sits strictly below the global
// depth, in which case the directory can halve.
func (page *HashTableDirectoryPage) CanShrink() bool {
	if page.globalDepth == 0 {
		return false
	}
	size := page.Size()
	for i := uint32(0); i < size; i++ {
		if uint32(page.localDepths[i]) == page.globalDepth {
			return false
		}
	}
	return true
}

// Size returns the number of directory slots in use
func (page *HashTableDirectoryPage) Size() uint32 {
	return 1 << page.globalDepth
}

func (page *HashTableDirectoryPage) GetBucketPageId(bucketIdx uint32) types.PageID {
	return page.bucketPageIds[bucketIdx]
}

func (page *HashTableDirectoryPage) SetBucketPageId(bucketIdx uint32, bucketPageId types.PageID) {
	page.bucketPageIds[bucketIdx] = bucketPageId
}

func (page *HashTableDirectoryPage) GetLocalDepth(bucketIdx uint32) uint32 {
	return uint32(page.localDepths[bucketIdx])
}

func (page *HashTableDirectoryPage) SetLocalDepth(bucketIdx uint32, localDepth uint32) {
	common.MD_Assert(localDepth <= page.globalDepth, "local depth cannot exceed global depth")
	page.localDepths[bucketIdx] = uint8(localDepth)
}

func (page *HashTableDirectoryPage) IncrLocalDepth(bucketIdx uint32) {
	page.localDepths[bucketIdx]++
}

func (page *HashTableDirectoryPage) DecrLocalDepth(bucketIdx uint32) {
	page.localDepths[bucketIdx]--
}

// GetLocalDepthMask returns a mask of localDepth 1's and the rest 0's
func (page *HashTableDirectoryPage) GetLocalDepthMask(bucketIdx uint32) uint32 {
	return (1 << uint32(page.localDepths[bucketIdx])) - 1
}

// GetSplitImageIndex returns the directory slot that differs from
// bucketIdx only in the highest bit covered by its local depth. The
// local depth must be at least one.
func (page *HashTableDirectoryPage) GetSplitImageIndex(bucketIdx uint32) uint32 {
	localDepth := uint32(page.localDepths[bucketIdx])
	common.MD_Assert(localDepth > 0, "split image of a zero depth bucket is undefined")
	return bucketIdx ^ (1 << (localDepth - 1))
}

// VerifyIntegrity checks the depth bound and the buddy invariant: two
// slots point at the same bucket page iff they agree on their local
// depth and on their low localDepth bits.
func (page *HashTableDirectoryPage) VerifyIntegrity() {
	size := page.Size()
	for i := uint32(0); i < size; i++ {
		common.MD_Assert(uint32(page.localDepths[i]) <= page.globalDepth,
			"VerifyIntegrity: local depth exceeds global depth")

		for j := uint32(0); j < size; j++ {
			sameBits := (i & page.GetLocalDepthMask(i)) == (j & page.GetLocalDepthMask(i))
			samePage := page.bucketPageIds[i] == page.bucketPageIds[j]
			sameDepth := page.localDepths[i] == page.localDepths[j]
			if sameBits && sameDepth {
				common.MD_Assert(samePage, "VerifyIntegrity: buddy slots point at different bucket pages")
			}
			if samePage {
				common.MD_Assert(sameDepth && sameBits, "VerifyIntegrity: slots share a page without being buddies")
			}
		}
	}
}

func (page *HashTableDirectoryPage) PrintDirectory() {
	common.MdPrintf(common.DEBUG_INFO, "======== DIRECTORY (global depth: %d) ========\n", page.globalDepth)
	common.MdPrintf(common.DEBUG_INFO, "| bucket_idx | page_id | local_depth |\n")
	for idx := uint32(0); idx < page.Size(); idx++ {
		common.MdPrintf(common.DEBUG_INFO, "|    %d    |    %d    |    %d    |\n",
			idx, page.bucketPageIds[idx], page.localDepths[idx])
	}
	common.MdPrintf(common.DEBUG_INFO, "================ END DIRECTORY ================\n")
}
