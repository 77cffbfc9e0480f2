package hash

import (
	"fmt"
	"unsafe"

	"github.com/sasha-s/go-deadlock"

	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/storage/buffer"
	"github.com/medakadb/medaka/storage/page"
	"github.com/medakadb/medaka/types"
)

// MaxBucketDepth bounds how far a single bucket may split.
const MaxBucketDepth = page.MaxGlobalDepth

// Transaction is the opaque transaction handle threaded through index
// operations for the lock manager's benefit. Nothing here inspects it.
type Transaction interface{}

/**
 * ExtendibleHashTable is a disk backed hash table that grows bucket by
 * bucket. The directory and the buckets are ordinary pages borrowed
 * from the buffer pool; every fetch is matched by an unpin on every
 * exit path, and the structure is protected by a table wide
 * reader/writer latch plus a latch per bucket page.
 *
 * Latch upgrades are not atomic. An operation that needs the writer
 * latch releases its reader latch first and re-derives every page id
 * and depth after re-acquisition; nothing read before the gap is
 * trusted after it.
 */
type ExtendibleHashTable struct {
	directoryPageID types.PageID
	bpm             buffer.BufferPoolManager
	comparator      page.KeyComparator
	hashFn          HashFunc
	tableLatch      common.ReaderWriterLatch
	directoryLock   deadlock.Mutex // serializes lazy directory creation
}

// NewExtendibleHashTable creates a hash table over the buffer pool.
// The directory page is created lazily on first access.
func NewExtendibleHashTable(bpm buffer.BufferPoolManager, comparator page.KeyComparator, hashFn HashFunc) *ExtendibleHashTable {
	return &ExtendibleHashTable{
		directoryPageID: types.InvalidPageID,
		bpm:             bpm,
		comparator:      comparator,
		hashFn:          hashFn,
		tableLatch:      common.NewRWLatch(),
	}
}

// hash downcasts the injected 64 bit hash to the 32 bits the directory
// consumes.
func (ht *ExtendibleHashTable) hash(key uint32) uint32 {
	return uint32(ht.hashFn(key))
}

func (ht *ExtendibleHashTable) keyToDirectoryIndex(key uint32, dirPage *page.HashTableDirectoryPage) uint32 {
	return ht.hash(key) & dirPage.GetGlobalDepthMask()
}

func (ht *ExtendibleHashTable) keyToPageId(key uint32, dirPage *page.HashTableDirectoryPage) types.PageID {
	return dirPage.GetBucketPageId(ht.keyToDirectoryIndex(key, dirPage))
}

func castDirectoryPage(pg *page.Page) *page.HashTableDirectoryPage {
	return (*page.HashTableDirectoryPage)(unsafe.Pointer(pg.Data()))
}

func castBucketPage(pg *page.Page) *page.HashTableBucketPage {
	return (*page.HashTableBucketPage)(unsafe.Pointer(pg.Data()))
}

// fetchDirectoryPage returns the pinned directory page, creating the
// directory and its first bucket on first call.
func (ht *ExtendibleHashTable) fetchDirectoryPage() *page.HashTableDirectoryPage {
	ht.directoryLock.Lock()
	if ht.directoryPageID == types.InvalidPageID {
		dirPage := ht.bpm.NewPage()
		common.MD_Assert(dirPage != nil, "buffer pool exhausted while creating the hash directory")
		dir := castDirectoryPage(dirPage)
		dir.SetPageId(dirPage.GetPageId())

		bucketPage := ht.bpm.NewPage()
		common.MD_Assert(bucketPage != nil, "buffer pool exhausted while creating the first hash bucket")
		dir.SetBucketPageId(0, bucketPage.GetPageId())

		ht.directoryPageID = dirPage.GetPageId()
		common.MD_Assert(ht.bpm.UnpinPage(dirPage.GetPageId(), true), "unpin of the new directory page failed")
		common.MD_Assert(ht.bpm.UnpinPage(bucketPage.GetPageId(), true), "unpin of the first bucket page failed")
	}
	ht.directoryLock.Unlock()

	pg := ht.bpm.FetchPage(ht.directoryPageID)
	common.MD_Assert(pg != nil, "fetch of the hash directory page failed")
	return castDirectoryPage(pg)
}

// fetchBucketPage returns the pinned frame holding the bucket page and
// its typed view. One fetch, one pin.
func (ht *ExtendibleHashTable) fetchBucketPage(bucketPageID types.PageID) (*page.Page, *page.HashTableBucketPage) {
	pg := ht.bpm.FetchPage(bucketPageID)
	common.MD_Assert(pg != nil, fmt.Sprintf("fetch of bucket pageId:%d failed", bucketPageID))
	return pg, castBucketPage(pg)
}

// GetValue collects every value stored under the key.
func (ht *ExtendibleHashTable) GetValue(txn Transaction, key uint32) []uint32 {
	ht.tableLatch.RLock()
	dir := ht.fetchDirectoryPage()
	bucketPageID := ht.keyToPageId(key, dir)
	bucketPage, bucket := ht.fetchBucketPage(bucketPageID)

	bucketPage.RLatch()
	result := bucket.GetValue(key, ht.comparator)
	bucketPage.RUnlatch()

	common.MD_Assert(ht.bpm.UnpinPage(bucketPageID, false), "GetValue: bucket unpin failed")
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "GetValue: directory unpin failed")
	ht.tableLatch.RUnlock()
	return result
}

// Insert adds the (key, value) pair, splitting the target bucket when
// it is full. An exact duplicate pair is rejected.
func (ht *ExtendibleHashTable) Insert(txn Transaction, key uint32, value uint32) bool {
	ht.tableLatch.RLock()
	dir := ht.fetchDirectoryPage()
	bucketPageID := ht.keyToPageId(key, dir)
	bucketPage, bucket := ht.fetchBucketPage(bucketPageID)

	bucketPage.WLatch()
	if !bucket.IsFull() {
		ret := bucket.Insert(key, value, ht.comparator)
		bucketPage.WUnlatch()
		common.MD_Assert(ht.bpm.UnpinPage(bucketPageID, ret), "Insert: bucket unpin failed")
		common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "Insert: directory unpin failed")
		ht.tableLatch.RUnlock()
		return ret
	}

	// full bucket: let go of everything and retry under the writer latch
	bucketPage.WUnlatch()
	common.MD_Assert(ht.bpm.UnpinPage(bucketPageID, false), "Insert: bucket unpin failed")
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "Insert: directory unpin failed")
	ht.tableLatch.RUnlock()

	return ht.splitInsert(txn, key, value)
}

// splitInsert grows the target bucket under the table writer latch and
// retries the insert from scratch. The retry is mandatory: the key may
// still land in a full bucket, and every latch was released in between.
func (ht *ExtendibleHashTable) splitInsert(txn Transaction, key uint32, value uint32) bool {
	ht.tableLatch.WLock()
	dir := ht.fetchDirectoryPage()
	splitBucketIndex := ht.keyToDirectoryIndex(key, dir)
	splitBucketDepth := dir.GetLocalDepth(splitBucketIndex)

	if splitBucketDepth >= MaxBucketDepth {
		// the bucket cannot split any further
		common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "splitInsert: directory unpin failed")
		ht.tableLatch.WUnlock()
		return false
	}

	if splitBucketDepth == dir.GetGlobalDepth() {
		dir.IncrGlobalDepth()
	}
	dir.IncrLocalDepth(splitBucketIndex)

	splitBucketPageID := dir.GetBucketPageId(splitBucketIndex)
	splitBucketPage, splitBucket := ht.fetchBucketPage(splitBucketPageID)
	splitBucketPage.WLatch()

	snapshot := splitBucket.GetArrayCopy()
	splitBucket.Reset()

	imageBucketPage := ht.bpm.NewPage()
	common.MD_Assert(imageBucketPage != nil, "buffer pool exhausted during bucket split")
	imageBucketPage.WLatch()
	imageBucket := castBucketPage(imageBucketPage)
	imageBucketPageID := imageBucketPage.GetPageId()

	imageBucketIndex := dir.GetSplitImageIndex(splitBucketIndex)
	dir.SetLocalDepth(imageBucketIndex, dir.GetLocalDepth(splitBucketIndex))
	dir.SetBucketPageId(imageBucketIndex, imageBucketPageID)

	// point every slot sharing the seeds' low localDepth bits at the
	// right page before redistributing, so the directory lookup below
	// is consistent
	localDepth := dir.GetLocalDepth(splitBucketIndex)
	diff := uint32(1) << localDepth
	for i := splitBucketIndex & (diff - 1); i < dir.Size(); i += diff {
		dir.SetBucketPageId(i, splitBucketPageID)
		dir.SetLocalDepth(i, localDepth)
	}
	for i := imageBucketIndex & (diff - 1); i < dir.Size(); i += diff {
		dir.SetBucketPageId(i, imageBucketPageID)
		dir.SetLocalDepth(i, localDepth)
	}

	// deal the snapshot back out between the two buckets
	for _, kv := range snapshot {
		targetIndex := ht.hash(kv.First) & dir.GetLocalDepthMask(splitBucketIndex)
		targetPageID := dir.GetBucketPageId(targetIndex)
		common.MD_Assert(targetPageID == splitBucketPageID || targetPageID == imageBucketPageID,
			"splitInsert: redistributed pair routes to neither half of the split")
		if targetPageID == splitBucketPageID {
			common.MD_Assert(splitBucket.Insert(kv.First, kv.Second, ht.comparator),
				"splitInsert: reinsert into the split bucket failed")
		} else {
			common.MD_Assert(imageBucket.Insert(kv.First, kv.Second, ht.comparator),
				"splitInsert: reinsert into the image bucket failed")
		}
	}

	splitBucketPage.WUnlatch()
	imageBucketPage.WUnlatch()

	common.MD_Assert(ht.bpm.UnpinPage(splitBucketPageID, true), "splitInsert: split bucket unpin failed")
	common.MD_Assert(ht.bpm.UnpinPage(imageBucketPageID, true), "splitInsert: image bucket unpin failed")
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), true), "splitInsert: directory unpin failed")

	ht.tableLatch.WUnlock()
	return ht.Insert(txn, key, value)
}

// Remove deletes the (key, value) pair. A bucket left empty is offered
// to merge afterwards, outside the latches held here.
func (ht *ExtendibleHashTable) Remove(txn Transaction, key uint32, value uint32) bool {
	ht.tableLatch.RLock()
	dir := ht.fetchDirectoryPage()
	bucketPageID := ht.keyToPageId(key, dir)
	bucketPage, bucket := ht.fetchBucketPage(bucketPageID)

	bucketPage.WLatch()
	ret := bucket.Remove(key, value, ht.comparator)
	empty := bucket.IsEmpty()
	bucketPage.WUnlatch()

	common.MD_Assert(ht.bpm.UnpinPage(bucketPageID, ret), "Remove: bucket unpin failed")
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "Remove: directory unpin failed")
	ht.tableLatch.RUnlock()

	if empty {
		ht.merge(txn, key, value)
	}
	return ret
}

// merge folds an empty bucket into its split image and shrinks the
// directory as far as it will go. Everything is re-derived under the
// writer latch; a concurrent insert that refilled the bucket aborts
// the merge.
func (ht *ExtendibleHashTable) merge(txn Transaction, key uint32, value uint32) {
	ht.tableLatch.WLock()
	dir := ht.fetchDirectoryPage()
	targetBucketIndex := ht.keyToDirectoryIndex(key, dir)
	localDepth := dir.GetLocalDepth(targetBucketIndex)

	// a zero depth bucket has no buddy to fold into
	if localDepth == 0 {
		common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "merge: directory unpin failed")
		ht.tableLatch.WUnlock()
		return
	}

	targetBucketPageID := dir.GetBucketPageId(targetBucketIndex)
	imageBucketIndex := dir.GetSplitImageIndex(targetBucketIndex)

	// only buckets at the same depth are buddies
	if localDepth != dir.GetLocalDepth(imageBucketIndex) {
		common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "merge: directory unpin failed")
		ht.tableLatch.WUnlock()
		return
	}

	targetBucketPage, targetBucket := ht.fetchBucketPage(targetBucketPageID)
	targetBucketPage.RLatch()
	empty := targetBucket.IsEmpty()
	targetBucketPage.RUnlatch()
	common.MD_Assert(ht.bpm.UnpinPage(targetBucketPageID, false), "merge: bucket unpin failed")

	// a concurrent insert won the race
	if !empty {
		common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "merge: directory unpin failed")
		ht.tableLatch.WUnlock()
		return
	}

	common.MD_Assert(ht.bpm.DeletePage(targetBucketPageID), "merge: delete of the empty bucket page failed")

	imageBucketPageID := dir.GetBucketPageId(imageBucketIndex)
	dir.SetBucketPageId(targetBucketIndex, imageBucketPageID)
	dir.DecrLocalDepth(targetBucketIndex)
	dir.DecrLocalDepth(imageBucketIndex)
	common.MD_Assert(dir.GetLocalDepth(targetBucketIndex) == dir.GetLocalDepth(imageBucketIndex),
		"merge: buddy depths diverged")

	// every slot that referenced either half now points at the image
	for i := uint32(0); i < dir.Size(); i++ {
		if dir.GetBucketPageId(i) == targetBucketPageID || dir.GetBucketPageId(i) == imageBucketPageID {
			dir.SetBucketPageId(i, imageBucketPageID)
			dir.SetLocalDepth(i, dir.GetLocalDepth(targetBucketIndex))
		}
	}

	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}

	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), true), "merge: directory unpin failed")
	ht.tableLatch.WUnlock()
}

// GetGlobalDepth returns the directory's global depth.
func (ht *ExtendibleHashTable) GetGlobalDepth() uint32 {
	ht.tableLatch.RLock()
	dir := ht.fetchDirectoryPage()
	globalDepth := dir.GetGlobalDepth()
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "GetGlobalDepth: directory unpin failed")
	ht.tableLatch.RUnlock()
	return globalDepth
}

// VerifyIntegrity checks the directory invariants.
func (ht *ExtendibleHashTable) VerifyIntegrity() {
	ht.tableLatch.RLock()
	dir := ht.fetchDirectoryPage()
	dir.VerifyIntegrity()
	common.MD_Assert(ht.bpm.UnpinPage(dir.GetPageId(), false), "VerifyIntegrity: directory unpin failed")
	ht.tableLatch.RUnlock()
}
