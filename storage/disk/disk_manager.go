package disk

import (
	"github.com/medakadb/medaka/types"
)

// DiskManager is responsible for interacting with disk
type DiskManager interface {
	ReadPage(types.PageID, []byte) error
	WritePage(types.PageID, []byte) error
	AllocatePage() types.PageID
	DeallocatePage(types.PageID)
	WriteLog([]byte) error
	GetNumWrites() uint64
	GetNumFlushes() uint64
	ShutDown()
	Size() int64
}
