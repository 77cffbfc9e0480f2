package disk

import (
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dsnet/golib/memfile"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/types"
)

// VirtualDiskManagerImpl keeps the database and the log in memory.
// It exists for tests that want disk semantics without disk latency.
type VirtualDiskManagerImpl struct {
	db            *memfile.File
	fileName      string
	log           *memfile.File
	fileNameLog   string
	nextPageID    types.PageID
	numWrites     *xsync.Counter
	numFlushes    *xsync.Counter
	size          int64
	dbFileMutex   *sync.Mutex
	logFileMutex  *sync.Mutex
	deallocatedID mapset.Set[types.PageID]
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	file := memfile.New(make([]byte, 0))

	periodIdx := strings.LastIndex(dbFilename, ".")
	logfnameBase := dbFilename[:periodIdx]
	logfname := logfnameBase + "." + "log"

	logFile := memfile.New(make([]byte, 0))

	return &VirtualDiskManagerImpl{file, dbFilename, logFile, logfname, types.PageID(0),
		xsync.NewCounter(), xsync.NewCounter(), int64(0), new(sync.Mutex), new(sync.Mutex),
		mapset.NewSet[types.PageID]()}
}

// ShutDown does nothing: there is no file to close
func (d *VirtualDiskManagerImpl) ShutDown() {
}

// WritePage writes a page into the in-memory file
func (d *VirtualDiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	d.deallocatedID.Remove(pageId)

	offset := int64(pageId) * int64(common.PageSize)
	d.db.WriteAt(pageData, offset)

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}

	d.numWrites.Inc()
	return nil
}

// ReadPage reads a page from the in-memory file. Reading a deallocated
// page fails; reading a page that was never written yields zeros.
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	if d.deallocatedID.Contains(pageID) {
		return types.DeallocatedPageErr
	}

	offset := int64(pageID) * int64(common.PageSize)
	n, _ := d.db.ReadAt(pageData, offset)
	for i := n; i < len(pageData); i++ {
		pageData[i] = 0
	}
	return nil
}

// AllocatePage allocates a new page id
func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage marks the page id as dead. Later reads of the id fail
// until the id is written again.
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {
	d.deallocatedID.Add(pageID)
}

// WriteLog appends log data to the in-memory log file
func (d *VirtualDiskManagerImpl) WriteLog(logData []byte) error {
	d.logFileMutex.Lock()
	defer d.logFileMutex.Unlock()

	d.numFlushes.Inc()
	d.log.WriteAt(logData, int64(len(d.log.Bytes())))
	return nil
}

// GetNumWrites returns the number of page writes so far
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	return uint64(d.numWrites.Value())
}

// GetNumFlushes returns the number of log flushes so far
func (d *VirtualDiskManagerImpl) GetNumFlushes() uint64 {
	return uint64(d.numFlushes.Value())
}

// Size returns the size of the in-memory database file
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	return d.size
}
