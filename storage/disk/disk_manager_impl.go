package disk

import (
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/types"
)

// DiskManagerImpl is the disk implementation of DiskManager
type DiskManagerImpl struct {
	db          *os.File
	fileName    string
	log         *os.File
	fileNameLog string
	nextPageID  types.PageID
	numWrites   *xsync.Counter
	numFlushes  *xsync.Counter
	size        int64
}

// NewDiskManagerImpl returns a DiskManager instance backed by dbFilename
// and a sibling .log file.
func NewDiskManagerImpl(dbFilename string) DiskManager {
	file, err := os.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		log.Fatalln("can't open db file")
		return nil
	}

	periodIdx := strings.LastIndex(dbFilename, ".")
	logfnameBase := dbFilename[:periodIdx]
	logfname := logfnameBase + "." + "log"
	logFile, err := os.OpenFile(logfname, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		log.Fatalln("can't open log file")
		return nil
	}

	fileInfo, err := file.Stat()
	if err != nil {
		log.Fatalln("file info error")
		return nil
	}

	logFileInfo, err := logFile.Stat()
	if err != nil {
		log.Fatalln("file info error (log file)")
		return nil
	}

	logFile.Seek(logFileInfo.Size(), io.SeekStart)

	fileSize := fileInfo.Size()
	nPages := fileSize / common.PageSize

	nextPageID := types.PageID(0)
	if nPages > 0 {
		nextPageID = types.PageID(int32(nPages + 1))
	}

	return &DiskManagerImpl{file, dbFilename, logFile, logfname, nextPageID, xsync.NewCounter(), xsync.NewCounter(), fileSize}
}

// ShutDown closes the database and log files
func (d *DiskManagerImpl) ShutDown() {
	d.db.Close()
	d.log.Close()
}

// WritePage writes a page to the database file
func (d *DiskManagerImpl) WritePage(pageId types.PageID, pageData []byte) error {
	offset := int64(pageId) * int64(common.PageSize)
	d.db.Seek(offset, io.SeekStart)
	bytesWritten, err := d.db.Write(pageData)
	if err != nil {
		return err
	}

	if bytesWritten != common.PageSize {
		return errors.New("bytes written not equals page size")
	}

	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}

	d.numWrites.Inc()
	d.db.Sync()
	return nil
}

// ReadPage reads a page from the database file. A page past the current
// end of file, or a short read, yields a zero filled buffer: the disk
// manager hands out zeros for pages that were allocated but never
// written.
func (d *DiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	offset := int64(pageID) * int64(common.PageSize)

	fileInfo, err := d.db.Stat()
	if err != nil {
		return errors.New("file info error")
	}

	if offset >= fileInfo.Size() {
		for i := 0; i < common.PageSize; i++ {
			pageData[i] = 0
		}
		return nil
	}

	d.db.Seek(offset, io.SeekStart)

	bytesRead, err := d.db.Read(pageData)
	if err != nil && err != io.EOF {
		return errors.New("I/O error while reading")
	}

	if bytesRead < common.PageSize {
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage allocates a new page id. The buffer pool instances carve
// their ids out of per-instance arithmetic progressions instead, so the
// buffer pool never calls this.
func (d *DiskManagerImpl) AllocatePage() types.PageID {
	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage deallocates a page.
// Tracking free disk space needs a bitmap in a header page. This does
// not actually need to do anything for now.
func (d *DiskManagerImpl) DeallocatePage(pageID types.PageID) {
}

// WriteLog appends log data to the log file and syncs it.
// Only returns when the sync is done; writes are sequential.
func (d *DiskManagerImpl) WriteLog(logData []byte) error {
	d.numFlushes.Inc()
	_, err := d.log.Write(logData)
	if err != nil {
		return err
	}
	d.log.Sync()
	return nil
}

// GetNumWrites returns the number of page writes so far
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	return uint64(d.numWrites.Value())
}

// GetNumFlushes returns the number of log flushes so far
func (d *DiskManagerImpl) GetNumFlushes() uint64 {
	return uint64(d.numFlushes.Value())
}

// Size returns the size of the database file
func (d *DiskManagerImpl) Size() int64 {
	return d.size
}

// RemoveDBFile removes the database file. Only valid after ShutDown.
func (d *DiskManagerImpl) RemoveDBFile() {
	os.Remove(d.fileName)
}

// RemoveLogFile removes the log file. Only valid after ShutDown.
func (d *DiskManagerImpl) RemoveLogFile() {
	os.Remove(d.fileNameLog)
}
