package recovery

import (
	"github.com/medakadb/medaka/common"
	"github.com/medakadb/medaka/storage/disk"
	"github.com/medakadb/medaka/types"
)

/**
 * LogManager buffers log records and writes them out through the disk
 * manager. When common.EnableLogging is set, the buffer pool flushes it
 * before evicting a dirty page so the log never trails the data it
 * describes.
 *
 * Only the handle surface is wired up here: record formats and recovery
 * replay belong to a later milestone.
 */
type LogManager struct {
	nextLSN       types.LSN
	persistentLSN types.LSN
	logBuffer     []byte
	offset        uint32
	latch         common.ReaderWriterLatch
	diskManager   disk.DiskManager
}

func NewLogManager(diskManager disk.DiskManager) *LogManager {
	ret := new(LogManager)
	ret.nextLSN = 0
	ret.persistentLSN = types.InvalidLSN
	ret.logBuffer = make([]byte, common.LogBufferSize)
	ret.offset = 0
	ret.latch = common.NewRWLatch()
	ret.diskManager = diskManager
	return ret
}

func (l *LogManager) GetNextLSN() types.LSN {
	l.latch.RLock()
	defer l.latch.RUnlock()
	return l.nextLSN
}

func (l *LogManager) GetPersistentLSN() types.LSN {
	l.latch.RLock()
	defer l.latch.RUnlock()
	return l.persistentLSN
}

// AppendRecord copies an opaque serialized record into the log buffer
// and assigns it an LSN. The buffer is flushed first when the record
// does not fit.
func (l *LogManager) AppendRecord(record []byte) types.LSN {
	l.latch.WLock()
	defer l.latch.WUnlock()

	if l.offset+uint32(len(record)) > uint32(len(l.logBuffer)) {
		l.flushLocked()
	}
	common.MD_Assert(uint32(len(record)) <= uint32(len(l.logBuffer)), "log record larger than the log buffer")

	copy(l.logBuffer[l.offset:], record)
	l.offset += uint32(len(record))

	lsn := l.nextLSN
	l.nextLSN++
	return lsn
}

// Flush forces the buffered records out through the disk manager.
func (l *LogManager) Flush() {
	l.latch.WLock()
	defer l.latch.WUnlock()
	l.flushLocked()
}

func (l *LogManager) flushLocked() {
	if l.offset == 0 {
		return
	}
	err := l.diskManager.WriteLog(l.logBuffer[:l.offset])
	common.MD_Assert(err == nil, "I/O error while flushing the log")
	l.offset = 0
	l.persistentLSN = l.nextLSN - 1
}
