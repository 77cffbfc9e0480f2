package buffer

import (
	"container/list"

	"github.com/sasha-s/go-deadlock"
)

// FrameID is the type for frame id
type FrameID uint32

// LRUReplacer tracks the frames that may be victimized, ordered by how
// recently they became evictable. Unpin adds, Pin removes: membership
// tracks evictability. The list keeps the most recently unpinned frame
// at the front, so the victim always comes off the back.
type LRUReplacer struct {
	capacity uint32
	mutex    deadlock.Mutex
	lruList  *list.List
	lruMap   map[FrameID]*list.Element
}

// NewLRUReplacer instantiates a new LRU replacer bounded by poolSize
func NewLRUReplacer(poolSize uint32) *LRUReplacer {
	return &LRUReplacer{
		capacity: poolSize,
		lruList:  list.New(),
		lruMap:   make(map[FrameID]*list.Element),
	}
}

// Victim removes and returns the least recently unpinned frame.
// Returns nil when no frame is evictable.
func (l *LRUReplacer) Victim() *FrameID {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	back := l.lruList.Back()
	if back == nil {
		return nil
	}

	frameID := l.lruList.Remove(back).(FrameID)
	delete(l.lruMap, frameID)
	return &frameID
}

// Pin removes a frame from the replacer, making it unevictable.
// Pinning a frame that is not present is a no-op.
func (l *LRUReplacer) Pin(id FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	elem, ok := l.lruMap[id]
	if !ok {
		return
	}
	l.lruList.Remove(elem)
	delete(l.lruMap, id)
}

// Unpin inserts a frame at the most recently unpinned end. Unpinning a
// frame that is already present, or inserting past capacity, is a no-op.
func (l *LRUReplacer) Unpin(id FrameID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, ok := l.lruMap[id]; ok {
		return
	}
	if uint32(l.lruList.Len()) == l.capacity {
		return
	}

	l.lruMap[id] = l.lruList.PushFront(id)
}

// Size returns the number of evictable frames
func (l *LRUReplacer) Size() uint32 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return uint32(l.lruList.Len())
}

func (l *LRUReplacer) isContain(id FrameID) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	_, ok := l.lruMap[id]
	return ok
}
