package buffer

import (
	"container/list"
	"sync"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// LRUKReplacer picks victim frames by backward k-distance. Frames with fewer
// than k recorded accesses live in the history queue and have infinite
// k-distance, so they are preferred victims, oldest first. Frames with k or
// more accesses live in the cache queue ordered by their most recent access.
//
// Both queues keep the most recent entry at the front, so eviction scans from
// the back. Only frames marked evictable are candidates.
type LRUKReplacer struct {
	mu           sync.Mutex
	replacerSize types.FrameID
	k            int64

	historyList *list.List // frames with < k accesses, most recently inserted first
	historyMap  map[types.FrameID]*list.Element
	cacheList   *list.List // frames with >= k accesses, most recently accessed first
	cacheMap    map[types.FrameID]*list.Element

	accessCount map[types.FrameID]int64
	evictable   map[types.FrameID]bool
	currSize    int64
}

// NewLRUKReplacer creates a replacer tracking frames [0, numFrames).
func NewLRUKReplacer(numFrames types.FrameID, k int64) *LRUKReplacer {
	return &LRUKReplacer{
		replacerSize: numFrames,
		k:            k,
		historyList:  list.New(),
		historyMap:   make(map[types.FrameID]*list.Element),
		cacheList:    list.New(),
		cacheMap:     make(map[types.FrameID]*list.Element),
		accessCount:  make(map[types.FrameID]int64),
		evictable:    make(map[types.FrameID]bool),
	}
}

// RecordAccess notes an access to frameID, promoting it to the cache queue on
// its k-th access. An out-of-range frame id is an invariant breach.
func (r *LRUKReplacer) RecordAccess(frameID types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	common.SHAssertf(frameID >= 0 && frameID < r.replacerSize, "invalid frame id %d", frameID)

	if _, seen := r.accessCount[frameID]; !seen {
		r.historyMap[frameID] = r.historyList.PushFront(frameID)
		r.evictable[frameID] = false
	}

	r.accessCount[frameID]++
	if r.accessCount[frameID] < r.k {
		return
	}

	if elem, ok := r.historyMap[frameID]; ok {
		r.historyList.Remove(elem)
		delete(r.historyMap, frameID)
		r.cacheMap[frameID] = r.cacheList.PushFront(frameID)
	} else if elem, ok := r.cacheMap[frameID]; ok {
		r.cacheList.MoveToFront(elem)
	}
}

// SetEvictable toggles whether frameID may be chosen by Evict. Unknown frames
// are ignored.
func (r *LRUKReplacer) SetEvictable(frameID types.FrameID, setEvictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	common.SHAssertf(frameID >= 0 && frameID < r.replacerSize, "invalid frame id %d", frameID)

	if r.accessCount[frameID] == 0 {
		return
	}
	if r.evictable[frameID] && !setEvictable {
		r.currSize--
		r.evictable[frameID] = false
	} else if !r.evictable[frameID] && setEvictable {
		r.currSize++
		r.evictable[frameID] = true
	}
}

// Evict removes and returns the evictable frame with the largest backward
// k-distance: the oldest history-queue frame first, otherwise the least
// recently used cache-queue frame. Returns false when nothing is evictable.
func (r *LRUKReplacer) Evict() (types.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize == 0 {
		return 0, false
	}
	for elem := r.historyList.Back(); elem != nil; elem = elem.Prev() {
		frameID := elem.Value.(types.FrameID)
		if r.evictable[frameID] {
			r.historyList.Remove(elem)
			delete(r.historyMap, frameID)
			r.dropFrame(frameID)
			return frameID, true
		}
	}
	for elem := r.cacheList.Back(); elem != nil; elem = elem.Prev() {
		frameID := elem.Value.(types.FrameID)
		if r.evictable[frameID] {
			r.cacheList.Remove(elem)
			delete(r.cacheMap, frameID)
			r.dropFrame(frameID)
			return frameID, true
		}
	}
	return 0, false
}

// Remove forcibly drops frameID from the replacer. Removing a non-evictable
// frame is an invariant breach; unknown frames are ignored.
func (r *LRUKReplacer) Remove(frameID types.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	common.SHAssertf(frameID >= 0 && frameID < r.replacerSize, "invalid frame id %d", frameID)

	cnt, seen := r.accessCount[frameID]
	if !seen || cnt == 0 {
		return
	}
	common.SHAssertf(r.evictable[frameID], "remove of non-evictable frame %d", frameID)

	if cnt < r.k {
		r.historyList.Remove(r.historyMap[frameID])
		delete(r.historyMap, frameID)
	} else {
		r.cacheList.Remove(r.cacheMap[frameID])
		delete(r.cacheMap, frameID)
	}
	r.dropFrame(frameID)
}

// Size returns how many frames are currently evictable.
func (r *LRUKReplacer) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}

func (r *LRUKReplacer) dropFrame(frameID types.FrameID) {
	delete(r.accessCount, frameID)
	delete(r.evictable, frameID)
	r.currSize--
}
