package buffer

import (
	"container/list"
	"sync"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/container/hash"
	"github.com/perchdb/perch/lib/storage/disk"
	"github.com/perchdb/perch/lib/storage/page"
	"github.com/perchdb/perch/lib/types"
)

// how many accesses the replacer weighs when ranking victims
const defaultReplacerK = 10

// BufferPoolManager keeps a fixed set of page frames over the disk manager.
// The page directory is an extendible hash table from page id to frame, and
// victims among unpinned frames are chosen by the LRU-K replacer.
type BufferPoolManager struct {
	mu          sync.Mutex
	frames      []*page.Page
	pageTable   *hash.ExtendibleHashTable[types.PageID, types.FrameID]
	replacer    *LRUKReplacer
	freeList    *list.List
	diskManager disk.DiskManager
}

// NewBufferPoolManager creates a pool of poolSize frames, all initially free.
func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager) *BufferPoolManager {
	frames := make([]*page.Page, poolSize)
	freeList := list.New()
	for i := range frames {
		frames[i] = page.NewEmpty()
		freeList.PushBack(types.FrameID(i))
	}
	return &BufferPoolManager{
		frames:      frames,
		pageTable:   hash.NewExtendibleHashTable[types.PageID, types.FrameID](4, hash.IntHasher[types.PageID]),
		replacer:    NewLRUKReplacer(types.FrameID(poolSize), defaultReplacerK),
		freeList:    freeList,
		diskManager: diskManager,
	}
}

// FetchPage pins and returns the frame holding pageID, reading it from disk
// when absent. Returns nil when every frame is pinned.
func (b *BufferPoolManager) FetchPage(pageID types.PageID) *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable.Find(pageID); ok {
		frame := b.frames[frameID]
		frame.IncPinCount()
		b.replacer.RecordAccess(frameID)
		b.replacer.SetEvictable(frameID, false)
		return frame
	}

	frameID, ok := b.takeFrame()
	if !ok {
		return nil
	}
	frame := b.frames[frameID]
	if err := b.diskManager.ReadPage(pageID, frame.Data()[:]); err != nil {
		// allocated but never flushed pages read back as zeroes
		frame.ResetMemory()
	}
	frame.SetPageId(pageID)
	frame.SetPinCount(1)
	frame.SetIsDirty(false)

	b.pageTable.Insert(pageID, frameID)
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)
	return frame
}

// NewPage allocates a fresh page, pins it into a frame, and returns it.
// Returns nil when every frame is pinned.
func (b *BufferPoolManager) NewPage() *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.takeFrame()
	if !ok {
		return nil
	}
	pageID := b.diskManager.AllocatePage()

	frame := b.frames[frameID]
	frame.ResetMemory()
	frame.SetPageId(pageID)
	frame.SetPinCount(1)
	// dirty from birth so eviction materializes the page
	frame.SetIsDirty(true)

	b.pageTable.Insert(pageID, frameID)
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)
	return frame
}

// UnpinPage drops one pin from pageID, recording dirtiness. The frame becomes
// evictable when the pin count reaches zero.
func (b *BufferPoolManager) UnpinPage(pageID types.PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}
	frame := b.frames[frameID]
	if frame.PinCount() <= 0 {
		return false
	}
	if isDirty {
		frame.SetIsDirty(true)
	}
	frame.DecPinCount()
	if frame.PinCount() == 0 {
		b.replacer.SetEvictable(frameID, true)
	}
	return true
}

// DeletePage frees pageID's frame. The caller must hold no pins on it.
func (b *BufferPoolManager) DeletePage(pageID types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return true
	}
	frame := b.frames[frameID]
	if frame.PinCount() > 0 {
		return false
	}

	b.pageTable.Remove(pageID)
	b.replacer.Remove(frameID)
	frame.ResetMemory()
	frame.SetPageId(types.InvalidPageID)
	frame.SetIsDirty(false)
	b.freeList.PushBack(frameID)
	b.diskManager.DeallocatePage(pageID)
	return true
}

// FlushPage writes pageID through to disk regardless of its pin count.
func (b *BufferPoolManager) FlushPage(pageID types.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushPage(pageID)
}

// FlushAllPages writes every resident page through to disk.
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, frame := range b.frames {
		if frame.GetPageId() != types.InvalidPageID {
			b.flushPage(frame.GetPageId())
		}
	}
}

// GetPoolSize returns the number of frames.
func (b *BufferPoolManager) GetPoolSize() int {
	return len(b.frames)
}

func (b *BufferPoolManager) flushPage(pageID types.PageID) bool {
	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}
	frame := b.frames[frameID]
	if err := b.diskManager.WritePage(pageID, frame.Data()[:]); err != nil {
		return false
	}
	frame.SetIsDirty(false)
	return true
}

// takeFrame claims a frame for a new resident page: from the free list when
// one exists, otherwise by evicting the replacer's victim.
func (b *BufferPoolManager) takeFrame() (types.FrameID, bool) {
	if elem := b.freeList.Front(); elem != nil {
		b.freeList.Remove(elem)
		return elem.Value.(types.FrameID), true
	}

	frameID, ok := b.replacer.Evict()
	if !ok {
		return 0, false
	}
	victim := b.frames[frameID]
	common.SHAssert(victim.PinCount() == 0, "evicted a pinned frame")
	if victim.IsDirty() {
		if err := b.diskManager.WritePage(victim.GetPageId(), victim.Data()[:]); err != nil {
			panic("flush of victim page failed")
		}
	}
	b.pageTable.Remove(victim.GetPageId())
	return frameID, true
}
