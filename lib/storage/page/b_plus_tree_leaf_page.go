package page

import (
	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// BPlusTreeLeafPage stores (key, packed RID) entries in strictly ascending
// key order. Leaves are chained by next page id into the scan order of the
// whole index.
type BPlusTreeLeafPage struct {
	BPlusTreePage
}

// CastLeafPage reinterprets a fetched frame as a leaf page.
func CastLeafPage(p *Page) *BPlusTreeLeafPage {
	lp := &BPlusTreeLeafPage{BPlusTreePage{page: p}}
	common.SHAssert(lp.GetPageType() == LeafPage, "page is not a leaf page")
	return lp
}

// InitLeafPage formats a fresh frame as an empty leaf.
func InitLeafPage(p *Page, pageID, parentID types.PageID, maxSize int32) *BPlusTreeLeafPage {
	lp := &BPlusTreeLeafPage{BPlusTreePage{page: p}}
	lp.SetPageType(LeafPage)
	lp.SetSize(0)
	lp.SetMaxSize(maxSize)
	lp.SetParentPageId(parentID)
	lp.SetPageId(pageID)
	lp.SetNextPageId(types.InvalidPageID)
	return lp
}

func (lp *BPlusTreeLeafPage) GetNextPageId() types.PageID {
	return types.PageID(lp.header32(offNextPageID))
}

func (lp *BPlusTreeLeafPage) SetNextPageId(nextID types.PageID) {
	lp.setHeader32(offNextPageID, int32(nextID))
}

func (lp *BPlusTreeLeafPage) KeyAt(index int32) int64 {
	return lp.keyAt(index)
}

func (lp *BPlusTreeLeafPage) ValueAt(index int32) RID {
	return UnpackUint64toRID(lp.slotAt(index))
}

// KeyIndex returns the first index whose key is >= key, which is GetSize()
// when every key is smaller.
func (lp *BPlusTreeLeafPage) KeyIndex(key int64, cmp KeyComparator) int32 {
	lo, hi := int32(0), lp.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(lp.keyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup binary-searches for key.
func (lp *BPlusTreeLeafPage) Lookup(key int64, cmp KeyComparator) (RID, bool) {
	index := lp.KeyIndex(key, cmp)
	if index < lp.GetSize() && cmp(lp.keyAt(index), key) == 0 {
		return lp.ValueAt(index), true
	}
	return RID{PageId: types.InvalidPageID}, false
}

// Insert places (key, value) at its ordered position and returns the new
// size. The caller has already ruled out a duplicate key.
func (lp *BPlusTreeLeafPage) Insert(key int64, value RID, cmp KeyComparator) int32 {
	index := lp.KeyIndex(key, cmp)
	size := lp.GetSize()
	lp.copyEntries(index+1, index, size-index)
	lp.setKeyAt(index, key)
	lp.setSlotAt(index, PackRIDtoUint64(&value))
	lp.SetSize(size + 1)
	return size + 1
}

// RemoveAndDeleteRecord removes key if present; returns the new size and
// whether the key was found.
func (lp *BPlusTreeLeafPage) RemoveAndDeleteRecord(key int64, cmp KeyComparator) (int32, bool) {
	index := lp.KeyIndex(key, cmp)
	size := lp.GetSize()
	if index >= size || cmp(lp.keyAt(index), key) != 0 {
		return size, false
	}
	lp.copyEntries(index, index+1, size-index-1)
	lp.SetSize(size - 1)
	return size - 1, true
}

// MoveHalfTo moves the upper half of this page's entries into an empty split
// sibling and relinks the leaf chain through it.
func (lp *BPlusTreeLeafPage) MoveHalfTo(recipient *BPlusTreeLeafPage) {
	size := lp.GetSize()
	keep := lp.GetMinSize()
	moved := size - keep
	recipient.copyEntriesFrom(&lp.BPlusTreePage, keep, 0, moved)
	recipient.SetSize(moved)
	lp.SetSize(keep)
	recipient.SetNextPageId(lp.GetNextPageId())
	lp.SetNextPageId(recipient.GetPageId())
}

// MoveAllTo empties this page into the left sibling during a coalesce.
func (lp *BPlusTreeLeafPage) MoveAllTo(recipient *BPlusTreeLeafPage) {
	size := lp.GetSize()
	recipient.copyEntriesFrom(&lp.BPlusTreePage, 0, recipient.GetSize(), size)
	recipient.IncreaseSize(size)
	lp.SetSize(0)
	recipient.SetNextPageId(lp.GetNextPageId())
}

// MoveFirstToEndOf shifts this page's first entry onto the tail of the left
// sibling during a redistribute.
func (lp *BPlusTreeLeafPage) MoveFirstToEndOf(recipient *BPlusTreeLeafPage) {
	size := lp.GetSize()
	rsize := recipient.GetSize()
	recipient.copyEntriesFrom(&lp.BPlusTreePage, 0, rsize, 1)
	recipient.SetSize(rsize + 1)
	lp.copyEntries(0, 1, size-1)
	lp.SetSize(size - 1)
}

// MoveLastToFrontOf shifts this page's last entry onto the head of the right
// sibling during a redistribute.
func (lp *BPlusTreeLeafPage) MoveLastToFrontOf(recipient *BPlusTreeLeafPage) {
	size := lp.GetSize()
	rsize := recipient.GetSize()
	recipient.copyEntries(1, 0, rsize)
	recipient.copyEntriesFrom(&lp.BPlusTreePage, size-1, 0, 1)
	recipient.SetSize(rsize + 1)
	lp.SetSize(size - 1)
}
