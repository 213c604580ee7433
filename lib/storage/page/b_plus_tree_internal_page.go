package page

import (
	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// BPlusTreeInternalPage stores (key, child page id) entries. The key in slot
// zero is unused: subtree child_0 holds keys below key_1, subtree child_i
// holds keys in [key_i, key_{i+1}).
type BPlusTreeInternalPage struct {
	BPlusTreePage
}

// CastInternalPage reinterprets a fetched frame as an internal page.
func CastInternalPage(p *Page) *BPlusTreeInternalPage {
	ip := &BPlusTreeInternalPage{BPlusTreePage{page: p}}
	common.SHAssert(ip.GetPageType() == InternalPage, "page is not an internal page")
	return ip
}

// InitInternalPage formats a fresh frame as an empty internal page.
func InitInternalPage(p *Page, pageID, parentID types.PageID, maxSize int32) *BPlusTreeInternalPage {
	ip := &BPlusTreeInternalPage{BPlusTreePage{page: p}}
	ip.SetPageType(InternalPage)
	ip.SetSize(0)
	ip.SetMaxSize(maxSize)
	ip.SetParentPageId(parentID)
	ip.SetPageId(pageID)
	return ip
}

func (ip *BPlusTreeInternalPage) KeyAt(index int32) int64 {
	return ip.keyAt(index)
}

func (ip *BPlusTreeInternalPage) SetKeyAt(index int32, key int64) {
	ip.setKeyAt(index, key)
}

func (ip *BPlusTreeInternalPage) ValueAt(index int32) types.PageID {
	return types.PageID(int32(ip.slotAt(index)))
}

func (ip *BPlusTreeInternalPage) SetValueAt(index int32, value types.PageID) {
	ip.setSlotAt(index, uint64(uint32(value)))
}

// ValueIndex returns the slot holding child value, or -1.
func (ip *BPlusTreeInternalPage) ValueIndex(value types.PageID) int32 {
	for i := int32(0); i < ip.GetSize(); i++ {
		if ip.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup returns the child that covers key: the child left of the first
// separator greater than key.
func (ip *BPlusTreeInternalPage) Lookup(key int64, cmp KeyComparator) types.PageID {
	lo, hi := int32(1), ip.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(ip.keyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return ip.ValueAt(lo - 1)
}

// PopulateNewRoot makes this page the root above a freshly split pair.
func (ip *BPlusTreeInternalPage) PopulateNewRoot(oldValue types.PageID, newKey int64, newValue types.PageID) {
	ip.SetValueAt(0, oldValue)
	ip.setKeyAt(1, newKey)
	ip.SetValueAt(1, newValue)
	ip.SetSize(2)
}

// InsertNodeAfter places (newKey, newValue) immediately after the slot whose
// child is oldValue; returns the new size.
func (ip *BPlusTreeInternalPage) InsertNodeAfter(oldValue types.PageID, newKey int64, newValue types.PageID) int32 {
	index := ip.ValueIndex(oldValue)
	common.SHAssert(index != -1, "old child not present in parent")
	size := ip.GetSize()
	ip.copyEntries(index+2, index+1, size-index-1)
	ip.setKeyAt(index+1, newKey)
	ip.SetValueAt(index+1, newValue)
	ip.SetSize(size + 1)
	return size + 1
}

// Remove drops the entry at index.
func (ip *BPlusTreeInternalPage) Remove(index int32) {
	size := ip.GetSize()
	ip.copyEntries(index, index+1, size-index-1)
	ip.SetSize(size - 1)
}

// RemoveAndReturnOnlyChild collapses a size-one root into its child.
func (ip *BPlusTreeInternalPage) RemoveAndReturnOnlyChild() types.PageID {
	common.SHAssert(ip.GetSize() == 1, "page has more than one child")
	child := ip.ValueAt(0)
	ip.SetSize(0)
	return child
}

// MoveHalfTo moves the upper half of this page's entries into an empty split
// sibling and reparents the moved children.
func (ip *BPlusTreeInternalPage) MoveHalfTo(recipient *BPlusTreeInternalPage, pool PagePool) {
	size := ip.GetSize()
	keep := (size + 1) / 2
	moved := size - keep
	recipient.copyEntriesFrom(&ip.BPlusTreePage, keep, 0, moved)
	recipient.SetSize(moved)
	ip.SetSize(keep)
	recipient.adoptChildren(0, moved, pool)
}

// MoveAllTo empties this page into the left sibling during a coalesce. The
// separator key from the parent is pulled down above the first moved child.
func (ip *BPlusTreeInternalPage) MoveAllTo(recipient *BPlusTreeInternalPage, middleKey int64, pool PagePool) {
	size := ip.GetSize()
	rsize := recipient.GetSize()
	recipient.copyEntriesFrom(&ip.BPlusTreePage, 0, rsize, size)
	recipient.setKeyAt(rsize, middleKey)
	recipient.IncreaseSize(size)
	ip.SetSize(0)
	recipient.adoptChildren(rsize, size, pool)
}

// MoveFirstToEndOf shifts this page's first child onto the tail of the left
// sibling; the parent separator comes down as that entry's key.
func (ip *BPlusTreeInternalPage) MoveFirstToEndOf(recipient *BPlusTreeInternalPage, middleKey int64, pool PagePool) {
	size := ip.GetSize()
	rsize := recipient.GetSize()
	recipient.setKeyAt(rsize, middleKey)
	recipient.SetValueAt(rsize, ip.ValueAt(0))
	recipient.SetSize(rsize + 1)
	ip.copyEntries(0, 1, size-1)
	ip.SetSize(size - 1)
	recipient.adoptChildren(rsize, 1, pool)
}

// MoveLastToFrontOf shifts this page's last child onto the head of the right
// sibling; the parent separator comes down as the key above the old head.
func (ip *BPlusTreeInternalPage) MoveLastToFrontOf(recipient *BPlusTreeInternalPage, middleKey int64, pool PagePool) {
	size := ip.GetSize()
	rsize := recipient.GetSize()
	recipient.copyEntries(1, 0, rsize)
	recipient.setKeyAt(1, middleKey)
	recipient.SetValueAt(0, ip.ValueAt(size-1))
	recipient.SetSize(rsize + 1)
	ip.SetSize(size - 1)
	recipient.adoptChildren(0, 1, pool)
}

// adoptChildren rewrites parent ids of n children starting at slot start.
func (ip *BPlusTreeInternalPage) adoptChildren(start, n int32, pool PagePool) {
	for i := start; i < start+n; i++ {
		childID := ip.ValueAt(i)
		child := pool.FetchPage(childID)
		common.SHAssert(child != nil, "failed to fetch child page")
		CastBPlusTreePage(child).SetParentPageId(ip.GetPageId())
		pool.UnpinPage(childID, true)
	}
}
