package page

import (
	"encoding/binary"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// PageType tags what a B+Tree page holds.
type PageType int32

const (
	InvalidPage PageType = iota
	LeafPage
	InternalPage
)

// Shared header of every B+Tree page, serialized little-endian at the front
// of the frame:
//
// | page type (4) | size (4) | max size (4) | parent id (4) | page id (4) |
//
// Leaf pages follow with | next page id (4) |; internal pages reserve the
// same four bytes so entries start at one offset for both kinds.
// An entry is | key (8) | value (8) |: packed RID in leaves, child page id
// in internals.
const (
	offPageType = 0
	offSize     = 4
	offMaxSize  = 8
	offParentID = 12
	offPageID   = 16

	offNextPageID = 20

	entriesOffset = 24
	entrySize     = 16
	keySize       = 8

	// MaxEntryCount is how many entries fit in a page; fanouts are capped here.
	MaxEntryCount = (common.PageSize - entriesOffset) / entrySize
)

// BPlusTreePage gives header access shared by leaf and internal views.
type BPlusTreePage struct {
	page *Page
}

// CastBPlusTreePage reinterprets a fetched frame as a B+Tree page of unknown
// kind. Inspect IsLeafPage before specialising.
func CastBPlusTreePage(p *Page) *BPlusTreePage {
	return &BPlusTreePage{page: p}
}

// Page returns the underlying frame.
func (bp *BPlusTreePage) Page() *Page {
	return bp.page
}

func (bp *BPlusTreePage) header32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(bp.page.Data()[off : off+4]))
}

func (bp *BPlusTreePage) setHeader32(off int, v int32) {
	binary.LittleEndian.PutUint32(bp.page.Data()[off:off+4], uint32(v))
}

func (bp *BPlusTreePage) GetPageType() PageType {
	return PageType(bp.header32(offPageType))
}

func (bp *BPlusTreePage) SetPageType(t PageType) {
	bp.setHeader32(offPageType, int32(t))
}

func (bp *BPlusTreePage) IsLeafPage() bool {
	return bp.GetPageType() == LeafPage
}

func (bp *BPlusTreePage) IsRootPage() bool {
	return bp.GetParentPageId() == types.InvalidPageID
}

func (bp *BPlusTreePage) GetSize() int32 {
	return bp.header32(offSize)
}

func (bp *BPlusTreePage) SetSize(size int32) {
	bp.setHeader32(offSize, size)
}

func (bp *BPlusTreePage) IncreaseSize(amount int32) {
	bp.SetSize(bp.GetSize() + amount)
}

func (bp *BPlusTreePage) GetMaxSize() int32 {
	return bp.header32(offMaxSize)
}

func (bp *BPlusTreePage) SetMaxSize(size int32) {
	common.SHAssertf(size >= 3 && size <= MaxEntryCount, "max size %d out of range", size)
	bp.setHeader32(offMaxSize, size)
}

// GetMinSize is the occupancy floor for non-root pages.
func (bp *BPlusTreePage) GetMinSize() int32 {
	return bp.GetMaxSize() / 2
}

func (bp *BPlusTreePage) GetParentPageId() types.PageID {
	return types.PageID(bp.header32(offParentID))
}

func (bp *BPlusTreePage) SetParentPageId(parentID types.PageID) {
	bp.setHeader32(offParentID, int32(parentID))
}

func (bp *BPlusTreePage) GetPageId() types.PageID {
	return types.PageID(bp.header32(offPageID))
}

func (bp *BPlusTreePage) SetPageId(pageID types.PageID) {
	bp.setHeader32(offPageID, int32(pageID))
}

// entry slot accessors shared by leaf and internal layouts

func (bp *BPlusTreePage) keyAt(index int32) int64 {
	off := entriesOffset + index*entrySize
	return int64(binary.LittleEndian.Uint64(bp.page.Data()[off : off+keySize]))
}

func (bp *BPlusTreePage) setKeyAt(index int32, key int64) {
	off := entriesOffset + index*entrySize
	binary.LittleEndian.PutUint64(bp.page.Data()[off:off+keySize], uint64(key))
}

func (bp *BPlusTreePage) slotAt(index int32) uint64 {
	off := entriesOffset + index*entrySize + keySize
	return binary.LittleEndian.Uint64(bp.page.Data()[off : off+8])
}

func (bp *BPlusTreePage) setSlotAt(index int32, v uint64) {
	off := entriesOffset + index*entrySize + keySize
	binary.LittleEndian.PutUint64(bp.page.Data()[off:off+8], v)
}

// copyEntries moves n whole entries inside the page, memmove semantics.
func (bp *BPlusTreePage) copyEntries(dst, src, n int32) {
	if n <= 0 {
		return
	}
	dstOff := entriesOffset + dst*entrySize
	srcOff := entriesOffset + src*entrySize
	copy(bp.page.Data()[dstOff:dstOff+n*entrySize], bp.page.Data()[srcOff:srcOff+n*entrySize])
}

// copyEntriesFrom appends n entries of src starting at srcIndex to dst at dstIndex.
func (bp *BPlusTreePage) copyEntriesFrom(src *BPlusTreePage, srcIndex, dstIndex, n int32) {
	if n <= 0 {
		return
	}
	dstOff := entriesOffset + dstIndex*entrySize
	srcOff := entriesOffset + srcIndex*entrySize
	copy(bp.page.Data()[dstOff:dstOff+n*entrySize], src.page.Data()[srcOff:srcOff+n*entrySize])
}

// KeyComparator orders keys; negative, zero, positive like bytes.Compare.
type KeyComparator func(a, b int64) int

// Int64Comparator is the natural order on int64 keys.
func Int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
