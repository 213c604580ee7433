package btree

import (
	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/storage/page"
	"github.com/perchdb/perch/lib/types"
)

// IndexIterator walks the leaf chain in key order. While it points at an
// entry it keeps that leaf pinned and read-latched; advancing off a leaf
// hands both over to the next one. Close releases them when a scan stops
// early. Every constructor hands back the same discipline.
type IndexIterator struct {
	bpm   pagePool
	page  *page.Page
	leaf  *page.BPlusTreeLeafPage
	index int32
}

type pagePool interface {
	FetchPage(pageID types.PageID) *page.Page
	UnpinPage(pageID types.PageID, isDirty bool) bool
}

func newIndexIterator(bpm pagePool, leafP *page.Page, index int32) *IndexIterator {
	it := &IndexIterator{bpm: bpm, page: leafP, index: index}
	if leafP != nil {
		it.leaf = page.CastLeafPage(leafP)
	}
	return it
}

// Begin returns an iterator at the smallest key.
func (t *BPlusTree) Begin() *IndexIterator {
	leafP := t.findLeafRead(0, searchLeftMost)
	if leafP == nil {
		return newIndexIterator(t.bpm, nil, 0)
	}
	return newIndexIterator(t.bpm, leafP, 0)
}

// BeginFrom returns an iterator at the first entry whose key is >= key.
func (t *BPlusTree) BeginFrom(key int64) *IndexIterator {
	leafP := t.findLeafRead(key, searchByKey)
	if leafP == nil {
		return newIndexIterator(t.bpm, nil, 0)
	}
	leaf := page.CastLeafPage(leafP)
	index := leaf.KeyIndex(key, t.comparator)
	it := newIndexIterator(t.bpm, leafP, index)
	if index >= leaf.GetSize() {
		// key sorts past this leaf's entries; step onto the next leaf
		it.index = leaf.GetSize() - 1
		it.Next()
	}
	return it
}

// End returns the one-past-the-last iterator.
func (t *BPlusTree) End() *IndexIterator {
	return newIndexIterator(t.bpm, nil, 0)
}

// IsEnd reports whether the iterator has run off the rightmost leaf.
func (it *IndexIterator) IsEnd() bool {
	return it.page == nil
}

// Key returns the key at the current position.
func (it *IndexIterator) Key() int64 {
	common.SHAssert(!it.IsEnd(), "deref of end iterator")
	return it.leaf.KeyAt(it.index)
}

// Value returns the RID at the current position.
func (it *IndexIterator) Value() page.RID {
	common.SHAssert(!it.IsEnd(), "deref of end iterator")
	return it.leaf.ValueAt(it.index)
}

// Next advances one entry, following the leaf chain across page boundaries.
func (it *IndexIterator) Next() {
	common.SHAssert(!it.IsEnd(), "advance of end iterator")

	it.index++
	if it.index < it.leaf.GetSize() {
		return
	}

	nextID := it.leaf.GetNextPageId()
	it.page.RUnlatch()
	it.bpm.UnpinPage(it.page.GetPageId(), false)

	if nextID == types.InvalidPageID {
		it.page = nil
		it.leaf = nil
		it.index = 0
		return
	}

	nextP := it.bpm.FetchPage(nextID)
	common.SHAssert(nextP != nil, "out of memory: fetch next leaf")
	nextP.RLatch()
	it.page = nextP
	it.leaf = page.CastLeafPage(nextP)
	it.index = 0
}

// Close releases the current leaf; safe to call on an exhausted iterator.
func (it *IndexIterator) Close() {
	if it.page == nil {
		return
	}
	it.page.RUnlatch()
	it.bpm.UnpinPage(it.page.GetPageId(), false)
	it.page = nil
	it.leaf = nil
}
