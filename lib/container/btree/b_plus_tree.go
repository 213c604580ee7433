// Package btree implements a concurrent B+Tree index over buffer-pool pages.
//
// Readers and writers descend with latch crabbing: a reader holds a parent's
// read latch only until the child's is taken, a writer keeps ancestor write
// latches in its OpTracker until the child is structurally safe for the
// operation. The
// root-id guard serializes descents against root replacement and is
// represented in the tracker by a nil sentinel.
package btree

import (
	"sync"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/storage/buffer"
	"github.com/perchdb/perch/lib/storage/page"
	"github.com/perchdb/perch/lib/types"
)

type opType int

const (
	opGet opType = iota
	opInsert
	opDelete
)

type leafSearchMode int

const (
	searchByKey leafSearchMode = iota
	searchLeftMost
	searchRightMost
)

// BPlusTree maps int64 keys to RIDs. Keys are unique; fanouts are fixed at
// construction and capped by what a page can hold.
type BPlusTree struct {
	indexName       string
	rootPageID      types.PageID
	bpm             *buffer.BufferPoolManager
	comparator      page.KeyComparator
	leafMaxSize     int32
	internalMaxSize int32
	rootLatch       sync.RWMutex // the root-id guard
}

// NewBPlusTree opens (or creates) the index named indexName. An existing root
// recorded in the header page is picked up again.
func NewBPlusTree(indexName string, bpm *buffer.BufferPoolManager, comparator page.KeyComparator, leafMaxSize, internalMaxSize int32) *BPlusTree {
	common.SHAssertf(leafMaxSize >= 3 && leafMaxSize <= page.MaxEntryCount, "leaf max size %d out of range", leafMaxSize)
	common.SHAssertf(internalMaxSize >= 3 && internalMaxSize < page.MaxEntryCount, "internal max size %d out of range", internalMaxSize)

	tree := &BPlusTree{
		indexName:       indexName,
		rootPageID:      types.InvalidPageID,
		bpm:             bpm,
		comparator:      comparator,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}

	headerP := bpm.FetchPage(types.HeaderPageID)
	common.SHAssert(headerP != nil, "failed to fetch header page")
	if rootID, ok := page.CastHeaderPage(headerP).GetRootId(indexName); ok {
		tree.rootPageID = rootID
	}
	bpm.UnpinPage(types.HeaderPageID, false)

	return tree
}

// IsEmpty reports whether the tree has no root.
func (t *BPlusTree) IsEmpty() bool {
	return t.rootPageID == types.InvalidPageID
}

// GetRootPageId returns the current root page id.
func (t *BPlusTree) GetRootPageId() types.PageID {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID
}

// GetValue looks up key.
func (t *BPlusTree) GetValue(key int64) (page.RID, bool) {
	leafP := t.findLeafRead(key, searchByKey)
	if leafP == nil {
		return page.RID{PageId: types.InvalidPageID}, false
	}
	leaf := page.CastLeafPage(leafP)
	rid, found := leaf.Lookup(key, t.comparator)
	leafP.RUnlatch()
	t.bpm.UnpinPage(leafP.GetPageId(), false)
	return rid, found
}

// Insert adds (key, value). Returns false when key is already present.
func (t *BPlusTree) Insert(key int64, value page.RID) bool {
	tracker := NewOpTracker()
	t.rootLatch.Lock()
	tracker.AddIntoPageSet(nil)

	if t.IsEmpty() {
		t.startNewTree(key, value)
		t.releaseWLatches(tracker)
		return true
	}

	leafP := t.findLeaf(key, opInsert, tracker)
	leaf := page.CastLeafPage(leafP)

	if _, exists := leaf.Lookup(key, t.comparator); exists {
		t.releaseWLatches(tracker)
		leafP.WUnlatch()
		t.bpm.UnpinPage(leafP.GetPageId(), false)
		return false
	}

	newSize := leaf.Insert(key, value, t.comparator)
	if newSize < t.leafMaxSize {
		t.releaseWLatches(tracker)
		leafP.WUnlatch()
		t.bpm.UnpinPage(leafP.GetPageId(), true)
		return true
	}

	// leaf overflowed: split and grow upward
	siblingP, sibling := t.splitLeaf(leaf)
	t.insertIntoParent(&leaf.BPlusTreePage, sibling.KeyAt(0), &sibling.BPlusTreePage)

	t.releaseWLatches(tracker)
	leafP.WUnlatch()
	t.bpm.UnpinPage(leafP.GetPageId(), true)
	t.bpm.UnpinPage(siblingP.GetPageId(), true)
	return true
}

// Remove deletes key if present.
func (t *BPlusTree) Remove(key int64) {
	tracker := NewOpTracker()
	t.rootLatch.Lock()
	tracker.AddIntoPageSet(nil)

	if t.IsEmpty() {
		t.releaseWLatches(tracker)
		return
	}

	leafP := t.findLeaf(key, opDelete, tracker)
	leaf := page.CastLeafPage(leafP)

	newSize, found := leaf.RemoveAndDeleteRecord(key, t.comparator)
	if !found {
		t.releaseWLatches(tracker)
		leafP.WUnlatch()
		t.bpm.UnpinPage(leafP.GetPageId(), false)
		return
	}

	if newSize < leaf.GetMinSize() {
		if t.coalesceOrRedistribute(&leaf.BPlusTreePage, tracker) {
			tracker.AddIntoDeletedPageSet(leafP.GetPageId())
		}
	}

	t.releaseWLatches(tracker)
	leafP.WUnlatch()
	t.bpm.UnpinPage(leafP.GetPageId(), true)

	tracker.GetDeletedPageSet().Each(func(pageID types.PageID) bool {
		t.bpm.DeletePage(pageID)
		return false
	})
	tracker.ClearDeletedPageSet()
}

// startNewTree plants the first leaf as root. The root-id guard is held.
func (t *BPlusTree) startNewTree(key int64, value page.RID) {
	newP := t.bpm.NewPage()
	common.SHAssert(newP != nil, "out of memory: new root leaf")

	leaf := page.InitLeafPage(newP, newP.GetPageId(), types.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, value, t.comparator)

	t.rootPageID = newP.GetPageId()
	t.updateRootPageId()
	t.bpm.UnpinPage(newP.GetPageId(), true)
}

// findLeafRead descends with read crabbing and returns the target leaf,
// read-latched and pinned. Returns nil on an empty tree.
func (t *BPlusTree) findLeafRead(key int64, mode leafSearchMode) *page.Page {
	t.rootLatch.RLock()
	if t.IsEmpty() {
		t.rootLatch.RUnlock()
		return nil
	}

	p := t.bpm.FetchPage(t.rootPageID)
	common.SHAssert(p != nil, "out of memory: fetch root")
	p.RLatch()
	t.rootLatch.RUnlock()

	node := page.CastBPlusTreePage(p)
	for !node.IsLeafPage() {
		internal := page.CastInternalPage(p)
		var childID types.PageID
		switch mode {
		case searchLeftMost:
			childID = internal.ValueAt(0)
		case searchRightMost:
			childID = internal.ValueAt(internal.GetSize() - 1)
		default:
			childID = internal.Lookup(key, t.comparator)
		}

		childP := t.bpm.FetchPage(childID)
		common.SHAssert(childP != nil, "out of memory: fetch child")
		childP.RLatch()
		p.RUnlatch()
		t.bpm.UnpinPage(p.GetPageId(), false)

		p = childP
		node = page.CastBPlusTreePage(p)
	}
	return p
}

// findLeaf descends with write crabbing for op and returns the target leaf,
// write-latched and pinned. Ancestor latches that could still be touched by a
// structural change stay in the tracker; safe descents drain it early. The
// caller holds the root-id guard and has pushed its sentinel.
func (t *BPlusTree) findLeaf(key int64, op opType, tracker *OpTracker) *page.Page {
	common.SHAssert(!t.IsEmpty(), "descent on empty tree")

	p := t.bpm.FetchPage(t.rootPageID)
	common.SHAssert(p != nil, "out of memory: fetch root")
	p.WLatch()

	node := page.CastBPlusTreePage(p)
	if t.isSafe(node, op) {
		t.releaseWLatches(tracker)
	}

	for !node.IsLeafPage() {
		internal := page.CastInternalPage(p)
		childID := internal.Lookup(key, t.comparator)

		childP := t.bpm.FetchPage(childID)
		common.SHAssert(childP != nil, "out of memory: fetch child")
		childP.WLatch()
		tracker.AddIntoPageSet(p)

		child := page.CastBPlusTreePage(childP)
		if t.isSafe(child, op) {
			t.releaseWLatches(tracker)
		}

		p = childP
		node = child
	}
	return p
}

// isSafe reports whether node cannot split (insert) or underflow (delete), so
// every latch above it may be released.
func (t *BPlusTree) isSafe(node *page.BPlusTreePage, op opType) bool {
	if op == opInsert {
		// a leaf grows by one before the overflow check, hence the tighter bound
		if node.IsLeafPage() {
			return node.GetSize() < node.GetMaxSize()-1
		}
		return node.GetSize() < node.GetMaxSize()
	}

	if node.IsRootPage() {
		// the guard must survive until AdjustRoot cannot run anymore
		if node.IsLeafPage() {
			return node.GetSize() > 1
		}
		return node.GetSize() > 2
	}
	return node.GetSize() > node.GetMinSize()
}

// releaseWLatches drains the tracker in acquisition order: the sentinel
// releases the root-id guard, every page entry is unlatched and unpinned.
func (t *BPlusTree) releaseWLatches(tracker *OpTracker) {
	for {
		p, ok := tracker.PopFromPageSet()
		if !ok {
			return
		}
		if p == nil {
			t.rootLatch.Unlock()
			continue
		}
		p.WUnlatch()
		t.bpm.UnpinPage(p.GetPageId(), true)
	}
}

// splitLeaf allocates a sibling and moves the upper half of leaf into it.
func (t *BPlusTree) splitLeaf(leaf *page.BPlusTreeLeafPage) (*page.Page, *page.BPlusTreeLeafPage) {
	siblingP := t.bpm.NewPage()
	common.SHAssert(siblingP != nil, "out of memory: split leaf")

	sibling := page.InitLeafPage(siblingP, siblingP.GetPageId(), leaf.GetParentPageId(), t.leafMaxSize)
	leaf.MoveHalfTo(sibling)
	return siblingP, sibling
}

// insertIntoParent links a freshly split pair (oldNode, newNode) under their
// parent, splitting upward as long as parents overflow. Every ancestor that
// can change here is already write-latched via the tracker; children moved to
// a new sibling get their parent id rewritten without taking their latches.
func (t *BPlusTree) insertIntoParent(oldNode *page.BPlusTreePage, key int64, newNode *page.BPlusTreePage) {
	if oldNode.IsRootPage() {
		newRootP := t.bpm.NewPage()
		common.SHAssert(newRootP != nil, "out of memory: new root")

		newRoot := page.InitInternalPage(newRootP, newRootP.GetPageId(), types.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(oldNode.GetPageId(), key, newNode.GetPageId())
		oldNode.SetParentPageId(newRoot.GetPageId())
		newNode.SetParentPageId(newRoot.GetPageId())

		t.rootPageID = newRoot.GetPageId()
		t.updateRootPageId()
		t.bpm.UnpinPage(newRootP.GetPageId(), true)
		return
	}

	parentID := oldNode.GetParentPageId()
	parentP := t.bpm.FetchPage(parentID)
	common.SHAssert(parentP != nil, "out of memory: fetch parent")
	parent := page.CastInternalPage(parentP)

	if parent.GetSize() < t.internalMaxSize {
		newNode.SetParentPageId(parentID)
		parent.InsertNodeAfter(oldNode.GetPageId(), key, newNode.GetPageId())
		t.bpm.UnpinPage(parentID, true)
		return
	}

	// parent is full: build an oversize image holding the speculative insert,
	// split it back into the parent page and a fresh sibling
	scratch := page.NewEmpty()
	copy(scratch.Data()[:], parentP.Data()[:])
	temp := page.CastInternalPage(scratch)
	newNode.SetParentPageId(parentID)
	temp.InsertNodeAfter(oldNode.GetPageId(), key, newNode.GetPageId())

	siblingP := t.bpm.NewPage()
	common.SHAssert(siblingP != nil, "out of memory: split internal")
	sibling := page.InitInternalPage(siblingP, siblingP.GetPageId(), parent.GetParentPageId(), t.internalMaxSize)

	temp.MoveHalfTo(sibling, t.bpm)
	copy(parentP.Data()[:], scratch.Data()[:])
	promoted := sibling.KeyAt(0)

	t.insertIntoParent(&parent.BPlusTreePage, promoted, &sibling.BPlusTreePage)

	t.bpm.UnpinPage(parentID, true)
	t.bpm.UnpinPage(siblingP.GetPageId(), true)
}

// coalesceOrRedistribute restores node's occupancy after a removal left it
// under min size. Returns true when node merged away and must be deleted by
// the caller.
func (t *BPlusTree) coalesceOrRedistribute(node *page.BPlusTreePage, tracker *OpTracker) bool {
	if node.IsRootPage() {
		return t.adjustRoot(node)
	}

	parentID := node.GetParentPageId()
	parentP := t.bpm.FetchPage(parentID)
	common.SHAssert(parentP != nil, "out of memory: fetch parent")
	parent := page.CastInternalPage(parentP)

	index := parent.ValueIndex(node.GetPageId())
	common.SHAssert(index != -1, "node not present in its parent")

	// prefer the left sibling; only the leftmost child pairs to its right
	siblingIndex := index - 1
	if index == 0 {
		siblingIndex = 1
	}
	siblingID := parent.ValueAt(siblingIndex)
	siblingP := t.bpm.FetchPage(siblingID)
	common.SHAssert(siblingP != nil, "out of memory: fetch sibling")
	siblingP.WLatch()
	sibling := page.CastBPlusTreePage(siblingP)

	if sibling.GetSize() > sibling.GetMinSize() {
		t.redistribute(sibling, node, parent, index)
		siblingP.WUnlatch()
		t.bpm.UnpinPage(siblingID, true)
		t.bpm.UnpinPage(parentID, true)
		return false
	}

	nodeDeleted := t.coalesce(sibling, node, parent, index, tracker)

	if parent.GetSize() < parent.GetMinSize() {
		if t.coalesceOrRedistribute(&parent.BPlusTreePage, tracker) {
			tracker.AddIntoDeletedPageSet(parentID)
		}
	}

	siblingP.WUnlatch()
	t.bpm.UnpinPage(siblingID, true)
	t.bpm.UnpinPage(parentID, true)
	return nodeDeleted
}

// coalesce merges the (node, sibling) pair into the left page of the two and
// drops the separator from the parent. Returns true when node is the page
// that emptied; when node has only a right sibling the merge runs the other
// way and the sibling is queued here instead.
func (t *BPlusTree) coalesce(sibling, node *page.BPlusTreePage, parent *page.BPlusTreeInternalPage, index int32, tracker *OpTracker) bool {
	if index > 0 {
		// sibling is on the left: node empties into it
		middleKey := parent.KeyAt(index)
		if node.IsLeafPage() {
			page.CastLeafPage(node.Page()).MoveAllTo(page.CastLeafPage(sibling.Page()))
		} else {
			page.CastInternalPage(node.Page()).MoveAllTo(page.CastInternalPage(sibling.Page()), middleKey, t.bpm)
		}
		parent.Remove(index)
		return true
	}

	// node is leftmost: the right sibling empties into node
	middleKey := parent.KeyAt(1)
	if node.IsLeafPage() {
		page.CastLeafPage(sibling.Page()).MoveAllTo(page.CastLeafPage(node.Page()))
	} else {
		page.CastInternalPage(sibling.Page()).MoveAllTo(page.CastInternalPage(node.Page()), middleKey, t.bpm)
	}
	parent.Remove(1)
	tracker.AddIntoDeletedPageSet(sibling.GetPageId())
	return false
}

// redistribute moves one entry from sibling into node and fixes the parent
// separator. index is node's slot in the parent.
func (t *BPlusTree) redistribute(sibling, node *page.BPlusTreePage, parent *page.BPlusTreeInternalPage, index int32) {
	if node.IsLeafPage() {
		nodeLeaf := page.CastLeafPage(node.Page())
		siblingLeaf := page.CastLeafPage(sibling.Page())
		if index > 0 {
			siblingLeaf.MoveLastToFrontOf(nodeLeaf)
			parent.SetKeyAt(index, nodeLeaf.KeyAt(0))
		} else {
			siblingLeaf.MoveFirstToEndOf(nodeLeaf)
			parent.SetKeyAt(1, siblingLeaf.KeyAt(0))
		}
		return
	}

	nodeInternal := page.CastInternalPage(node.Page())
	siblingInternal := page.CastInternalPage(sibling.Page())
	if index > 0 {
		movedKey := siblingInternal.KeyAt(siblingInternal.GetSize() - 1)
		siblingInternal.MoveLastToFrontOf(nodeInternal, parent.KeyAt(index), t.bpm)
		parent.SetKeyAt(index, movedKey)
	} else {
		movedKey := siblingInternal.KeyAt(1)
		siblingInternal.MoveFirstToEndOf(nodeInternal, parent.KeyAt(1), t.bpm)
		parent.SetKeyAt(1, movedKey)
	}
}

// adjustRoot handles underflow at the root: an internal root with one child
// hands the tree to that child, an emptied leaf root clears the tree.
// Returns true when the old root page must be deleted.
func (t *BPlusTree) adjustRoot(root *page.BPlusTreePage) bool {
	if !root.IsLeafPage() && root.GetSize() == 1 {
		child := page.CastInternalPage(root.Page()).RemoveAndReturnOnlyChild()

		childP := t.bpm.FetchPage(child)
		common.SHAssert(childP != nil, "out of memory: fetch new root")
		page.CastBPlusTreePage(childP).SetParentPageId(types.InvalidPageID)
		t.bpm.UnpinPage(child, true)

		t.rootPageID = child
		t.updateRootPageId()
		return true
	}

	if root.IsLeafPage() && root.GetSize() == 0 {
		t.rootPageID = types.InvalidPageID
		t.updateRootPageId()
		return true
	}
	return false
}

// updateRootPageId records the current root in the header page. Called with
// the root-id guard held.
func (t *BPlusTree) updateRootPageId() {
	headerP := t.bpm.FetchPage(types.HeaderPageID)
	common.SHAssert(headerP != nil, "failed to fetch header page")
	header := page.CastHeaderPage(headerP)
	if !header.UpdateRecord(t.indexName, t.rootPageID) {
		header.InsertRecord(t.indexName, t.rootPageID)
	}
	t.bpm.UnpinPage(types.HeaderPageID, true)
}
