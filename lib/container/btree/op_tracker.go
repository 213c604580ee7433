package btree

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/perchdb/perch/lib/storage/page"
	"github.com/perchdb/perch/lib/types"
)

// OpTracker is the per-operation scratch of a tree write: the FIFO of pages
// whose write latch the operation holds, and the ids of pages that must be
// deleted once every latch is gone.
//
// A nil entry in the page FIFO is the sentinel for the root-id guard, which is
// always acquired first and therefore always drains first.
type OpTracker struct {
	pageSet        []*page.Page
	deletedPageIDs mapset.Set[types.PageID]
}

func NewOpTracker() *OpTracker {
	return &OpTracker{
		pageSet:        make([]*page.Page, 0, 8),
		deletedPageIDs: mapset.NewThreadUnsafeSet[types.PageID](),
	}
}

// AddIntoPageSet records a write-latched page; nil records the root-id guard.
func (t *OpTracker) AddIntoPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PopFromPageSet removes and returns the earliest-acquired entry.
func (t *OpTracker) PopFromPageSet() (*page.Page, bool) {
	if len(t.pageSet) == 0 {
		return nil, false
	}
	p := t.pageSet[0]
	t.pageSet = t.pageSet[1:]
	return p, true
}

// AddIntoDeletedPageSet queues pageID for deletion at operation end.
func (t *OpTracker) AddIntoDeletedPageSet(pageID types.PageID) {
	t.deletedPageIDs.Add(pageID)
}

// GetDeletedPageSet returns the ids queued for deletion.
func (t *OpTracker) GetDeletedPageSet() mapset.Set[types.PageID] {
	return t.deletedPageIDs
}

// ClearDeletedPageSet empties the deletion queue after it is drained.
func (t *OpTracker) ClearDeletedPageSet() {
	t.deletedPageIDs.Clear()
}
