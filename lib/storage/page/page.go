package page

import (
	"sync"
	"sync/atomic"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// Page is a frame of the buffer pool: one page worth of data plus the
// bookkeeping the pool and its clients need. The latch protects the page
// contents; the pin count keeps the frame resident while non-zero.
type Page struct {
	id       types.PageID
	pinCount int32
	isDirty  bool
	data     *[common.PageSize]byte
	rwlatch  sync.RWMutex
}

// New creates a page frame holding pageID with a single pin.
func New(pageID types.PageID) *Page {
	var data [common.PageSize]byte
	return &Page{id: pageID, pinCount: 1, data: &data}
}

// NewEmpty creates an unpinned frame with no page in it.
func NewEmpty() *Page {
	var data [common.PageSize]byte
	return &Page{id: types.InvalidPageID, data: &data}
}

func (p *Page) GetPageId() types.PageID {
	return p.id
}

func (p *Page) SetPageId(pageID types.PageID) {
	p.id = pageID
}

// Data returns the raw page contents.
func (p *Page) Data() *[common.PageSize]byte {
	return p.data
}

func (p *Page) PinCount() int32 {
	return atomic.LoadInt32(&p.pinCount)
}

func (p *Page) IncPinCount() {
	atomic.AddInt32(&p.pinCount, 1)
}

func (p *Page) DecPinCount() {
	common.SHAssert(atomic.AddInt32(&p.pinCount, -1) >= 0, "pin count dropped below zero")
}

func (p *Page) SetPinCount(count int32) {
	atomic.StoreInt32(&p.pinCount, count)
}

func (p *Page) IsDirty() bool {
	return p.isDirty
}

func (p *Page) SetIsDirty(isDirty bool) {
	p.isDirty = isDirty
}

// ResetMemory zeroes the page contents before the frame is reused.
func (p *Page) ResetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}

// RLatch takes the page latch in shared mode.
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// WLatch takes the page latch in exclusive mode.
func (p *Page) WLatch() {
	p.rwlatch.Lock()
}

func (p *Page) WUnlatch() {
	p.rwlatch.Unlock()
}

// PagePool is the slice of the buffer pool manager the page views need when a
// structural move has to reparent child pages.
type PagePool interface {
	FetchPage(pageID types.PageID) *Page
	UnpinPage(pageID types.PageID, isDirty bool) bool
}
