package disk

import "github.com/perchdb/perch/lib/types"

// DiskManager is responsible for the allocation and deallocation of pages
// within a database file, and for reading and writing page data to it.
type DiskManager interface {
	ReadPage(pageID types.PageID, pageData []byte) error
	WritePage(pageID types.PageID, pageData []byte) error
	AllocatePage() types.PageID
	DeallocatePage(pageID types.PageID)
	GetNumWrites() uint64
	ShutDown()
	Size() int64
	RemoveDBFile()
}

// NewDiskManagerTest returns an in-memory disk manager for tests.
func NewDiskManagerTest() DiskManager {
	return NewVirtualDiskManagerImpl("test.db")
}
