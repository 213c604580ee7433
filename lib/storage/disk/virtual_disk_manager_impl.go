package disk

import (
	"errors"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// VirtualDiskManagerImpl does page I/O against an in-memory file. Tests use it
// to avoid touching the real filesystem.
type VirtualDiskManagerImpl struct {
	db          *memfile.File
	fileName    string
	nextPageID  types.PageID
	numWrites   uint64
	size        int64
	dbFileMutex sync.Mutex
}

func NewVirtualDiskManagerImpl(dbFilename string) DiskManager {
	file := memfile.New(make([]byte, 0))
	// page zero is reserved for the header page, so minting starts at one
	return &VirtualDiskManagerImpl{db: file, fileName: dbFilename, nextPageID: 1}
}

// ShutDown does nothing; there is no file to close.
func (d *VirtualDiskManagerImpl) ShutDown() {}

// WritePage writes a page to the in-memory file.
func (d *VirtualDiskManagerImpl) WritePage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * int64(common.PageSize)
	if _, err := d.db.WriteAt(pageData, offset); err != nil {
		return err
	}

	if offset >= d.size {
		d.size = offset + int64(len(pageData))
	}
	d.numWrites++

	return nil
}

// ReadPage reads a page from the in-memory file.
func (d *VirtualDiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * int64(common.PageSize)
	if offset > d.size || offset+int64(len(pageData)) > d.size {
		return errors.New("I/O error past end of file")
	}

	_, err := d.db.ReadAt(pageData, offset)
	return err
}

// AllocatePage mints a new page id.
func (d *VirtualDiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage deallocates a page.
func (d *VirtualDiskManagerImpl) DeallocatePage(pageID types.PageID) {}

// GetNumWrites returns the number of page writes so far.
func (d *VirtualDiskManagerImpl) GetNumWrites() uint64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numWrites
}

// Size returns the size of the in-memory file.
func (d *VirtualDiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

// RemoveDBFile does nothing; there is no file to remove.
func (d *VirtualDiskManagerImpl) RemoveDBFile() {}
