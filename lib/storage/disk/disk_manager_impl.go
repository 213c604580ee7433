package disk

import (
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"github.com/ncw/directio"
	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// DiskManagerImpl is the file-backed implementation of DiskManager. Pages are
// written as aligned blocks through direct I/O so a page write is one device
// block write.
type DiskManagerImpl struct {
	db          *os.File
	fileName    string
	nextPageID  types.PageID
	numWrites   uint64
	size        int64
	dbFileMutex sync.Mutex
}

// NewDiskManagerImpl returns a DiskManager instance backed by dbFilename.
func NewDiskManagerImpl(dbFilename string) DiskManager {
	file, err := directio.OpenFile(dbFilename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		log.Fatalln("can't open db file:", err)
		return nil
	}

	fileInfo, err := file.Stat()
	if err != nil {
		log.Fatalln("file info error:", err)
		return nil
	}

	fileSize := fileInfo.Size()
	nPages := fileSize / common.PageSize

	// page zero is reserved for the header page, so minting starts at one
	nextPageID := types.PageID(1)
	if nPages > 1 {
		nextPageID = types.PageID(int32(nPages))
	}

	return &DiskManagerImpl{db: file, fileName: dbFilename, nextPageID: nextPageID, size: fileSize}
}

// ShutDown closes the database file.
func (d *DiskManagerImpl) ShutDown() {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	if err := d.db.Close(); err != nil {
		panic("close of db file failed")
	}
}

// WritePage writes a page to the database file.
func (d *DiskManagerImpl) WritePage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * int64(common.PageSize)
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	// directio.BlockSize == common.PageSize, so one aligned block holds one page
	block := directio.AlignedBlock(directio.BlockSize)
	copy(block, pageData)

	bytesWritten, err := d.db.Write(block)
	if err != nil {
		return err
	}
	if bytesWritten != common.PageSize {
		panic("bytes written not equals page size")
	}

	if offset >= d.size {
		d.size = offset + int64(bytesWritten)
	}
	d.numWrites++

	return nil
}

// ReadPage reads a page from the database file.
func (d *DiskManagerImpl) ReadPage(pageID types.PageID, pageData []byte) error {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	offset := int64(pageID) * int64(common.PageSize)

	fileInfo, err := d.db.Stat()
	if err != nil {
		return errors.New("file info error")
	}
	if offset > fileInfo.Size() {
		return errors.New("I/O error past end of file")
	}

	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	bytesRead, err := d.db.Read(pageData)
	if err != nil {
		return errors.New("I/O error while reading")
	}
	if bytesRead < common.PageSize {
		// a page past the materialized tail reads back as zeroes
		for i := bytesRead; i < common.PageSize; i++ {
			pageData[i] = 0
		}
	}
	return nil
}

// AllocatePage mints a new page id.
func (d *DiskManagerImpl) AllocatePage() types.PageID {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage deallocates a page.
// Tracking freed ids needs a bitmap in the header page; nothing to do for now.
func (d *DiskManagerImpl) DeallocatePage(pageID types.PageID) {}

// GetNumWrites returns the number of disk writes.
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.numWrites
}

// Size returns the size of the file in disk.
func (d *DiskManagerImpl) Size() int64 {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()
	return d.size
}

// RemoveDBFile removes the database file. Only valid after ShutDown.
func (d *DiskManagerImpl) RemoveDBFile() {
	d.dbFileMutex.Lock()
	defer d.dbFileMutex.Unlock()

	if err := os.Remove(d.fileName); err != nil {
		panic("file remove failed")
	}
}
