package page

import (
	"bytes"
	"encoding/binary"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

// HeaderPage is the fixed page at types.HeaderPageID. It stores a small table
// of (index name, root page id) records so an index can find its root again
// after the tree object is rebuilt.
//
// layout: | record count (4) | record-0 | record-1 | ... |
// record: | name (32, zero padded) | root page id (4) |
const (
	headerRecordNameSize = 32
	headerRecordSize     = headerRecordNameSize + 4
	headerMaxRecords     = (common.PageSize - 4) / headerRecordSize
)

type HeaderPage struct {
	page *Page
}

// CastHeaderPage reinterprets a fetched frame as the header page.
func CastHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{page: p}
}

// Init clears the record table. The storage core does not call it: a header
// page that was never written is read back as zeroes, an empty table.
func (hp *HeaderPage) Init() {
	hp.setRecordCount(0)
}

func (hp *HeaderPage) GetRecordCount() int32 {
	return int32(binary.LittleEndian.Uint32(hp.page.Data()[0:4]))
}

func (hp *HeaderPage) setRecordCount(count int32) {
	binary.LittleEndian.PutUint32(hp.page.Data()[0:4], uint32(count))
}

// InsertRecord adds a record for name. Returns false when name is already
// present, too long, or the table is full.
func (hp *HeaderPage) InsertRecord(name string, rootID types.PageID) bool {
	if len(name) > headerRecordNameSize {
		return false
	}
	count := hp.GetRecordCount()
	if count >= headerMaxRecords {
		return false
	}
	if hp.findRecord(name) != -1 {
		return false
	}

	offset := 4 + count*headerRecordSize
	hp.writeRecord(offset, name, rootID)
	hp.setRecordCount(count + 1)
	return true
}

// UpdateRecord rewrites the root id of an existing record.
func (hp *HeaderPage) UpdateRecord(name string, rootID types.PageID) bool {
	index := hp.findRecord(name)
	if index == -1 {
		return false
	}
	offset := 4 + index*headerRecordSize
	binary.LittleEndian.PutUint32(hp.page.Data()[offset+headerRecordNameSize:offset+headerRecordSize], uint32(rootID))
	return true
}

// DeleteRecord removes the record for name, compacting the table.
func (hp *HeaderPage) DeleteRecord(name string) bool {
	index := hp.findRecord(name)
	if index == -1 {
		return false
	}
	count := hp.GetRecordCount()
	start := 4 + index*headerRecordSize
	end := 4 + count*headerRecordSize
	copy(hp.page.Data()[start:], hp.page.Data()[start+headerRecordSize:end])
	hp.setRecordCount(count - 1)
	return true
}

// GetRootId looks up the root page id recorded under name.
func (hp *HeaderPage) GetRootId(name string) (types.PageID, bool) {
	index := hp.findRecord(name)
	if index == -1 {
		return types.InvalidPageID, false
	}
	offset := 4 + index*headerRecordSize
	rootID := types.PageID(int32(binary.LittleEndian.Uint32(hp.page.Data()[offset+headerRecordNameSize : offset+headerRecordSize])))
	return rootID, true
}

func (hp *HeaderPage) writeRecord(offset int32, name string, rootID types.PageID) {
	var nameBuf [headerRecordNameSize]byte
	copy(nameBuf[:], name)
	copy(hp.page.Data()[offset:offset+headerRecordNameSize], nameBuf[:])
	binary.LittleEndian.PutUint32(hp.page.Data()[offset+headerRecordNameSize:offset+headerRecordSize], uint32(rootID))
}

func (hp *HeaderPage) findRecord(name string) int32 {
	var nameBuf [headerRecordNameSize]byte
	copy(nameBuf[:], name)
	count := hp.GetRecordCount()
	for i := int32(0); i < count; i++ {
		offset := 4 + i*headerRecordSize
		if bytes.Equal(hp.page.Data()[offset:offset+headerRecordNameSize], nameBuf[:]) {
			return i
		}
	}
	return -1
}
