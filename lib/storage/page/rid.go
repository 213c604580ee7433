package page

import "github.com/perchdb/perch/lib/types"

// RID points at a record: the page holding it and the slot within the page.
type RID struct {
	PageId  types.PageID
	SlotNum uint32
}

// PackRIDtoUint64 packs a RID into one 64-bit leaf slot.
func PackRIDtoUint64(value *RID) uint64 {
	return uint64(uint32(value.PageId))<<32 | uint64(value.SlotNum)
}

// UnpackUint64toRID is the inverse of PackRIDtoUint64.
func UnpackUint64toRID(value uint64) RID {
	return RID{
		PageId:  types.PageID(int32(uint32(value >> 32))),
		SlotNum: uint32(value),
	}
}
