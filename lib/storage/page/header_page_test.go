package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchdb/perch/lib/types"
)

func TestHeaderPageRecords(t *testing.T) {
	hp := CastHeaderPage(New(types.HeaderPageID))
	hp.Init()

	assert.True(t, hp.InsertRecord("orders_pk", 3))
	assert.True(t, hp.InsertRecord("users_pk", 7))
	assert.False(t, hp.InsertRecord("orders_pk", 9))
	assert.EqualValues(t, 2, hp.GetRecordCount())

	rootID, ok := hp.GetRootId("orders_pk")
	require.True(t, ok)
	assert.EqualValues(t, 3, rootID)

	assert.True(t, hp.UpdateRecord("orders_pk", 11))
	rootID, _ = hp.GetRootId("orders_pk")
	assert.EqualValues(t, 11, rootID)

	assert.False(t, hp.UpdateRecord("missing", 1))

	assert.True(t, hp.DeleteRecord("orders_pk"))
	_, ok = hp.GetRootId("orders_pk")
	assert.False(t, ok)
	assert.EqualValues(t, 1, hp.GetRecordCount())

	rootID, ok = hp.GetRootId("users_pk")
	require.True(t, ok)
	assert.EqualValues(t, 7, rootID)
}

func TestRIDPackRoundTrip(t *testing.T) {
	rid := RID{PageId: 42, SlotNum: 7}
	packed := PackRIDtoUint64(&rid)
	assert.Equal(t, rid, UnpackUint64toRID(packed))

	negative := RID{PageId: types.InvalidPageID, SlotNum: 0}
	assert.Equal(t, negative, UnpackUint64toRID(PackRIDtoUint64(&negative)))
}
