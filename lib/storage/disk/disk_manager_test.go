package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchdb/perch/lib/common"
	"github.com/perchdb/perch/lib/types"
)

func TestVirtualDiskManagerReadWrite(t *testing.T) {
	dm := NewDiskManagerTest()

	pageID := dm.AllocatePage()
	assert.EqualValues(t, 1, pageID)

	data := make([]byte, common.PageSize)
	copy(data, "A test string.")
	require.NoError(t, dm.WritePage(pageID, data))
	assert.EqualValues(t, 1, dm.GetNumWrites())

	buf := make([]byte, common.PageSize)
	require.NoError(t, dm.ReadPage(pageID, buf))
	assert.Equal(t, data, buf)

	// reading a page past the end of the file fails
	assert.Error(t, dm.ReadPage(types.PageID(40), buf))
}

func TestVirtualDiskManagerAllocateSequence(t *testing.T) {
	dm := NewDiskManagerTest()

	// page zero is the header page and is never minted
	first := dm.AllocatePage()
	second := dm.AllocatePage()
	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)
}
