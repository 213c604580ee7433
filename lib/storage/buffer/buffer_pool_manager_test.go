package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchdb/perch/lib/storage/disk"
	"github.com/perchdb/perch/lib/types"
)

func TestBufferPoolManagerBinaryData(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := NewBufferPoolManager(10, dm)

	page0 := bpm.NewPage()
	require.NotNil(t, page0)
	// the frame is recycled once page0 is evicted, so keep its id
	page0ID := page0.GetPageId()

	copy(page0.Data()[:], "Hello")
	assert.Equal(t, "Hello", string(page0.Data()[:5]))

	// fill the pool; every frame is pinned so the next allocation fails
	for i := 1; i < bpm.GetPoolSize(); i++ {
		require.NotNil(t, bpm.NewPage())
	}
	assert.Nil(t, bpm.NewPage())

	// unpinning makes frames reclaimable again
	for id := page0ID; id < page0ID+5; id++ {
		assert.True(t, bpm.UnpinPage(id, true))
	}
	for i := 0; i < 4; i++ {
		require.NotNil(t, bpm.NewPage())
	}

	// page0 was evicted; fetching reads its bytes back from disk
	fetched := bpm.FetchPage(page0ID)
	require.NotNil(t, fetched)
	assert.Equal(t, "Hello", string(fetched.Data()[:5]))
}

func TestBufferPoolManagerUnpin(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := NewBufferPoolManager(1, dm)

	p := bpm.NewPage()
	require.NotNil(t, p)
	pageID := p.GetPageId()

	// double unpin of a single pin fails the second time
	assert.True(t, bpm.UnpinPage(pageID, true))
	assert.False(t, bpm.UnpinPage(pageID, true))

	// the single frame can be recycled and the old page fetched back
	p2 := bpm.NewPage()
	require.NotNil(t, p2)
	assert.True(t, bpm.UnpinPage(p2.GetPageId(), false))

	fetched := bpm.FetchPage(pageID)
	require.NotNil(t, fetched)
	assert.EqualValues(t, 1, fetched.PinCount())
}

func TestBufferPoolManagerDeletePage(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := NewBufferPoolManager(4, dm)

	p := bpm.NewPage()
	require.NotNil(t, p)
	pageID := p.GetPageId()

	// pinned pages cannot be deleted
	assert.False(t, bpm.DeletePage(pageID))

	require.True(t, bpm.UnpinPage(pageID, false))
	assert.True(t, bpm.DeletePage(pageID))

	// deleting a non-resident page succeeds trivially
	assert.True(t, bpm.DeletePage(types.PageID(9999)))
}

func TestBufferPoolManagerFlush(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := NewBufferPoolManager(4, dm)

	p := bpm.NewPage()
	require.NotNil(t, p)
	pageID := p.GetPageId()
	copy(p.Data()[:], "durable")

	writesBefore := dm.GetNumWrites()
	assert.True(t, bpm.FlushPage(pageID))
	assert.Equal(t, writesBefore+1, dm.GetNumWrites())

	assert.False(t, bpm.FlushPage(types.PageID(9999)))

	bpm.FlushAllPages()

	buf := make([]byte, 4096)
	require.NoError(t, dm.ReadPage(pageID, buf))
	assert.Equal(t, "durable", string(buf[:7]))
}
