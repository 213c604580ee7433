package btree

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/perchdb/perch/lib/storage/buffer"
	"github.com/perchdb/perch/lib/storage/disk"
	"github.com/perchdb/perch/lib/storage/page"
	"github.com/perchdb/perch/lib/types"
)

func newTestTree(poolSize uint32, leafMax, internalMax int32) (*BPlusTree, *buffer.BufferPoolManager) {
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(poolSize, dm)
	tree := NewBPlusTree("test_index", bpm, page.Int64Comparator, leafMax, internalMax)
	return tree, bpm
}

func ridForKey(key int64) page.RID {
	return page.RID{PageId: types.PageID(int32(key >> 16)), SlotNum: uint32(key)}
}

func leafKeys(t *testing.T, bpm *buffer.BufferPoolManager, pageID types.PageID) []int64 {
	t.Helper()
	p := bpm.FetchPage(pageID)
	if p == nil {
		t.Fatal("FetchPage() = nil")
	}
	leaf := page.CastLeafPage(p)
	keys := make([]int64, 0, leaf.GetSize())
	for i := int32(0); i < leaf.GetSize(); i++ {
		keys = append(keys, leaf.KeyAt(i))
	}
	bpm.UnpinPage(pageID, false)
	return keys
}

func TestBPlusTree_splitShape(t *testing.T) {
	tree, bpm := newTestTree(16, 4, 4)

	for key := int64(1); key <= 5; key++ {
		if ok := tree.Insert(key, ridForKey(key)); !ok {
			t.Errorf("Insert(%d) = false, want true", key)
		}
	}

	rootP := bpm.FetchPage(tree.GetRootPageId())
	if rootP == nil {
		t.Fatal("FetchPage(root) = nil")
	}
	if page.CastBPlusTreePage(rootP).IsLeafPage() {
		t.Fatal("root is a leaf, want internal")
	}
	root := page.CastInternalPage(rootP)
	if got := root.GetSize(); got != 2 {
		t.Errorf("root size = %v, want %v", got, 2)
	}
	if got := root.KeyAt(1); got != 3 {
		t.Errorf("separator = %v, want %v", got, 3)
	}

	leftID, rightID := root.ValueAt(0), root.ValueAt(1)
	bpm.UnpinPage(rootP.GetPageId(), false)

	if got := leafKeys(t, bpm, leftID); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("left leaf = %v, want [1 2]", got)
	}
	if got := leafKeys(t, bpm, rightID); len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("right leaf = %v, want [3 4 5]", got)
	}

	leftP := bpm.FetchPage(leftID)
	if next := page.CastLeafPage(leftP).GetNextPageId(); next != rightID {
		t.Errorf("left.next = %v, want %v", next, rightID)
	}
	bpm.UnpinPage(leftID, false)
}

func TestBPlusTree_mergeCollapsesRoot(t *testing.T) {
	tree, bpm := newTestTree(16, 4, 4)

	for key := int64(1); key <= 5; key++ {
		tree.Insert(key, ridForKey(key))
	}
	tree.Remove(4)
	tree.Remove(5)

	rootP := bpm.FetchPage(tree.GetRootPageId())
	if rootP == nil {
		t.Fatal("FetchPage(root) = nil")
	}
	if !page.CastBPlusTreePage(rootP).IsLeafPage() {
		t.Fatal("root is internal, want leaf")
	}
	rootID := rootP.GetPageId()
	bpm.UnpinPage(rootID, false)

	if got := leafKeys(t, bpm, rootID); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("root leaf = %v, want [1 2 3]", got)
	}
}

func TestBPlusTree_redistribute(t *testing.T) {
	tree, bpm := newTestTree(16, 4, 4)

	for key := int64(1); key <= 5; key++ {
		tree.Insert(key, ridForKey(key))
	}
	tree.Remove(1)

	rootP := bpm.FetchPage(tree.GetRootPageId())
	if rootP == nil {
		t.Fatal("FetchPage(root) = nil")
	}
	if page.CastBPlusTreePage(rootP).IsLeafPage() {
		t.Fatal("root is a leaf, want internal: redistribute must not merge")
	}
	root := page.CastInternalPage(rootP)
	if got := root.KeyAt(1); got != 4 {
		t.Errorf("separator = %v, want %v", got, 4)
	}
	leftID, rightID := root.ValueAt(0), root.ValueAt(1)
	bpm.UnpinPage(rootP.GetPageId(), false)

	if got := leafKeys(t, bpm, leftID); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("left leaf = %v, want [2 3]", got)
	}
	if got := leafKeys(t, bpm, rightID); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("right leaf = %v, want [4 5]", got)
	}
}

func TestBPlusTree_duplicateInsert(t *testing.T) {
	tree, _ := newTestTree(16, 4, 4)

	if ok := tree.Insert(10, ridForKey(10)); !ok {
		t.Errorf("Insert() = false, want true")
	}
	if ok := tree.Insert(10, ridForKey(99)); ok {
		t.Errorf("Insert() of duplicate key = true, want false")
	}

	rid, found := tree.GetValue(10)
	if !found || rid != ridForKey(10) {
		t.Errorf("GetValue() = %v %v, want %v true", rid, found, ridForKey(10))
	}
}

func TestBPlusTree_insertAndFindMany(t *testing.T) {
	tree, _ := newTestTree(64, 4, 4)

	num := int64(2000)
	keys := make([]int64, num)
	for i := int64(0); i < num; i++ {
		keys[i] = i
	}
	randGen := rand.New(rand.NewSource(42))
	randGen.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for _, key := range keys {
		if ok := tree.Insert(key, ridForKey(key)); !ok {
			t.Errorf("Insert(%d) = false, want true", key)
		}
	}
	for i := int64(0); i < num; i++ {
		rid, found := tree.GetValue(i)
		if !found || rid != ridForKey(i) {
			t.Errorf("GetValue(%d) = %v %v, want %v true", i, rid, found, ridForKey(i))
		}
	}
	if _, found := tree.GetValue(num); found {
		t.Errorf("GetValue(%d) = true, want false", num)
	}
}

func TestBPlusTree_deleteAll(t *testing.T) {
	tree, _ := newTestTree(64, 4, 4)

	num := int64(1000)
	for i := int64(0); i < num; i++ {
		if ok := tree.Insert(i, ridForKey(i)); !ok {
			t.Errorf("Insert(%d) = false, want true", i)
		}
	}

	for i := int64(0); i < num; i++ {
		tree.Remove(i)
		if _, found := tree.GetValue(i); found {
			t.Errorf("GetValue(%d) after Remove = true, want false", i)
		}
	}

	if !tree.IsEmpty() {
		t.Errorf("IsEmpty() = false, want true")
	}
	if rootID := tree.GetRootPageId(); rootID != types.InvalidPageID {
		t.Errorf("root = %v, want %v", rootID, types.InvalidPageID)
	}
}

func TestBPlusTree_deleteHalf(t *testing.T) {
	tree, _ := newTestTree(64, 4, 4)

	num := int64(1000)
	for i := int64(0); i < num; i++ {
		tree.Insert(i, ridForKey(i))
		if i%2 == 0 {
			tree.Remove(i)
		}
	}

	for i := int64(0); i < num; i++ {
		rid, found := tree.GetValue(i)
		if i%2 == 0 {
			if found {
				t.Errorf("GetValue(%d) = true, want false", i)
			}
		} else if !found || rid != ridForKey(i) {
			t.Errorf("GetValue(%d) = %v %v, want %v true", i, rid, found, ridForKey(i))
		}
	}
}

func TestBPlusTree_reopenFromHeader(t *testing.T) {
	dm := disk.NewDiskManagerTest()
	bpm := buffer.NewBufferPoolManager(64, dm)
	tree := NewBPlusTree("reopen_index", bpm, page.Int64Comparator, 4, 4)

	num := int64(300)
	for i := int64(0); i < num; i++ {
		tree.Insert(i, ridForKey(i))
	}

	// a fresh tree object over the same pool picks the root up from the header page
	reopened := NewBPlusTree("reopen_index", bpm, page.Int64Comparator, 4, 4)
	if reopened.GetRootPageId() != tree.GetRootPageId() {
		t.Errorf("reopened root = %v, want %v", reopened.GetRootPageId(), tree.GetRootPageId())
	}
	for i := int64(0); i < num; i++ {
		if _, found := reopened.GetValue(i); !found {
			t.Errorf("GetValue(%d) = false, want true", i)
		}
	}
}

func TestBPlusTree_insertAndFindConcurrently(t *testing.T) {
	tree, _ := newTestTree(256, 8, 8)

	keyTotal := int64(20000)
	routineNum := 8

	wg := sync.WaitGroup{}
	wg.Add(routineNum)

	start := time.Now()
	for r := 0; r < routineNum; r++ {
		go func(n int) {
			defer wg.Done()
			for i := int64(0); i < keyTotal; i++ {
				if i%int64(routineNum) != int64(n) {
					continue
				}
				if ok := tree.Insert(i, ridForKey(i)); !ok {
					t.Errorf("in goroutine%d Insert(%d) = false, want true", n, i)
				}
				if rid, found := tree.GetValue(i); !found || rid != ridForKey(i) {
					t.Errorf("in goroutine%d GetValue(%d) = %v %v, want true", n, i, rid, found)
				}
			}
		}(r)
	}
	wg.Wait()
	t.Logf("insert %d keys concurrently. duration = %v", keyTotal, time.Since(start))

	for i := int64(0); i < keyTotal; i++ {
		if rid, found := tree.GetValue(i); !found || rid != ridForKey(i) {
			t.Errorf("GetValue(%d) = %v %v, want true", i, rid, found)
		}
	}
}

func TestBPlusTree_deleteManyConcurrently(t *testing.T) {
	tree, _ := newTestTree(256, 8, 8)

	keyTotal := int64(20000)
	routineNum := 8

	wg := sync.WaitGroup{}
	wg.Add(routineNum)

	start := time.Now()
	for r := 0; r < routineNum; r++ {
		go func(n int) {
			defer wg.Done()
			for i := int64(0); i < keyTotal; i++ {
				if i%int64(routineNum) != int64(n) {
					continue
				}
				if ok := tree.Insert(i, ridForKey(i)); !ok {
					t.Errorf("in goroutine%d Insert(%d) = false, want true", n, i)
				}
				if i%2 == 0 {
					tree.Remove(i)
					if _, found := tree.GetValue(i); found {
						t.Errorf("in goroutine%d GetValue(%d) after Remove = true, want false", n, i)
					}
				}
			}
		}(r)
	}
	wg.Wait()
	t.Logf("insert %d keys and delete half concurrently. duration = %v", keyTotal, time.Since(start))

	for i := int64(0); i < keyTotal; i++ {
		_, found := tree.GetValue(i)
		if i%2 == 0 && found {
			t.Errorf("GetValue(%d) = true, want false", i)
		}
		if i%2 == 1 && !found {
			t.Errorf("GetValue(%d) = false, want true", i)
		}
	}
}

func TestBPlusTree_concurrentMixedWithScans(t *testing.T) {
	tree, _ := newTestTree(256, 8, 8)

	keyTotal := int64(4000)
	routineNum := 4

	wg := sync.WaitGroup{}
	wg.Add(routineNum)
	for r := 0; r < routineNum; r++ {
		go func(n int) {
			defer wg.Done()
			for i := int64(0); i < keyTotal; i++ {
				if i%int64(routineNum) != int64(n) {
					continue
				}
				tree.Insert(i, ridForKey(i))
				if i%100 == int64(n) {
					// a scan must always observe strictly ascending keys
					prev := int64(-1)
					for it := tree.Begin(); !it.IsEnd(); it.Next() {
						if it.Key() <= prev {
							t.Errorf("scan out of order: %d after %d", it.Key(), prev)
							it.Close()
							return
						}
						prev = it.Key()
					}
				}
			}
		}(r)
	}
	wg.Wait()
}
