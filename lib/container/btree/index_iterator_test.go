package btree

import (
	"testing"
)

func TestIndexIterator_scanAll(t *testing.T) {
	tree, _ := newTestTree(64, 4, 4)

	num := int64(500)
	for i := int64(0); i < num; i++ {
		tree.Insert(i, ridForKey(i))
	}

	want := int64(0)
	for it := tree.Begin(); !it.IsEnd(); it.Next() {
		if it.Key() != want {
			t.Fatalf("Key() = %v, want %v", it.Key(), want)
		}
		if it.Value() != ridForKey(want) {
			t.Fatalf("Value() = %v, want %v", it.Value(), ridForKey(want))
		}
		want++
	}
	if want != num {
		t.Errorf("scanned %v entries, want %v", want, num)
	}
}

func TestIndexIterator_beginFrom(t *testing.T) {
	tree, _ := newTestTree(64, 4, 4)

	// even keys only, so odd seek keys land on the next even entry
	for i := int64(0); i < 100; i += 2 {
		tree.Insert(i, ridForKey(i))
	}

	it := tree.BeginFrom(40)
	if it.IsEnd() || it.Key() != 40 {
		t.Errorf("BeginFrom(40).Key() = %v, want 40", it.Key())
	}
	it.Close()

	it = tree.BeginFrom(41)
	if it.IsEnd() || it.Key() != 42 {
		t.Errorf("BeginFrom(41).Key() = %v, want 42", it.Key())
	}
	it.Close()

	if it := tree.BeginFrom(99); !it.IsEnd() {
		t.Errorf("BeginFrom(99).IsEnd() = false, want true")
		it.Close()
	}
}

func TestIndexIterator_emptyTree(t *testing.T) {
	tree, _ := newTestTree(16, 4, 4)

	if it := tree.Begin(); !it.IsEnd() {
		t.Errorf("Begin().IsEnd() = false, want true")
	}
	if it := tree.End(); !it.IsEnd() {
		t.Errorf("End().IsEnd() = false, want true")
	}
}

func TestIndexIterator_closeMidScan(t *testing.T) {
	tree, bpm := newTestTree(64, 4, 4)

	for i := int64(0); i < 50; i++ {
		tree.Insert(i, ridForKey(i))
	}

	it := tree.Begin()
	for i := 0; i < 10 && !it.IsEnd(); i++ {
		it.Next()
	}
	if it.IsEnd() {
		t.Fatal("iterator reached the end before Close")
	}
	leafP := it.page
	it.Close()

	// the leaf released by Close must be reclaimable
	if got := leafP.PinCount(); got != 0 {
		t.Errorf("leaf pin count after Close = %v, want 0", got)
	}
	p := bpm.FetchPage(tree.GetRootPageId())
	if p == nil {
		t.Fatal("FetchPage(root) = nil")
	}
	bpm.UnpinPage(p.GetPageId(), false)
}
