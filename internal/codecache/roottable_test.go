package codecache

import "testing"

func TestRootTableGrowsByDoublingFromTen(t *testing.T) {
	rt := NewRootTable()
	if cap := len(rt.entries); cap != rootTableInitialCapacity {
		t.Fatalf("initial capacity should be %d, got %d", rootTableInitialCapacity, cap)
	}

	b := newBundle(0x2000, BundleLayout{CodeLen: 8}, nil, LifespanOneShot, make([]byte, 8))
	for i := 0; i < rootTableInitialCapacity+1; i++ {
		rt.Append(b)
	}

	if rt.Len() != rootTableInitialCapacity+1 {
		t.Fatalf("expected %d entries, got %d", rootTableInitialCapacity+1, rt.Len())
	}
	if got := len(rt.entries); got != rootTableInitialCapacity*2 {
		t.Fatalf("capacity should have doubled to %d, got %d", rootTableInitialCapacity*2, got)
	}
}

func TestRootTableNeverShrinks(t *testing.T) {
	rt := NewRootTable()
	b := newBundle(0x3000, BundleLayout{CodeLen: 8}, nil, LifespanOneShot, make([]byte, 8))
	for i := 0; i < 25; i++ {
		rt.Append(b)
	}
	before := len(rt.entries)
	snap := rt.Snapshot()
	if len(snap) != 25 {
		t.Fatalf("snapshot should have 25 entries, got %d", len(snap))
	}
	if len(rt.entries) != before {
		t.Fatalf("taking a snapshot must not change capacity")
	}
}

func TestRootTableForEachStopsEarly(t *testing.T) {
	rt := NewRootTable()
	b := newBundle(0x4000, BundleLayout{CodeLen: 8}, nil, LifespanOneShot, make([]byte, 8))
	for i := 0; i < 5; i++ {
		rt.Append(b)
	}
	var visits int
	rt.ForEach(func(RootEntry) bool {
		visits++
		return visits < 2
	})
	if visits != 2 {
		t.Fatalf("expected ForEach to stop after 2 visits, got %d", visits)
	}
}
