package codecache

import "testing"

type fakeMethod string

func (f fakeMethod) MethodName() string { return string(f) }

func newTestRegion(t *testing.T, size int) *CodeRegion {
	t.Helper()
	mem := make([]byte, size)
	return newCodeRegion("test-region", mem, Address(0x1000))
}

func TestCodeRegionAllocateAdvancesMark(t *testing.T) {
	r := newTestRegion(t, 256)
	start, mem := r.allocate(64)
	if start != r.Start() {
		t.Fatalf("first allocation should start at region start, got %#x want %#x", start, r.Start())
	}
	if len(mem) != 64 {
		t.Fatalf("expected 64-byte slice, got %d", len(mem))
	}
	if r.Mark() != r.Start()+64 {
		t.Fatalf("mark should advance by allocation size, got %#x", r.Mark())
	}
}

func TestCodeRegionAllocateFailsWhenFull(t *testing.T) {
	r := newTestRegion(t, 128)
	if start, _ := r.allocate(128); start == 0 {
		t.Fatal("allocation exactly matching capacity should succeed")
	}
	if start, mem := r.allocate(1); start != 0 || mem != nil {
		t.Fatalf("allocation past capacity should fail, got start=%#x mem=%v", start, mem)
	}
}

func TestCodeRegionContainsIsFullWindow(t *testing.T) {
	r := newTestRegion(t, 128)
	if !r.Contains(r.Start()) {
		t.Error("region should contain its own start")
	}
	if !r.Contains(r.End() - 1) {
		t.Error("region should contain the last byte below its reserved end, even though unallocated")
	}
	if r.Contains(r.End()) {
		t.Error("region should not contain its own end (exclusive)")
	}
}

func TestCodeRegionFindRoundTrip(t *testing.T) {
	r := newTestRegion(t, 256)
	layout := BundleLayout{CodeLen: 16, ScalarLen: 8}
	start, mem := r.allocate(layout.window())
	b := newBundle(start, layout, fakeMethod("m1"), LifespanShort, mem)
	r.addBundle(b)

	found, ok := r.Find(start)
	if !ok || found != b {
		t.Fatalf("Find(start) should return the bundle that owns it")
	}
	found, ok = r.Find(start + 1)
	if !ok || found != b {
		t.Fatalf("Find(start+1) should still resolve to the same bundle")
	}
	if _, ok := r.Find(start + Address(layout.window())); ok {
		t.Fatalf("Find should miss one byte past the bundle's footprint")
	}
}

func TestCodeRegionFindMissBeforeAnyAllocation(t *testing.T) {
	r := newTestRegion(t, 128)
	if _, ok := r.Find(r.Start()); ok {
		t.Fatal("Find should miss in a region with no bundles")
	}
}

func TestCodeRegionVisitOrderAndStop(t *testing.T) {
	r := newTestRegion(t, 512)
	var bundles []*Bundle
	for i := 0; i < 4; i++ {
		layout := BundleLayout{CodeLen: 8}
		start, mem := r.allocate(layout.window())
		b := newBundle(start, layout, fakeMethod("m"), LifespanShort, mem)
		r.addBundle(b)
		bundles = append(bundles, b)
	}

	var seen []*Bundle
	r.Visit(func(b *Bundle) bool {
		seen = append(seen, b)
		return true
	})
	if len(seen) != len(bundles) {
		t.Fatalf("expected %d bundles visited, got %d", len(bundles), len(seen))
	}
	for i := range bundles {
		if seen[i] != bundles[i] {
			t.Fatalf("visit order should match allocation order at index %d", i)
		}
	}

	var count int
	r.Visit(func(b *Bundle) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Fatalf("visitor returning false should stop the walk, got %d visits", count)
	}
}

func TestCodeRegionResetClearsIndexAndMark(t *testing.T) {
	r := newTestRegion(t, 128)
	layout := BundleLayout{CodeLen: 8}
	start, mem := r.allocate(layout.window())
	r.addBundle(newBundle(start, layout, fakeMethod("m"), LifespanShort, mem))

	r.reset()

	if r.Mark() != r.Start() {
		t.Fatalf("reset should rewind mark to start, got %#x", r.Mark())
	}
	if _, ok := r.Find(start); ok {
		t.Fatal("reset should discard the bundle index")
	}
}
