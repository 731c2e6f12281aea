package codecache

import "testing"

// allocCallable allocates a bundle with enough code to hold at least one
// E8 rel32 call (5 bytes) past the given instruction offset.
func allocCallable(t *testing.T, cc *CodeCache, name string, lifespan Lifespan) *Bundle {
	t.Helper()
	b, err := cc.Allocate(BundleLayout{CodeLen: 32}, fakeMethod(name), false, lifespan)
	if err != nil {
		t.Fatalf("Allocate(%s): %v", name, err)
	}
	return b
}

func TestEvictionRewritesSurvivorToSurvivorCall(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	a := allocCallable(t, cc, "A", LifespanShort)
	b := allocCallable(t, cc, "B", LifespanShort)
	a.EncodeCall(15, b.CodeStart())

	oracle := func(x *Bundle) bool { return x == a || x == b }
	if _, err := cc.Baseline().Evict(noopCoordinator{}, oracle); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	wantDisp := int32(int64(b.CodeStart()) - int64(a.CodeStart()+20))
	gotTarget := a.CallTarget(16)
	if gotTarget != b.CodeStart() {
		t.Fatalf("A's call should now target B's new address %#x, got %#x", b.CodeStart(), gotTarget)
	}
	_ = wantDisp // documents the exact formula the implementation must satisfy
}

func TestEvictionDropsUnreachableBundles(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	dead := allocCallable(t, cc, "dead", LifespanShort)
	alive := allocCallable(t, cc, "alive", LifespanShort)

	oracle := func(x *Bundle) bool { return x == alive }
	stats, err := cc.Baseline().Evict(noopCoordinator{}, oracle)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if stats.Survivors != 1 {
		t.Fatalf("expected exactly 1 survivor, got %d", stats.Survivors)
	}
	if _, ok := cc.FindMethod(alive.CodeStart()); !ok {
		t.Fatal("the surviving bundle should still be findable at its (possibly new) address")
	}
	_ = dead
}

func TestEvictionLeavesDanglingCallToDeadCalleeUntouched(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	caller := allocCallable(t, cc, "caller", LifespanShort)
	callee := allocCallable(t, cc, "callee", LifespanShort)
	caller.EncodeCall(15, callee.CodeStart())
	deadCalleeOldAddr := callee.CodeStart()

	oracle := func(x *Bundle) bool { return x == caller }
	if _, err := cc.Baseline().Evict(noopCoordinator{}, oracle); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	if got := caller.CallTarget(16); got != deadCalleeOldAddr {
		t.Fatalf("a call to a dead callee must be left untouched, want %#x got %#x", deadCalleeOldAddr, got)
	}
}

func TestEvictionRewritesRootTableBootCaller(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	startAddr, mem := cc.boot.allocate(32)
	caller := newBundle(startAddr, BundleLayout{CodeLen: 32}, fakeMethod("bootCaller"), LifespanOneShot, mem)
	cc.boot.addBundle(caller)

	callee := allocCallable(t, cc, "baselineCallee", LifespanShort)
	caller.EncodeCall(15, callee.CodeStart())
	cc.RecordBootToBaseline(caller)

	if _, err := cc.Baseline().Evict(noopCoordinator{}, func(*Bundle) bool { return true }); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	if got := caller.CallTarget(16); got != callee.CodeStart() {
		t.Fatalf("boot caller's call site should follow the callee's relocation, want %#x got %#x", callee.CodeStart(), got)
	}
}

func TestEvictionSwapsMarkWhenNoSurvivors(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})
	allocCallable(t, cc, "onlyOne", LifespanShort)

	activeBefore := cc.Baseline().Active()
	stats, err := cc.Baseline().Evict(noopCoordinator{}, func(*Bundle) bool { return false })
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if stats.Survivors != 0 {
		t.Fatalf("expected 0 survivors, got %d", stats.Survivors)
	}
	if cc.Baseline().Mark() != cc.Baseline().Active().Start() {
		t.Fatal("with no survivors the new mark should equal the new active region's start")
	}
	if cc.Baseline().Active() == activeBefore {
		t.Fatal("eviction should still flip the active half even with zero survivors")
	}
}
