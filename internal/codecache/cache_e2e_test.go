package codecache

import (
	"strings"
	"testing"
)

// TestE2EColdStartAllocation exercises the simplest path: a fresh cache
// hands out a bundle from baseline and can find it again by address.
func TestE2EColdStartAllocation(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	b, err := cc.Allocate(BundleLayout{CodeLen: 40, ScalarLen: 16}, fakeMethod("coldStart"), false, LifespanShort)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if found, ok := cc.FindMethod(b.CodeStart()); !ok || found != b {
		t.Fatal("freshly allocated bundle must be immediately findable")
	}
}

// TestE2EForcedContentionTriggersEvictionAndSurvives configures
// CodeCacheContentionFrequency so that every third allocation forces an
// eviction, and checks that a bundle kept alive by the oracle survives
// across several forced evictions while staying findable.
func TestE2EForcedContentionTriggersEvictionAndSurvives(t *testing.T) {
	cfg := smallTestConfig()
	cfg.CodeCacheContentionFrequency = 3

	var survivor *Bundle
	cc := newTestCache(t, Options{
		Config: cfg,
		Reachability: func(b *Bundle) bool {
			return b == survivor
		},
	})

	survivor = allocCallable(t, cc, "survivor", LifespanShort)
	before := cc.Baseline().EvictionCount()

	for i := 0; i < 6; i++ {
		allocCallable(t, cc, "transient", LifespanShort)
	}

	if cc.Baseline().EvictionCount() <= before {
		t.Fatal("forced contention should have triggered at least one eviction")
	}
	if _, ok := cc.FindMethod(survivor.CodeStart()); !ok {
		t.Fatal("the bundle the oracle keeps alive must still be findable after forced eviction")
	}
}

// TestE2EInterBundleCallSurvivesRelocation checks that a call between two
// bundles both kept alive continues to resolve correctly across an
// eviction that physically moves both.
func TestE2EInterBundleCallSurvivesRelocation(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})

	caller := allocCallable(t, cc, "caller", LifespanShort)
	callee := allocCallable(t, cc, "callee", LifespanShort)
	caller.EncodeCall(15, callee.CodeStart())

	if _, err := cc.Baseline().Evict(noopCoordinator{}, func(*Bundle) bool { return true }); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	if got := caller.CallTarget(16); got != callee.CodeStart() {
		t.Fatalf("call should resolve to callee's relocated address %#x, got %#x", callee.CodeStart(), got)
	}
}

// TestE2ELookupMissBeyondReservation mirrors the "address strictly past the
// opt region's reservation" miss scenario.
func TestE2ELookupMissBeyondReservation(t *testing.T) {
	cc := newTestCache(t, Options{Config: smallTestConfig()})
	if _, ok := cc.FindMethod(cc.Opt().End() + 4096); ok {
		t.Fatal("an address past the whole reservation must miss")
	}
}

// TestE2EExhaustionExitsWithCode11 configures a tiny baseline region, keeps
// every bundle alive (so eviction never reclaims anything), and allocates
// until the region is exhausted, verifying the process-exit hook fires with
// code 11 and the error references the exhausted option.
func TestE2EExhaustionExitsWithCode11(t *testing.T) {
	cfg := Config{
		ReservedBaselineCodeCacheSize: 4096,
		ReservedOptCodeCacheSize:      4096,
		ReservedBootCodeCacheSize:     4096,
	}

	var exitCode int
	var exitCalls int
	cc := newTestCache(t, Options{
		Config:       cfg,
		Reachability: func(*Bundle) bool { return true },
		ExitHook: func(code int) {
			exitCalls++
			exitCode = code
		},
	})

	var lastErr error
	for i := 0; i < 10_000; i++ {
		_, err := cc.Allocate(BundleLayout{CodeLen: 64, ScalarLen: 32}, fakeMethod("filler"), false, LifespanShort)
		if err != nil {
			lastErr = err
			break
		}
	}

	if exitCalls == 0 {
		t.Fatal("exhausting the baseline region should invoke the exit hook")
	}
	if exitCode != 11 {
		t.Fatalf("expected exit code 11, got %d", exitCode)
	}
	if lastErr == nil {
		t.Fatal("the exhausting allocation should also return an error")
	}
	if !strings.Contains(lastErr.Error(), "ReservedBaselineCodeCacheSize") {
		t.Fatalf("the exhaustion error should name ReservedBaselineCodeCacheSize, got %q", lastErr.Error())
	}
}
