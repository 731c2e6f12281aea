package codecache

import "testing"

// Run with:
//   go test -bench=. -benchmem -run=^$ ./internal/codecache/...

func benchConfig() Config {
	return Config{
		ReservedBaselineCodeCacheSize: 4 * MiB,
		ReservedOptCodeCacheSize:      1 * MiB,
		ReservedBootCodeCacheSize:     1 * MiB,
	}
}

func BenchmarkAllocateBaseline(b *testing.B) {
	cc, err := newCodeCache(Options{Config: benchConfig()})
	if err != nil {
		b.Fatalf("newCodeCache: %v", err)
	}
	layout := BundleLayout{CodeLen: 64, ScalarLen: 16}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cc.Allocate(layout, fakeMethod("bench"), false, LifespanShort); err != nil {
			b.Fatalf("Allocate: %v", err)
		}
	}
}

func BenchmarkEvictSurviveAll(b *testing.B) {
	cc, err := newCodeCache(Options{Config: benchConfig()})
	if err != nil {
		b.Fatalf("newCodeCache: %v", err)
	}
	layout := BundleLayout{CodeLen: 64, ScalarLen: 16}
	for i := 0; i < 256; i++ {
		if _, err := cc.Allocate(layout, fakeMethod("bench"), false, LifespanShort); err != nil {
			b.Fatalf("Allocate: %v", err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cc.Baseline().Evict(noopCoordinator{}, func(*Bundle) bool { return true }); err != nil {
			b.Fatalf("Evict: %v", err)
		}
	}
}

func BenchmarkFindMethod(b *testing.B) {
	cc, err := newCodeCache(Options{Config: benchConfig()})
	if err != nil {
		b.Fatalf("newCodeCache: %v", err)
	}
	layout := BundleLayout{CodeLen: 64}
	bundle, err := cc.Allocate(layout, fakeMethod("bench"), false, LifespanShort)
	if err != nil {
		b.Fatalf("Allocate: %v", err)
	}
	addr := bundle.CodeStart()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := cc.FindMethod(addr); !ok {
			b.Fatal("FindMethod should hit")
		}
	}
}
