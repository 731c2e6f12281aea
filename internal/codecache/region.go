package codecache

import (
	"sort"
	"sync/atomic"

	uberatomic "go.uber.org/atomic"
)

// Region is the common read surface of a code cache region: a boot region,
// an opt region, and a baseline semi-space region (via SemiSpaceCodeRegion)
// all satisfy it.
type Region interface {
	Name() string
	Start() Address
	Mark() Address
	End() Address
	Contains(addr Address) bool
	Find(addr Address) (*Bundle, bool)
	Visit(visitor func(*Bundle) bool)
}

// regionIndex is an immutable, sorted snapshot of a CodeRegion's bundles,
// published via atomic.Pointer so Find and Visit never take a lock.
type regionIndex struct {
	starts  []Address
	bundles []*Bundle
}

// CodeRegion is an append-only bump allocator over one contiguous window of
// executable memory. Allocation is single-writer (serialized by the owning
// CodeCache's mutex); lookups are lock-free.
type CodeRegion struct {
	name       string
	start, end Address
	mem        []byte
	mark       uberatomic.Uintptr
	index      atomic.Pointer[regionIndex]
}

func newCodeRegion(name string, mem []byte, start Address) *CodeRegion {
	r := &CodeRegion{
		name:  name,
		start: start,
		end:   start + Address(len(mem)),
		mem:   mem,
	}
	r.mark.Store(start)
	return r
}

func (r *CodeRegion) Name() string  { return r.name }
func (r *CodeRegion) Start() Address { return r.start }
func (r *CodeRegion) Mark() Address  { return r.mark.Load() }
func (r *CodeRegion) End() Address   { return r.end }

// Contains is a pure interval test over the region's full reserved window,
// not over [Start,Mark); an address past the live mark but still inside the
// reservation is still "this region's", it's simply unallocated.
func (r *CodeRegion) Contains(addr Address) bool {
	return addr >= r.start && addr < r.end
}

// allocate bumps the mark by size (already expected to be word-rounded) and
// returns the new bundle's start address plus a slice over its backing
// bytes. Returns (0, nil) if the region cannot satisfy the request. Callers
// must hold the owning CodeCache's mutex.
func (r *CodeRegion) allocate(size int) (Address, []byte) {
	sz := Address(size)
	cur := r.mark.Load()
	if cur+sz > r.end {
		return 0, nil
	}
	r.mark.Store(cur + sz)
	off := cur - r.start
	return cur, r.mem[off : off+sz]
}

// addBundle publishes a freshly allocated bundle into the lookup index.
// Bundles are always appended in increasing address order (the region is a
// bump allocator), so the index stays sorted without re-sorting.
func (r *CodeRegion) addBundle(b *Bundle) {
	old := r.index.Load()
	var starts []Address
	var bundles []*Bundle
	if old != nil {
		starts = append(append([]Address{}, old.starts...), b.start)
		bundles = append(append([]*Bundle{}, old.bundles...), b)
	} else {
		starts = []Address{b.start}
		bundles = []*Bundle{b}
	}
	r.index.Store(&regionIndex{starts: starts, bundles: bundles})
}

// findIndexed is like Find but also returns the bundle's start address as
// recorded in the index at the time of the call. That start is stable even
// if the bundle is concurrently being relocated by an eviction in progress
// (relocation mutates the Bundle's own start field, not the index).
func (r *CodeRegion) findIndexed(addr Address) (*Bundle, Address, bool) {
	if addr < r.start || addr >= r.end {
		return nil, 0, false
	}
	idx := r.index.Load()
	if idx == nil {
		return nil, 0, false
	}
	i := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > addr }) - 1
	if i < 0 {
		return nil, 0, false
	}
	b := idx.bundles[i]
	if addr < idx.starts[i]+Address(b.layout.window()) {
		return b, idx.starts[i], true
	}
	return nil, 0, false
}

func (r *CodeRegion) Find(addr Address) (*Bundle, bool) {
	b, _, ok := r.findIndexed(addr)
	return b, ok
}

// Visit walks bundles in allocation order until visitor returns false.
func (r *CodeRegion) Visit(visitor func(*Bundle) bool) {
	idx := r.index.Load()
	if idx == nil {
		return
	}
	for _, b := range idx.bundles {
		if !visitor(b) {
			return
		}
	}
}

// reset discards all bundles and rewinds the mark to Start. Used on the
// outgoing active half of a semi-space region right after its survivors
// have been relocated into the other half, before the halves flip.
func (r *CodeRegion) reset() {
	r.mark.Store(r.start)
	r.index.Store(nil)
}
