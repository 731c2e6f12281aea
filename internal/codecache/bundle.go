package codecache

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Address is a raw code-cache address. It is always within the reserved
// AddressRange of the process's CodeCache.
type Address = uintptr

const NullAddress Address = 0

// Lifespan classifies how long a bundle is expected to live, and therefore
// which region it is allocated into.
type Lifespan int32

const (
	// LifespanOneShot is for code that runs once and is immediately
	// reclaimable (e.g. a trampoline used during linking).
	LifespanOneShot Lifespan = iota
	// LifespanShort is for baseline-compiled code: cheap to produce, cheap
	// to discard, lives in the semi-space region.
	LifespanShort
	// LifespanLong is for optimizing-compiler output: expensive to produce,
	// lives in the append-only opt region and is never evicted.
	LifespanLong
)

func (l Lifespan) String() string {
	switch l {
	case LifespanOneShot:
		return "one-shot"
	case LifespanShort:
		return "short"
	case LifespanLong:
		return "long"
	default:
		return fmt.Sprintf("lifespan(%d)", int32(l))
	}
}

const wordSize = 8

func roundUpWord(n int) int {
	return (n + wordSize - 1) &^ (wordSize - 1)
}

// BundleLayout is the (code, scalarLiterals, referenceLiterals) length
// triple. All offsets within a bundle are a deterministic function of this
// triple, so relocation never needs to consult per-bundle metadata to find
// the scalar literals once it knows the code length.
type BundleLayout struct {
	CodeLen   int
	ScalarLen int
	RefLen    int
}

func (l BundleLayout) scalarOffset() int {
	return roundUpWord(l.CodeLen)
}

// window is the number of region bytes a bundle with this layout occupies:
// the code array and the scalar literals array, each word-rounded. Reference
// literals are GC-visible Go values and do not live in the mmap'd window;
// see Bundle.referenceLiterals.
func (l BundleLayout) window() int {
	return roundUpWord(l.CodeLen) + roundUpWord(l.ScalarLen)
}

// TargetMethod is the minimal identity a compiled unit must expose to be
// wrapped in a Bundle. Compilers supply their own richer type satisfying
// this interface.
type TargetMethod interface {
	MethodName() string
}

// Bundle is the unit of allocation and relocation in a code region: a
// contiguous run of machine code, its scalar literal pool, and a set of
// reference literals visible to the garbage collector.
//
// The code and scalar literal arrays are backed by the owning region's raw
// executable memory; this makes them relocatable (eviction physically moves
// the bytes). Reference literals are kept as an ordinary Go slice on the
// Bundle itself: raw mmap'd memory is invisible to the Go collector, so any
// object reference a bundle needs to keep alive has to live in GC-tracked
// memory rather than in the window the region bump-allocates.
type Bundle struct {
	start             Address
	layout            BundleLayout
	code              []byte
	scalarLiterals    []byte
	referenceLiterals []unsafe.Pointer
	method            TargetMethod
	lifespan          Lifespan
	protected         bool
	callSites         []int // byte offsets into code of each call's 4-byte rel32 field
}

func newBundle(start Address, layout BundleLayout, method TargetMethod, lifespan Lifespan, mem []byte) *Bundle {
	b := &Bundle{
		start:    start,
		layout:   layout,
		method:   method,
		lifespan: lifespan,
		code:     mem[:layout.CodeLen],
	}
	if layout.ScalarLen > 0 {
		so := layout.scalarOffset()
		b.scalarLiterals = mem[so : so+layout.ScalarLen]
	}
	if layout.RefLen > 0 {
		b.referenceLiterals = make([]unsafe.Pointer, layout.RefLen)
	}
	return b
}

// CodeStart is the bundle's address: the first byte of its code array.
func (b *Bundle) CodeStart() Address { return b.start }

// Size is the bundle's footprint in region bytes (code + scalar literals).
func (b *Bundle) Size() uintptr { return uintptr(b.layout.window()) }

func (b *Bundle) Code() []byte                       { return b.code }
func (b *Bundle) ScalarLiterals() []byte              { return b.scalarLiterals }
func (b *Bundle) ReferenceLiterals() []unsafe.Pointer { return b.referenceLiterals }
func (b *Bundle) Method() TargetMethod                { return b.method }
func (b *Bundle) Lifespan() Lifespan                  { return b.lifespan }
func (b *Bundle) Protected() bool                     { return b.protected }
func (b *Bundle) SetProtected(p bool)                 { b.protected = p }
func (b *Bundle) CallSites() []int                    { return b.callSites }

// AddCallSite records the byte offset of an already-encoded call's 4-byte
// displacement field, so that eviction knows to re-examine it.
func (b *Bundle) AddCallSite(dispOffset int) {
	b.callSites = append(b.callSites, dispOffset)
}

// EncodeCall writes a direct call (x86 E8 rel32) at instrOffset targeting
// target, and registers the call site for future relocation.
func (b *Bundle) EncodeCall(instrOffset int, target Address) {
	b.code[instrOffset] = 0xE8
	dispOff := instrOffset + 1
	instrEnd := b.start + Address(dispOff) + 4
	disp := int32(int64(target) - int64(instrEnd))
	binary.LittleEndian.PutUint32(b.code[dispOff:dispOff+4], uint32(disp))
	b.AddCallSite(dispOff)
}

// CallTarget decodes the absolute address a call site currently targets.
func (b *Bundle) CallTarget(dispOffset int) Address {
	instrEnd := b.start + Address(dispOffset) + 4
	disp := int32(binary.LittleEndian.Uint32(b.code[dispOffset : dispOffset+4]))
	return Address(int64(instrEnd) + int64(disp))
}

func bundleName(b *Bundle) string {
	if b == nil {
		return "<nil bundle>"
	}
	if b.method != nil {
		return b.method.MethodName()
	}
	return fmt.Sprintf("bundle@%#x", b.start)
}
