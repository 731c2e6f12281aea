package codecache

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	uberatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

// CodeCache is the façade over the boot, baseline, and opt regions. There is
// normally exactly one per process, reached via Global after Init.
type CodeCache struct {
	mu sync.Mutex

	cfg       Config
	addrRange *AddressRange

	boot     *CodeRegion
	baseline *SemiSpaceCodeRegion
	opt      *CodeRegion

	roots *RootTable

	allocGate    AllocationGate
	coord        SafepointCoordinator
	reachability Reachability

	nAllocations uberatomic.Int64
	exitHook     func(code int)
}

// Options configures Init. AllocationGate, Safepoint, and Reachability may
// all be left nil; no-op/always-alive defaults are used, which is enough for
// tests and for opt/boot-only use before the VM's safepoint machinery is
// wired up.
type Options struct {
	Config       Config
	AllocationGate AllocationGate
	Safepoint    SafepointCoordinator
	Reachability Reachability
	// ExitHook is called with 11 when a region is exhausted and cannot
	// recover. Defaults to os.Exit. Tests override it to observe the call
	// without actually terminating the process.
	ExitHook func(code int)
}

var (
	initMu sync.Mutex
	global *CodeCache
)

// Init reserves the address window and builds the boot/baseline/opt regions
// described by opts.Config. It may be called at most once per process.
func Init(opts Options) (*CodeCache, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if global != nil {
		return nil, ErrAlreadyInitialized
	}
	cc, err := newCodeCache(opts)
	if err != nil {
		return nil, err
	}
	global = cc
	return cc, nil
}

// Global returns the process-wide CodeCache, or nil if Init has not run.
func Global() *CodeCache { return global }

// resetGlobalForTest clears the process-wide singleton. Test-only.
func resetGlobalForTest() {
	initMu.Lock()
	defer initMu.Unlock()
	global = nil
}

func newCodeCache(opts Options) (*CodeCache, error) {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}

	bootSize := alignSize(cfg.ReservedBootCodeCacheSize)
	baselineHalf := alignSize(cfg.ReservedBaselineCodeCacheSize / 2)
	optSize := alignSize(cfg.ReservedOptCodeCacheSize)

	total := uintptr(bootSize) + uintptr(baselineHalf)*2 + uintptr(optSize)

	ar, err := reserveAddressRange(total)
	if err != nil {
		return nil, err
	}

	var offset uintptr
	bootMem := ar.Sub(offset, uintptr(bootSize))
	offset += uintptr(bootSize)
	fromMem := ar.Sub(offset, uintptr(baselineHalf))
	offset += uintptr(baselineHalf)
	toMem := ar.Sub(offset, uintptr(baselineHalf))
	offset += uintptr(baselineHalf)
	optMem := ar.Sub(offset, uintptr(optSize))

	boot := newCodeRegion("Code-Boot", bootMem, ar.Base())
	from := newCodeRegion("Code-Runtime-Baseline-A", fromMem, ar.Base()+Address(bootSize))
	to := newCodeRegion("Code-Runtime-Baseline-B", toMem, ar.Base()+Address(bootSize)+Address(baselineHalf))
	opt := newCodeRegion("Code-Runtime-Opt", optMem, ar.Base()+Address(bootSize)+Address(baselineHalf)*2)

	baseline := newSemiSpaceCodeRegion("Code-Runtime-Baseline", from, to)
	roots := NewRootTable()
	baseline.evictor = newEvictor(baseline, roots)

	allocGate := opts.AllocationGate
	if allocGate == nil {
		allocGate = noopGate{}
	}
	coord := opts.Safepoint
	if coord == nil {
		coord = noopCoordinator{}
	}
	exitHook := opts.ExitHook
	if exitHook == nil {
		exitHook = os.Exit
	}

	return &CodeCache{
		cfg:          cfg,
		addrRange:    ar,
		boot:         boot,
		baseline:     baseline,
		opt:          opt,
		roots:        roots,
		allocGate:    allocGate,
		coord:        coord,
		reachability: opts.Reachability,
		exitHook:     exitHook,
	}, nil
}

func (cc *CodeCache) regionFor(lifespan Lifespan) *CodeRegion {
	if lifespan == LifespanLong {
		return cc.opt
	}
	return cc.baseline.Active()
}

// Allocate reserves room for a bundle with the given layout and lifespan. If
// inHeap is true the bundle is allocated as an ordinary Go-heap object and
// never touches a code region (it will not be found by FindMethod).
//
// Baseline allocations that fail trigger exactly one eviction retry before
// giving up. Any allocation that still fails calls the configured exit hook
// with code 11.
func (cc *CodeCache) Allocate(layout BundleLayout, method TargetMethod, inHeap bool, lifespan Lifespan) (*Bundle, error) {
	if inHeap {
		return cc.allocateInHeap(layout, method, lifespan)
	}

	gate := EnterSafepoint(cc.allocGate, nil)
	defer gate.Exit()

	cc.mu.Lock()
	defer cc.mu.Unlock()

	isBaseline := lifespan != LifespanLong
	windowSize := layout.window()

	region := cc.regionFor(lifespan)
	start, mem := cc.tryAllocate(region, windowSize, isBaseline)

	if start == 0 && isBaseline {
		stats, err := cc.baseline.Evict(cc.coord, cc.reachability)
		if err != nil {
			return nil, cc.fatalExit("ReservedBaselineCodeCacheSize", fmt.Errorf("eviction failed: %w", err))
		}
		cc.logEviction(stats)
		region = cc.baseline.Active()
		start, mem = region.allocate(windowSize)
	}

	if start == 0 {
		optName := "ReservedOptCodeCacheSize"
		switch {
		case isBaseline:
			optName = "ReservedBaselineCodeCacheSize"
		case region == cc.boot:
			optName = "ReservedBootCodeCacheSize"
		}
		return nil, cc.fatalExit(optName, fmt.Errorf("%w: %s", ErrRegionExhausted, region.Name()))
	}

	bundle := newBundle(start, layout, method, lifespan, mem)
	region.addBundle(bundle)

	if cc.cfg.TraceCodeAllocation {
		logger().Debug("allocated bundle",
			zap.String("region", region.Name()),
			zap.Int("codeLen", layout.CodeLen),
			zap.Uintptr("start", start),
		)
	}
	return bundle, nil
}

func (cc *CodeCache) tryAllocate(region *CodeRegion, size int, isBaseline bool) (Address, []byte) {
	if isBaseline && cc.cfg.CodeCacheContentionFrequency > 0 {
		n := cc.nAllocations.Inc()
		if n%int64(cc.cfg.CodeCacheContentionFrequency) == 0 {
			return 0, nil
		}
	}
	return region.allocate(size)
}

func (cc *CodeCache) allocateInHeap(layout BundleLayout, method TargetMethod, lifespan Lifespan) (*Bundle, error) {
	code := make([]byte, layout.CodeLen)
	var start Address
	if len(code) > 0 {
		start = Address(uintptr(unsafe.Pointer(&code[0])))
	}
	b := &Bundle{start: start, layout: layout, method: method, lifespan: lifespan, code: code}
	if layout.ScalarLen > 0 {
		b.scalarLiterals = make([]byte, layout.ScalarLen)
	}
	if layout.RefLen > 0 {
		b.referenceLiterals = make([]unsafe.Pointer, layout.RefLen)
	}
	return b, nil
}

func (cc *CodeCache) fatalExit(optionName string, err error) error {
	logger().Error("code cache exhausted", zap.String("option", optionName), zap.Error(err))
	err = fmt.Errorf("%w; raise %s", err, optionName)
	cc.exitHook(11)
	return err
}

func (cc *CodeCache) logEviction(stats EvictionStats) {
	logger().Info("code eviction reclaimed region space",
		zap.Int("survivors", stats.Survivors),
		zap.Int64("survivorBytes", stats.SurvivorBytes),
	)
}

// FindRegion returns whichever region's reserved window contains addr.
func (cc *CodeCache) FindRegion(addr Address) (Region, bool) {
	if cc.boot.Contains(addr) {
		return cc.boot, true
	}
	if cc.baseline.Contains(addr) {
		return cc.baseline, true
	}
	if cc.opt.Contains(addr) {
		return cc.opt, true
	}
	return nil, false
}

// FindMethod combines FindRegion with the region's internal lookup,
// returning the bundle that owns addr, if any.
func (cc *CodeCache) FindMethod(addr Address) (*Bundle, bool) {
	region, ok := cc.FindRegion(addr)
	if !ok {
		return nil, false
	}
	return region.Find(addr)
}

// RecordBootToBaseline registers caller (a boot-region bundle) as having a
// direct call into the baseline region, so that eviction knows to rewrite
// that call site if its target moves.
func (cc *CodeCache) RecordBootToBaseline(caller *Bundle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.roots.Append(caller)
}

// VisitCells walks every bundle in baseline and opt, and in boot if
// includeBoot is set, in allocation order, until visitor returns false.
func (cc *CodeCache) VisitCells(visitor func(*Bundle) bool, includeBoot bool) {
	stopped := false
	v := func(b *Bundle) bool {
		if !visitor(b) {
			stopped = true
			return false
		}
		return true
	}
	if includeBoot {
		cc.boot.Visit(v)
		if stopped {
			return
		}
	}
	cc.baseline.Visit(v)
	if stopped {
		return
	}
	cc.opt.Visit(v)
}

// Boot, Baseline, and Opt expose the underlying regions for diagnostics and
// tests.
func (cc *CodeCache) Boot() *CodeRegion             { return cc.boot }
func (cc *CodeCache) Baseline() *SemiSpaceCodeRegion { return cc.baseline }
func (cc *CodeCache) Opt() *CodeRegion              { return cc.opt }
func (cc *CodeCache) Roots() *RootTable             { return cc.roots }
