package codecache

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Reachability decides, during the mark phase of an eviction, whether a
// bundle is still referenced by anything outside the code cache. The code
// cache has no way to determine this on its own (it does not walk stacks or
// object graphs); the oracle is supplied by the VM.
type Reachability func(b *Bundle) bool

func alwaysAlive(*Bundle) bool { return true }

// EvictionStats summarizes one completed eviction pass.
type EvictionStats struct {
	Survivors     int
	SurvivorBytes int64
	// LastSurvivorSize is the same as SurvivorBytes; kept as a distinct
	// field because it is what SemiSpaceCodeRegion.Stats reports alongside
	// the running LargestSurvivorSize.
	LastSurvivorSize int64
}

// Evictor implements compacting eviction for one SemiSpaceCodeRegion: stop
// the world, mark survivors, relocate them into the standby half rewriting
// every call site that crosses the move, rewrite the boot-region roots that
// call into baseline, flip, and report.
type Evictor struct {
	region *SemiSpaceCodeRegion
	roots  *RootTable
}

func newEvictor(region *SemiSpaceCodeRegion, roots *RootTable) *Evictor {
	return &Evictor{region: region, roots: roots}
}

type placement struct {
	bundle   *Bundle
	oldStart Address
	newStart Address
}

func (e *Evictor) Evict(coord SafepointCoordinator, oracle Reachability) (EvictionStats, error) {
	if coord == nil {
		coord = noopCoordinator{}
	}
	if oracle == nil {
		oracle = alwaysAlive
	}

	coord.RequestSTW()
	defer coord.ReleaseSTW()

	region := e.region
	from := region.Active()
	to := region.Standby()

	notifyEvictionStarted(region)

	var survivors []*Bundle
	from.Visit(func(b *Bundle) bool {
		if oracle(b) {
			survivors = append(survivors, b)
		}
		return true
	})

	relocMap := make(map[*Bundle]Address, len(survivors))
	placements := make([]placement, 0, len(survivors))
	cursor := to.start
	for _, b := range survivors {
		size := Address(b.layout.window())
		if cursor+size > to.end {
			return EvictionStats{}, fmt.Errorf("%w: %s needs %d bytes, only %d remain in %s",
				ErrBundleOversized, bundleName(b), size, to.end-cursor, to.Name())
		}
		relocMap[b] = cursor
		placements = append(placements, placement{bundle: b, oldStart: b.start, newStart: cursor})
		cursor += size
	}

	var relocErr error
	for _, p := range placements {
		window := p.bundle.layout.window()
		dstOff := p.newStart - to.start
		srcOff := p.oldStart - from.start
		dst := to.mem[dstOff : dstOff+Address(window)]
		src := from.mem[srcOff : srcOff+Address(window)]
		copy(dst, src)

		p.bundle.start = p.newStart
		p.bundle.code = dst[:p.bundle.layout.CodeLen]
		if p.bundle.layout.ScalarLen > 0 {
			so := p.bundle.layout.scalarOffset()
			p.bundle.scalarLiterals = dst[so : so+p.bundle.layout.ScalarLen]
		} else {
			p.bundle.scalarLiterals = nil
		}

		if err := patchCallSites(p.bundle, p.oldStart, relocMap, from); err != nil {
			relocErr = multierr.Append(relocErr, err)
		}
	}
	if relocErr != nil {
		return EvictionStats{}, relocErr
	}

	e.roots.ForEach(func(entry RootEntry) bool {
		if err := patchCallSites(entry.Caller, entry.Caller.start, relocMap, from); err != nil {
			relocErr = multierr.Append(relocErr, err)
		}
		return true
	})
	if relocErr != nil {
		return EvictionStats{}, relocErr
	}

	newIdx := &regionIndex{
		starts:  make([]Address, len(placements)),
		bundles: make([]*Bundle, len(placements)),
	}
	var survivorBytes int64
	for i, p := range placements {
		newIdx.starts[i] = p.newStart
		newIdx.bundles[i] = p.bundle
		survivorBytes += int64(p.bundle.layout.window())
	}
	to.mark.Store(cursor)
	to.index.Store(newIdx)

	from.reset()

	region.flip()

	stats := EvictionStats{
		Survivors:        len(placements),
		SurvivorBytes:     survivorBytes,
		LastSurvivorSize:  survivorBytes,
	}
	region.recordStats(stats)

	notifyEvictionCompleted(region, stats)

	return stats, nil
}

// patchCallSites rewrites every call site in caller whose current target
// lies within from's old address range, using relocMap (keyed by the Go
// bundle pointer, so it is unaffected by the fact that survivor bundles'
// start fields are being mutated over the course of the same pass). Calls
// whose target is outside from, or whose target bundle did not survive
// (relocMap has no entry for it), keep their old absolute target; only the
// displacement is re-encoded for the caller's new position.
func patchCallSites(caller *Bundle, oldCallerStart Address, relocMap map[*Bundle]Address, from *CodeRegion) error {
	for _, dispOff := range caller.callSites {
		if dispOff < 0 || dispOff+4 > len(caller.code) {
			continue
		}
		instrEnd := caller.start + Address(dispOff) + 4
		oldInstrEnd := oldCallerStart + Address(dispOff) + 4
		disp := int32(binary.LittleEndian.Uint32(caller.code[dispOff : dispOff+4]))
		oldTarget := Address(int64(oldInstrEnd) + int64(disp))

		newTarget := oldTarget
		if from.Contains(oldTarget) {
			oldBundle, oldBundleStart, ok := from.findIndexed(oldTarget)
			if !ok {
				continue
			}
			// A callee that did not survive keeps its old absolute target:
			// the call is left dangling, and since the caller itself may
			// have moved, its displacement is still re-encoded below so it
			// keeps pointing at that same old address.
			if newStart, relocated := relocMap[oldBundle]; relocated {
				newTarget = newStart + (oldTarget - oldBundleStart)
			}
		}

		newDisp64 := int64(newTarget) - int64(instrEnd)
		if newDisp64 < math.MinInt32 || newDisp64 > math.MaxInt32 {
			return fmt.Errorf("%w: call at offset %d in %s", ErrDisplacementOverflow, dispOff, bundleName(caller))
		}
		binary.LittleEndian.PutUint32(caller.code[dispOff:dispOff+4], uint32(int32(newDisp64)))
	}
	return nil
}
