package codecache

import (
	"fmt"

	uberatomic "go.uber.org/atomic"
)

// AllocationGate is implemented by the embedding VM's own safepoint/allocation
// machinery and lets codecache disable
// heap allocation for the duration of a code-cache allocation, without
// codecache importing the VM package.
type AllocationGate interface {
	DisableAllocation()
	EnableAllocation()
}

// SafepointCoordinator lets the Evictor stop every other mutator for the
// duration of a compacting eviction pass.
type SafepointCoordinator interface {
	RequestSTW()
	ReleaseSTW()
}

type noopGate struct{}

func (noopGate) DisableAllocation() {}
func (noopGate) EnableAllocation() {}

type noopCoordinator struct{}

func (noopCoordinator) RequestSTW() {}
func (noopCoordinator) ReleaseSTW() {}

var outstandingGates uberatomic.Int64

// SafepointGate is a scoped, idempotent disable of safepoint polling and
// heap allocation for the current mutator. Heap allocation is disabled
// through the AllocationGate; safepoint polling is tracked only as a flag
// on the gate (for nesting), and no call is made to stop polling itself.
// Callers must call Exit exactly
// once (typically via defer) on every path out of the scope they entered
// the gate for.
type SafepointGate struct {
	coord           AllocationGate
	disabledPolling bool
	disabledAlloc   bool
	exited          bool
}

// EnterSafepoint disables heap allocation via gate and marks safepoint
// polling as disabled on the returned gate (a flag only). If parent
// is non-nil and already has one of those disabled, this gate does not
// re-disable it and will not re-enable it on Exit — nested use is
// idempotent with respect to the outer scope.
func EnterSafepoint(gate AllocationGate, parent *SafepointGate) *SafepointGate {
	if gate == nil {
		gate = noopGate{}
	}
	g := &SafepointGate{coord: gate}

	pollingAlreadyDisabled := parent != nil && parent.disabledPolling
	allocAlreadyDisabled := parent != nil && parent.disabledAlloc

	if !pollingAlreadyDisabled {
		g.disabledPolling = true
	}
	if !allocAlreadyDisabled {
		gate.DisableAllocation()
		g.disabledAlloc = true
	}

	outstandingGates.Inc()
	return g
}

// Exit restores whichever of polling/allocation this particular gate
// disabled. Safe to call more than once; only the first call has effect.
func (g *SafepointGate) Exit() {
	if g == nil || g.exited {
		return
	}
	g.exited = true
	if g.disabledAlloc {
		g.coord.EnableAllocation()
	}
	outstandingGates.Dec()
}

// AssertBalanced reports an error if any SafepointGate has been entered but
// not yet exited. Intended for test teardown.
func AssertBalanced() error {
	if n := outstandingGates.Load(); n != 0 {
		return fmt.Errorf("%w: %d outstanding", ErrSafepointImbalance, n)
	}
	return nil
}
