package codecache

import (
	"sync/atomic"

	uberatomic "go.uber.org/atomic"
)

// SemiSpaceCodeRegion is the baseline region: two CodeRegion halves, one
// active, one standby. Eviction compacts survivors from the active half into
// the standby half and flips which half is active.
type SemiSpaceCodeRegion struct {
	name    string
	active  atomic.Pointer[CodeRegion]
	standby *CodeRegion
	evictor *Evictor

	lastSurvivorSize    uberatomic.Int64
	largestSurvivorSize uberatomic.Int64
	evictionCount       uberatomic.Int64
}

func newSemiSpaceCodeRegion(name string, from, to *CodeRegion) *SemiSpaceCodeRegion {
	s := &SemiSpaceCodeRegion{name: name, standby: to}
	s.active.Store(from)
	return s
}

func (s *SemiSpaceCodeRegion) Name() string         { return s.name }
func (s *SemiSpaceCodeRegion) Active() *CodeRegion  { return s.active.Load() }
func (s *SemiSpaceCodeRegion) Standby() *CodeRegion { return s.standby }

func (s *SemiSpaceCodeRegion) Start() Address { return s.Active().Start() }
func (s *SemiSpaceCodeRegion) Mark() Address  { return s.Active().Mark() }
func (s *SemiSpaceCodeRegion) End() Address   { return s.Active().End() }

func (s *SemiSpaceCodeRegion) Contains(addr Address) bool        { return s.Active().Contains(addr) }
func (s *SemiSpaceCodeRegion) Find(addr Address) (*Bundle, bool) { return s.Active().Find(addr) }
func (s *SemiSpaceCodeRegion) Visit(v func(*Bundle) bool)        { s.Active().Visit(v) }

// Evict runs one compacting eviction pass: it stops every other mutator via
// coord, keeps bundles oracle reports as reachable, discards the rest, and
// swaps which half is active.
func (s *SemiSpaceCodeRegion) Evict(coord SafepointCoordinator, oracle Reachability) (EvictionStats, error) {
	return s.evictor.Evict(coord, oracle)
}

// flip swaps which half is active. Callers must have already finished
// writing survivors into the (soon-to-be-active) standby half and reset the
// (soon-to-be-standby) active half.
func (s *SemiSpaceCodeRegion) flip() {
	old := s.active.Load()
	s.active.Store(s.standby)
	s.standby = old
}

func (s *SemiSpaceCodeRegion) recordStats(stats EvictionStats) {
	s.evictionCount.Inc()
	s.lastSurvivorSize.Store(stats.LastSurvivorSize)
	if stats.LastSurvivorSize > s.largestSurvivorSize.Load() {
		s.largestSurvivorSize.Store(stats.LastSurvivorSize)
	}
}

// Stats returns the survivor byte count of the most recent eviction and the
// largest survivor byte count seen across all evictions.
func (s *SemiSpaceCodeRegion) Stats() (last, largest int64) {
	return s.lastSurvivorSize.Load(), s.largestSurvivorSize.Load()
}

// EvictionCount returns the number of evictions run against this region.
func (s *SemiSpaceCodeRegion) EvictionCount() int64 {
	return s.evictionCount.Load()
}
