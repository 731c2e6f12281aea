package codecache

import sjson "github.com/segmentio/encoding/json"

// RegionSnapshot is the debugger-visible state of a single region.
type RegionSnapshot struct {
	Name  string  `json:"name"`
	Start uintptr `json:"start"`
	Mark  uintptr `json:"mark"`
	End   uintptr `json:"end"`
}

// Snapshot is the debugger-visible state of the whole cache, marshaled with
// segmentio/encoding/json for the trace/inspection channel.
type Snapshot struct {
	Boot                RegionSnapshot `json:"boot"`
	Baseline            RegionSnapshot `json:"baseline"`
	Opt                 RegionSnapshot `json:"opt"`
	RootTableSize       int            `json:"rootTableSize"`
	LastSurvivorSize    int64          `json:"lastSurvivorSize"`
	LargestSurvivorSize int64          `json:"largestSurvivorSize"`
}

func regionSnapshot(r Region) RegionSnapshot {
	return RegionSnapshot{
		Name:  r.Name(),
		Start: uintptr(r.Start()),
		Mark:  uintptr(r.Mark()),
		End:   uintptr(r.End()),
	}
}

// Snapshot captures the current marks, capacities, and survivor stats of
// every region.
func (cc *CodeCache) Snapshot() Snapshot {
	last, largest := cc.baseline.Stats()
	return Snapshot{
		Boot:                regionSnapshot(cc.boot),
		Baseline:            regionSnapshot(cc.baseline),
		Opt:                 regionSnapshot(cc.opt),
		RootTableSize:       cc.roots.Len(),
		LastSurvivorSize:    last,
		LargestSurvivorSize: largest,
	}
}

// ToJSON serializes the snapshot for the process diagnostic channel.
func (s Snapshot) ToJSON() ([]byte, error) {
	return sjson.Marshal(s)
}
