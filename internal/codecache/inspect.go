package codecache

import "go.uber.org/zap"

// notifyEvictionStarted logs the pre-eviction region state and then signals
// the no-op hook a debugger can plant a breakpoint on. It is called
// before the mark phase, so the snapshot observed here is the region's
// state immediately prior to any relocation.
func notifyEvictionStarted(region *SemiSpaceCodeRegion) {
	logger().Debug("code eviction started",
		zap.String("region", region.Name()),
		zap.Uintptr("mark", region.Mark()),
	)
	inspectableCodeEvictionStarted()
}

// notifyEvictionCompleted logs the post-flip region state and stats, and
// signals the matching no-op hook.
func notifyEvictionCompleted(region *SemiSpaceCodeRegion, stats EvictionStats) {
	inspectableCodeEvictionCompleted()
	logger().Debug("code eviction completed",
		zap.String("region", region.Name()),
		zap.Int("survivors", stats.Survivors),
		zap.Int64("survivorBytes", stats.SurvivorBytes),
	)
}

// inspectableCodeEvictionStarted is a breakpoint target for attached
// debuggers/inspectors. It deliberately does nothing; its only purpose is
// to have a stable, never-inlined address to stop at.
//
//go:noinline
func inspectableCodeEvictionStarted() {}

//go:noinline
func inspectableCodeEvictionCompleted() {}
