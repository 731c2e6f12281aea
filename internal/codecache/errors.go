package codecache

import "errors"

var (
	// ErrDisplacementOverflow is returned when a relocated call target no
	// longer fits in a 32-bit PC-relative displacement.
	ErrDisplacementOverflow = errors.New("codecache: call displacement does not fit in 32 bits")

	// ErrSafepointImbalance is returned by AssertBalanced when a SafepointGate
	// was entered but never exited.
	ErrSafepointImbalance = errors.New("codecache: safepoint gate entered but not exited")

	// ErrBundleOversized is returned by Evict when a live bundle does not fit
	// in the standby half of a semi-space region.
	ErrBundleOversized = errors.New("codecache: survivor does not fit in destination region")

	// ErrAlreadyInitialized is returned by Init when called more than once.
	ErrAlreadyInitialized = errors.New("codecache: already initialized")

	// ErrRegionExhausted is returned when a region cannot satisfy an
	// allocation even after eviction (for regions that support it).
	ErrRegionExhausted = errors.New("codecache: region exhausted")
)
