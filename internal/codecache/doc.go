// Package codecache manages the virtual-memory regions Nova's JIT compiles
// code into: an immortal boot region, a two-half compacting baseline region,
// and an append-only optimized region. All three live inside one reserved
// address window so that a direct call anywhere in the cache can reach any
// other bundle with a 32-bit relative displacement.
//
// Allocation, eviction, and lookup are safe for concurrent use; eviction
// pauses every other mutator via a SafepointCoordinator supplied by the VM.
package codecache
