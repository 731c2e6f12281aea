//go:build !windows

package codecache

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapExecutable reserves size bytes of anonymous RWX memory. Real-world
// deployments would prefer W^X (reserve RW, flip a sub-range to RX once
// code is written), but the code cache rewrites call sites in place during
// eviction long after code has been emitted, so pages stay writable for the
// region's whole lifetime here.
func mmapExecutable(size uintptr) ([]byte, func() error, error) {
	if size == 0 {
		return nil, func() error { return nil }, nil
	}
	mem, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, fmt.Errorf("codecache: mmap: %w", err)
	}
	release := func() error { return unix.Munmap(mem) }
	return mem, release, nil
}
