//go:build windows

package codecache

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32   = windows.NewLazySystemDLL("kernel32.dll")
	procVAlloc = kernel32.NewProc("VirtualAlloc")
	procVFree  = kernel32.NewProc("VirtualFree")
)

const (
	memCommit            = 0x1000
	memReserve           = 0x2000
	memRelease           = 0x8000
	pageExecuteReadwrite = 0x40
)

func mmapExecutable(size uintptr) ([]byte, func() error, error) {
	if size == 0 {
		return nil, func() error { return nil }, nil
	}
	addr, _, err := procVAlloc.Call(0, size, memCommit|memReserve, pageExecuteReadwrite)
	if addr == 0 {
		return nil, nil, fmt.Errorf("codecache: VirtualAlloc: %w", err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	release := func() error {
		_, _, _ = procVFree.Call(addr, 0, memRelease)
		return nil
	}
	return mem, release, nil
}
