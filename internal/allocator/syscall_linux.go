//go:build linux
// +build linux

package allocator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxKernel implements kernelOps with raw Linux syscalls: SYS_BRK for
// heap-extend (mirroring glibc's sbrk, which queries the current break
// and then requests the new one) and unix.Mmap/Munmap for anon-map.
type linuxKernel struct{}

func newKernel() kernelOps { return linuxKernel{} }

// currentBreak queries the process break without moving it, per the
// SYS_BRK convention of returning the current break when passed 0.
func currentBreak() (uintptr, error) {
	addr, _, errno := unix.Syscall(unix.SYS_BRK, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}

	return addr, nil
}

// HeapExtend implements kernelOps.HeapExtend in the two-syscall sbrk
// idiom: read the current break, then ask the kernel to move it forward
// by delta and confirm the move actually happened.
func (linuxKernel) HeapExtend(delta uintptr) (unsafe.Pointer, error) {
	prev, err := currentBreak()
	if err != nil {
		return nil, err
	}

	if delta == 0 {
		return unsafe.Pointer(prev), nil
	}

	want := prev + delta

	got, _, errno := unix.Syscall(unix.SYS_BRK, want, 0, 0)
	if errno != 0 {
		return nil, errno
	}

	if got < want {
		return nil, unix.ENOMEM
	}

	return unsafe.Pointer(prev), nil
}

// AnonMap implements kernelOps.AnonMap via mmap(MAP_PRIVATE|MAP_ANONYMOUS).
func (linuxKernel) AnonMap(length uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return unsafe.Pointer(&b[0]), nil
}

// Unmap implements kernelOps.Unmap via munmap.
func (linuxKernel) Unmap(addr unsafe.Pointer, length uintptr) error {
	b := unsafe.Slice((*byte)(addr), length)

	return unix.Munmap(b)
}

// PageSize implements kernelOps.PageSize via getpagesize(2).
func (linuxKernel) PageSize() uintptr {
	return uintptr(unix.Getpagesize())
}
