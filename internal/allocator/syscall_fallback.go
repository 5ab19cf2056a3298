//go:build !linux
// +build !linux

package allocator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// simulatedBreakReserve is the size of the single virtual-memory
// reservation backing the simulated heap-extend arena on platforms
// without a usable brk(2). Pages are committed lazily by the kernel on
// first touch, so this reservation does not cost physical memory until
// the arena is actually grown into.
const simulatedBreakReserve = 1 << 30 // 1 GiB of address space

// fallbackKernel implements kernelOps for platforms with no portable
// brk(2) (everything but Linux). anon-map and unmap are unix.Mmap and
// unix.Munmap directly, same as the Linux path, since mmap/munmap are
// POSIX-portable. heap-extend has no portable equivalent, so it is
// simulated by bumping a cursor through one mmap-reserved region — the
// same "grow one contiguous arena at its tail" contract a real sbrk
// gives, expressed portably. This is the bump-pointer shape of the
// teacher's ArenaAllocatorImpl, repurposed here as a kernel primitive
// rather than as an allocator of its own.
type fallbackKernel struct {
	reserved []byte
	cursor   uintptr
}

func newKernel() kernelOps { return &fallbackKernel{} }

func (k *fallbackKernel) ensureReserved() error {
	if k.reserved != nil {
		return nil
	}

	b, err := unix.Mmap(-1, 0, simulatedBreakReserve, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("mmap (simulated break arena): %w", err)
	}

	k.reserved = b

	return nil
}

// HeapExtend implements kernelOps.HeapExtend by bumping k.cursor through
// the reserved region and returning its previous value, matching sbrk's
// "returns the address of the previous break" contract.
func (k *fallbackKernel) HeapExtend(delta uintptr) (unsafe.Pointer, error) {
	if err := k.ensureReserved(); err != nil {
		return nil, err
	}

	if k.cursor+delta > uintptr(len(k.reserved)) {
		return nil, unix.ENOMEM
	}

	prev := k.cursor
	k.cursor += delta

	return unsafe.Pointer(&k.reserved[prev]), nil
}

// AnonMap implements kernelOps.AnonMap via mmap(MAP_PRIVATE|MAP_ANONYMOUS).
func (*fallbackKernel) AnonMap(length uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return unsafe.Pointer(&b[0]), nil
}

// Unmap implements kernelOps.Unmap via munmap.
func (*fallbackKernel) Unmap(addr unsafe.Pointer, length uintptr) error {
	b := unsafe.Slice((*byte)(addr), length)

	return unix.Munmap(b)
}

// PageSize implements kernelOps.PageSize via getpagesize(2).
func (*fallbackKernel) PageSize() uintptr {
	return uintptr(unix.Getpagesize())
}
