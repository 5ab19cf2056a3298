package allocator

import "unsafe"

// blockState is the lifecycle state of a descriptor.
type blockState int

const (
	// stateFree marks a heap-extend-backed descriptor available for reuse.
	stateFree blockState = iota
	// stateHeapAllocated marks a heap-extend-backed descriptor in use.
	stateHeapAllocated
	// stateMapped marks an anon-map-backed descriptor. Mapped descriptors
	// never participate in coalescing or splitting.
	stateMapped
)

func (s blockState) String() string {
	switch s {
	case stateFree:
		return "FREE"
	case stateHeapAllocated:
		return "HEAP_ALLOCATED"
	case stateMapped:
		return "MAPPED"
	default:
		return "UNKNOWN"
	}
}

// descriptor prefixes every live allocation and every free region inside
// the heap-extend arena. It is itself aligned to Alignment, and the
// payload begins immediately after it.
type descriptor struct {
	size  uintptr // payload size in bytes, always a multiple of Alignment.
	state blockState
	next  *descriptor // next descriptor in address order, or nil.
}

// descriptorSize is the aligned size of a descriptor header.
var descriptorSize = alignUp(unsafe.Sizeof(descriptor{}), Alignment)

// payload returns the pointer to d's payload, immediately past the
// aligned descriptor.
func (d *descriptor) payload() unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(d)) + descriptorSize)
}

// descriptorFromPayload recovers the descriptor that precedes payload.
func descriptorFromPayload(payload unsafe.Pointer) *descriptor {
	return (*descriptor)(unsafe.Pointer(uintptr(payload) - descriptorSize))
}

// end returns the address immediately past d's occupied bytes (header +
// payload), used to test whether d is immediately followed by another
// descriptor in memory.
func (d *descriptor) end() uintptr {
	return uintptr(unsafe.Pointer(d)) + descriptorSize + d.size
}

// registry is the process-wide singly-linked list of every live
// descriptor, kept in ascending address order (invariant 1). Heap-extend
// and anon-map descriptors are freely interleaved.
type registry struct {
	head *descriptor
}

// append links d onto the tail of the registry. Callers are responsible
// for ensuring d's address is greater than every existing descriptor's,
// which holds for every append site in this package (fresh syscall
// memory is always above everything seen so far, and preallocation only
// happens once on an empty registry).
func (r *registry) append(d *descriptor) {
	if r.head == nil {
		r.head = d

		return
	}

	last := r.head
	for last.next != nil {
		last = last.next
	}

	last.next = d
}

// heapArenaInitialized reports whether any heap-extend-backed descriptor
// (FREE or HEAP_ALLOCATED) exists anywhere in the registry.
func (r *registry) heapArenaInitialized() bool {
	for d := r.head; d != nil; d = d.next {
		if d.state == stateFree || d.state == stateHeapAllocated {
			return true
		}
	}

	return false
}

// lastHeapDescriptor returns the last heap-extend-backed descriptor in
// address order, stopping before any MAPPED descriptor it encounters
// (heap-extend-backed blocks are never interleaved with mapped ones in
// address order past the point a mapped block was appended, but a
// defensive stop matches §4.1's "stopping before any MAPPED descriptor
// encountered").
func (r *registry) lastHeapDescriptor() *descriptor {
	var last *descriptor

	for d := r.head; d != nil; d = d.next {
		if d.state == stateMapped {
			break
		}

		last = d
	}

	return last
}

// findByPayload walks the registry looking for the descriptor whose
// payload equals the given address, opportunistically coalescing each
// descriptor with its successor along the way (the same amortized
// cleanup release/resize perform in the reference implementation). It
// also returns the predecessor of the match, needed to unlink a MAPPED
// descriptor.
func (r *registry) findByPayload(payload unsafe.Pointer) (match, prev *descriptor) {
	var previous *descriptor

	for d := r.head; d != nil; d = d.next {
		coalesce(d, d.next)

		if d.payload() == payload {
			return d, previous
		}

		previous = d
	}

	return nil, nil
}

// unlink removes d from the registry, given its predecessor (nil if d is
// the head).
func (r *registry) unlink(d, prev *descriptor) {
	if prev == nil {
		r.head = d.next

		return
	}

	prev.next = d.next
}

// sorted reports whether the registry is in strictly ascending address
// order, used by invariant tests.
func (r *registry) sorted() bool {
	for d := r.head; d != nil && d.next != nil; d = d.next {
		if uintptr(unsafe.Pointer(d)) >= uintptr(unsafe.Pointer(d.next)) {
			return false
		}
	}

	return true
}

// noAdjacentFree reports whether any two consecutive descriptors are
// both FREE, used by invariant tests.
func (r *registry) noAdjacentFree() bool {
	for d := r.head; d != nil && d.next != nil; d = d.next {
		if d.state == stateFree && d.next.state == stateFree {
			return false
		}
	}

	return true
}
