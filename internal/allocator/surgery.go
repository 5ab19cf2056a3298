package allocator

import "unsafe"

// split carves a FREE remainder off d when d is larger than the
// requested size S. d must already be aligned-size S or larger and in
// state HEAP_ALLOCATED (or freshly produced, about to be marked so). If
// the remainder (d.size - S - descriptorSize) is at least one alignment
// unit, a new FREE descriptor is created at payload(d)+S, linked as
// d.next, and d.size is set to S. Otherwise d is left intact and the
// extra bytes become accepted internal fragmentation.
func split(d *descriptor, size uintptr) {
	if d.size < size {
		return
	}

	remainder := d.size - size
	if remainder < descriptorSize+Alignment {
		return
	}

	remainderSize := remainder - descriptorSize

	tail := (*descriptor)(unsafe.Pointer(uintptr(d.payload()) + size))
	tail.size = remainderSize
	tail.state = stateFree
	tail.next = d.next

	d.size = size
	d.next = tail
}

// coalesce absorbs right into left when both are FREE and right
// immediately follows left in memory. It is a no-op in every other case,
// including right == nil.
func coalesce(left, right *descriptor) {
	if left == nil || right == nil {
		return
	}

	if left.state != stateFree || right.state != stateFree {
		return
	}

	if left.end() != uintptr(unsafe.Pointer(right)) {
		return
	}

	left.size += right.size + descriptorSize
	left.next = right.next
}
