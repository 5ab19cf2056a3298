package allocator

// allocKind distinguishes the two allocation-size thresholds described in
// §3: general allocations compare against MmapThreshold, zeroed
// allocations compare against the kernel page size (zero-filled anon-map
// pages are free from the kernel).
type allocKind int

const (
	allocGeneral allocKind = iota
	allocZeroed
)

// threshold returns THRESH(K) for the given allocation kind.
func (h *Heap) threshold(kind allocKind) uintptr {
	if kind == allocZeroed {
		return h.pageSize
	}

	return MmapThreshold
}

// bestFit returns the FREE descriptor whose size is >= size and minimal
// among such, breaking ties by lowest address (first encountered in
// traversal order, since the registry is kept in ascending address
// order). MAPPED and HEAP_ALLOCATED descriptors are skipped. Returns nil
// if no FREE descriptor is large enough.
func bestFit(r *registry, size uintptr) *descriptor {
	var best *descriptor

	for d := r.head; d != nil; d = d.next {
		if d.state != stateFree {
			continue
		}

		if d.size < size {
			continue
		}

		if best == nil || d.size < best.size {
			best = d
		}
	}

	return best
}

// place obtains a descriptor satisfying payload size S under allocation
// kind K, per §4.1. The returned descriptor's state is already set and
// its payload is ready to hand out; place never runs the best-fit
// search itself (the caller does that first for the non-empty,
// non-mmap-threshold case) — place implements the two syscall-backed
// paths: anon-map, and heap-extend (preallocation or grow).
func (h *Heap) place(size uintptr, kind allocKind) *descriptor {
	if size+descriptorSize >= h.threshold(kind) {
		return h.placeMapped(size)
	}

	return h.placeHeapExtend(size)
}

// placeMapped satisfies size via anon-map.
func (h *Heap) placeMapped(size uintptr) *descriptor {
	addr, err := h.kernel.AnonMap(size + descriptorSize)
	if err != nil {
		h.fatalf("anon-map", err)
	}

	d := (*descriptor)(addr)
	d.size = size
	d.state = stateMapped
	d.next = nil

	h.registry.append(d)
	h.logf("anon-map: mapped %d bytes (payload %d) at %p", size+descriptorSize, size, addr)

	return d
}

// placeHeapExtend satisfies size via heap-extend, either by
// preallocating the arena (first call) or by extending it at the tail
// (subsequent calls, after a failed best-fit search).
func (h *Heap) placeHeapExtend(size uintptr) *descriptor {
	if !h.registry.heapArenaInitialized() {
		return h.preallocate(size)
	}

	last := h.registry.lastHeapDescriptor()

	if last != nil && last.state == stateFree {
		checkpoint := h.checkpoint(last)

		grow := size - last.size
		if _, err := h.kernel.HeapExtend(grow); err != nil {
			h.fatalf("heap-extend", err)
		}

		last.state = stateHeapAllocated
		last.size = size
		h.verifyUnchanged(checkpoint)
		h.logf("heap-extend: grew trailing free block by %d bytes to satisfy %d", grow, size)

		return last
	}

	addr, err := h.kernel.HeapExtend(size + descriptorSize)
	if err != nil {
		h.fatalf("heap-extend", err)
	}

	d := (*descriptor)(addr)
	d.size = size
	d.state = stateHeapAllocated
	d.next = nil

	h.registry.append(d)
	h.logf("heap-extend: new tail block of %d bytes (payload %d)", size+descriptorSize, size)

	return d
}

// preallocate performs the first heap-extend-backed request: one
// PreallocSize syscall, producing a single HEAP_ALLOCATED descriptor
// that is immediately split for size.
func (h *Heap) preallocate(size uintptr) *descriptor {
	addr, err := h.kernel.HeapExtend(PreallocSize)
	if err != nil {
		h.fatalf("heap-extend", err)
	}

	d := (*descriptor)(addr)
	d.size = PreallocSize - descriptorSize
	d.state = stateHeapAllocated
	d.next = nil

	split(d, size)
	h.registry.append(d)
	h.logf("heap-extend: preallocated %d bytes, split for payload %d", uintptr(PreallocSize), size)

	return d
}
