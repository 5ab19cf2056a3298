package allocator

import "unsafe"

// Heap is a single dual-backend allocator instance. Nothing in this
// package requires a single global Heap — §3's "process-wide registry"
// is modeled as the registry field of whichever Heap the caller is
// using — but the package-level convenience functions in api.go operate
// on one default instance, matching how a C process has exactly one
// malloc arena.
type Heap struct {
	registry registry
	kernel   kernelOps
	pageSize uintptr
	config   *Config

	owner    int64
	ownerSet bool
}

// New creates a Heap. Its registry starts empty; the heap-extend arena
// is not touched until the first allocation that needs it (§9: "lazy on
// first alloc").
func New(options ...Option) *Heap {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	k := newKernel()

	return &Heap{
		kernel:   k,
		pageSize: k.PageSize(),
		config:   config,
	}
}

// allocBlock implements the shared shape of §4.1-§4.2 for both
// allocation kinds: empty-registry preallocation, mmap-threshold
// classification, best-fit reuse, or delegation to the placement
// engine's grow path.
func (h *Heap) allocBlock(size uintptr, kind allocKind) *descriptor {
	if h.registry.head == nil {
		return h.place(size, kind)
	}

	if size+descriptorSize >= h.threshold(kind) {
		return h.placeMapped(size)
	}

	if d := bestFit(&h.registry, size); d != nil {
		checkpoint := h.checkpoint(d)
		d.state = stateHeapAllocated
		split(d, size)
		h.verifyUnchanged(checkpoint)

		return d
	}

	return h.placeHeapExtend(size)
}

// Alloc implements spec §4.4's alloc operation.
func (h *Heap) Alloc(size uintptr) unsafe.Pointer {
	h.checkOwner()

	if size == 0 {
		return nil
	}

	s := alignUp(size, Alignment)

	return h.allocBlock(s, allocGeneral).payload()
}

// ZeroedAlloc implements spec §4.4's zeroed_alloc operation: overflow
// detection on n*size, the page-size threshold instead of
// MmapThreshold, and explicit zeroing of exactly the unaligned
// n*size bytes the caller asked for.
func (h *Heap) ZeroedAlloc(n, size uintptr) unsafe.Pointer {
	h.checkOwner()

	if n == 0 || size == 0 {
		return nil
	}

	total := n * size
	if total/n != size {
		return nil // overflow
	}

	s := alignUp(total, Alignment)
	d := h.allocBlock(s, allocZeroed)
	p := d.payload()

	zeroMemory(p, total)

	return p
}

// Release implements spec §4.4's release operation.
func (h *Heap) Release(payload unsafe.Pointer) {
	h.checkOwner()

	if payload == nil {
		return
	}

	d, prev := h.registry.findByPayload(payload)
	if d == nil {
		return
	}

	switch d.state {
	case stateFree:
		return
	case stateHeapAllocated:
		checkpoint := h.checkpoint(d, d.next, prev)
		d.state = stateFree
		coalesce(d, d.next)
		coalesce(prev, d)
		h.verifyUnchanged(checkpoint)
	case stateMapped:
		checkpoint := h.checkpoint(d, prev)
		h.registry.unlink(d, prev)

		length := d.size + descriptorSize
		if err := h.kernel.Unmap(unsafe.Pointer(d), length); err != nil {
			h.fatalf("munmap", err)
		}

		h.verifyUnchanged(checkpoint)
		h.logf("munmap: released %d bytes", length)
	}
}

// Resize implements spec §4.4's resize operation.
func (h *Heap) Resize(payload unsafe.Pointer, size uintptr) unsafe.Pointer {
	h.checkOwner()

	if size == 0 {
		h.Release(payload)

		return nil
	}

	if payload == nil {
		return h.Alloc(size)
	}

	d, _ := h.registry.findByPayload(payload)
	if d == nil || d.state == stateFree {
		return nil
	}

	newSize := alignUp(size, Alignment)

	if d.state == stateMapped {
		newPayload := h.Alloc(size)
		if newPayload == nil {
			return nil
		}

		minSize := d.size
		if newSize < minSize {
			minSize = newSize
		}

		copyMemory(newPayload, payload, minSize)
		h.Release(payload)

		return newPayload
	}

	// d.state == stateHeapAllocated from here on.
	if newSize <= d.size {
		checkpoint := h.checkpoint(d)
		split(d, newSize)
		h.verifyUnchanged(checkpoint)

		return d.payload()
	}

	if d.next != nil && d.next.state == stateFree && d.size+d.next.size+descriptorSize >= newSize {
		checkpoint := h.checkpoint(d, d.next)
		d.size += d.next.size + descriptorSize
		d.next = d.next.next
		split(d, newSize)
		h.verifyUnchanged(checkpoint)

		return d.payload()
	}

	oldSize := d.size
	isLast := d.next == nil || d.next.state == stateMapped

	if isLast {
		d.state = stateFree
	}

	newPayload := h.Alloc(size)
	if newPayload == nil {
		return nil
	}

	minSize := oldSize
	if newSize < minSize {
		minSize = newSize
	}

	if newPayload != payload {
		copyMemory(newPayload, payload, minSize)
		h.Release(payload)
	}

	return newPayload
}
