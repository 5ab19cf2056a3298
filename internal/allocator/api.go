package allocator

import "unsafe"

// defaultHeap is the package-level instance backing the OsMalloc family,
// mirroring a C process's single malloc arena. It is created lazily so
// that importing this package never touches the kernel.
var defaultHeap *Heap

func ensureDefaultHeap() *Heap {
	if defaultHeap == nil {
		defaultHeap = New()
	}

	return defaultHeap
}

// Configure replaces the package-level default Heap with a new Heap built
// from options. The new Heap starts with an empty registry: allocations
// made through the previous default Heap are unknown to it, so OsFree
// ignores them and OsRealloc returns nil for them. It exists for callers
// (the cmd/ tools in this module, primarily) that want debug logging or
// the opt-in guards turned on without constructing their own Heap.
func Configure(options ...Option) {
	defaultHeap = New(options...)
}

// OsMalloc allocates size bytes from the package-level default Heap.
func OsMalloc(size uintptr) unsafe.Pointer {
	return ensureDefaultHeap().Alloc(size)
}

// OsCalloc allocates and zeroes n*size bytes from the package-level
// default Heap.
func OsCalloc(n, size uintptr) unsafe.Pointer {
	return ensureDefaultHeap().ZeroedAlloc(n, size)
}

// OsRealloc resizes a previous OsMalloc/OsCalloc/OsRealloc allocation to
// size bytes.
func OsRealloc(payload unsafe.Pointer, size uintptr) unsafe.Pointer {
	return ensureDefaultHeap().Resize(payload, size)
}

// OsFree releases a previous OsMalloc/OsCalloc/OsRealloc allocation.
func OsFree(payload unsafe.Pointer) {
	ensureDefaultHeap().Release(payload)
}
