// Package allocator implements a dual-backend dynamic memory allocator for
// a single-threaded process. It arbitrates between a heap-extend primitive
// (sbrk-style program-break growth) and an anon-map primitive (mmap-style
// anonymous private mapping), selecting between them by a size threshold,
// recycling freed heap-extend regions via coalescing and best-fit
// placement, and returning anon-map regions directly back to the kernel
// on release.
package allocator

import "unsafe"

// Compile-time parameters. These are fixed by design, not configurable at
// runtime: the placement algorithm's invariants (in particular "only one
// heap-extend arena exists") depend on them staying constant for the
// lifetime of a Heap.
const (
	// Alignment is the unit every descriptor and payload size is rounded
	// up to.
	Alignment = 8

	// MmapThreshold is the payload+descriptor size, in bytes, at or above
	// which a general allocation is satisfied by anon-map instead of
	// heap-extend.
	MmapThreshold = 128 * 1024

	// PreallocSize is the size of the first heap-extend syscall, carved
	// for subsequent small allocations.
	PreallocSize = 128 * 1024
)

// Config holds the ambient, non-algorithmic knobs a Heap accepts. None of
// these fields change placement, split, or coalesce behavior; they toggle
// development-time diagnostics that sit beside the hot path.
type Config struct {
	// EnableDebugLog turns on diagnostic logging for allocator events
	// that are not already covered by the mandatory fatal-exit path
	// (§7): heap-extend preallocation, arena extension, and anon-map
	// mappings and releases.
	EnableDebugLog bool

	// EnableOwnerGuard turns on the single-mutator tripwire (guard.go).
	// Off by default; it exists to catch accidental concurrent use
	// during development, not to make concurrent use well-defined.
	EnableOwnerGuard bool

	// EnableIntegrityChecks turns on the registry fingerprint
	// (guard.go), taken around the best-fit reuse, grow-last-free,
	// release and in-place resize steps in placement.go and heap.go
	// (preallocation's split is not covered), that asserts the descriptors NOT named
	// as participants in that mutation still have their original
	// address, size and state afterward — catching a placement or
	// surgery bug that reached past the descriptors it was meant to
	// touch.
	EnableIntegrityChecks bool

	// Logger receives diagnostic output. A nil Logger falls back to a
	// quiet default that only ever writes the mandatory fatal message.
	Logger *Logger
}

// Option configures a Config, following the teacher package's functional
// options idiom.
type Option func(*Config)

// WithDebugLog enables diagnostic logging of allocator-internal events.
func WithDebugLog(enabled bool) Option {
	return func(c *Config) { c.EnableDebugLog = enabled }
}

// WithOwnerGuard enables the single-mutator tripwire.
func WithOwnerGuard(enabled bool) Option {
	return func(c *Config) { c.EnableOwnerGuard = enabled }
}

// WithIntegrityChecks enables the registry fingerprint guard.
func WithIntegrityChecks(enabled bool) Option {
	return func(c *Config) { c.EnableIntegrityChecks = enabled }
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig() *Config {
	return &Config{
		EnableDebugLog:        false,
		EnableOwnerGuard:      false,
		EnableIntegrityChecks: false,
		Logger:                NewLogger(false, false),
	}
}

// alignUp rounds size up to the nearest multiple of alignment, which must
// be a power of two.
func alignUp(size, alignment uintptr) uintptr {
	return (size + alignment - 1) &^ (alignment - 1)
}

// copyMemory copies size bytes from src to dst via raw pointers.
func copyMemory(dst, src unsafe.Pointer, size uintptr) {
	dstSlice := unsafe.Slice((*byte)(dst), size)
	srcSlice := unsafe.Slice((*byte)(src), size)
	copy(dstSlice, srcSlice)
}

// zeroMemory zeroes size bytes starting at ptr.
func zeroMemory(ptr unsafe.Pointer, size uintptr) {
	s := unsafe.Slice((*byte)(ptr), size)
	for i := range s {
		s[i] = 0
	}
}
