package allocator

import (
	"testing"
	"unsafe"
)

func newTestHeap() *Heap {
	return New(WithIntegrityChecks(true))
}

func writePattern(t *testing.T, p unsafe.Pointer, n uintptr, b byte) {
	t.Helper()

	s := unsafe.Slice((*byte)(p), n)
	for i := range s {
		s[i] = b
	}
}

func verifyPattern(t *testing.T, p unsafe.Pointer, n uintptr, b byte) {
	t.Helper()

	s := unsafe.Slice((*byte)(p), n)
	for i, v := range s {
		if v != b {
			t.Fatalf("byte %d: got %#x, want %#x", i, v, b)
		}
	}
}

func TestRegistryDescriptorLayout(t *testing.T) {
	if descriptorSize%Alignment != 0 {
		t.Fatalf("descriptorSize %d not aligned to %d", descriptorSize, Alignment)
	}

	d := &descriptor{size: 64, state: stateFree}
	if got := descriptorFromPayload(d.payload()); got != d {
		t.Fatalf("descriptorFromPayload(d.payload()) = %p, want %p", got, d)
	}
}

func TestSplitLeavesRemainderWhenLargeEnough(t *testing.T) {
	buf := make([]byte, 256)
	d := (*descriptor)(unsafe.Pointer(&buf[0]))
	d.size = 200
	d.state = stateHeapAllocated
	d.next = nil

	split(d, 64)

	if d.size != 64 {
		t.Fatalf("d.size = %d, want 64", d.size)
	}

	if d.next == nil {
		t.Fatal("expected a trailing FREE descriptor")
	}

	if d.next.state != stateFree {
		t.Fatalf("tail state = %v, want FREE", d.next.state)
	}

	wantTailSize := 200 - 64 - descriptorSize
	if d.next.size != wantTailSize {
		t.Fatalf("tail size = %d, want %d", d.next.size, wantTailSize)
	}
}

func TestSplitLeavesBlockIntactWhenRemainderTooSmall(t *testing.T) {
	buf := make([]byte, 256)
	d := (*descriptor)(unsafe.Pointer(&buf[0]))
	d.size = 64 + descriptorSize // remainder would be exactly descriptorSize, below descriptorSize+Alignment
	d.state = stateHeapAllocated
	originalSize := d.size

	split(d, 64)

	if d.next != nil {
		t.Fatal("expected no split when remainder is too small")
	}

	if d.size != originalSize {
		t.Fatalf("d.size = %d, want unchanged %d", d.size, originalSize)
	}
}

func TestCoalesceMergesAdjacentFreeBlocks(t *testing.T) {
	buf := make([]byte, 256)
	left := (*descriptor)(unsafe.Pointer(&buf[0]))
	left.size = 32
	left.state = stateFree

	right := (*descriptor)(unsafe.Pointer(&buf[descriptorSize+32]))
	right.size = 48
	right.state = stateFree
	left.next = right

	coalesce(left, right)

	if left.size != 32+48+descriptorSize {
		t.Fatalf("left.size = %d, want %d", left.size, 32+48+descriptorSize)
	}

	if left.next != nil {
		t.Fatal("left.next should be nil after absorbing right")
	}
}

func TestCoalesceSkipsNonAdjacentOrNonFreeBlocks(t *testing.T) {
	buf := make([]byte, 512)
	left := (*descriptor)(unsafe.Pointer(&buf[0]))
	left.size = 32
	left.state = stateFree

	notAdjacent := (*descriptor)(unsafe.Pointer(&buf[300]))
	notAdjacent.size = 16
	notAdjacent.state = stateFree

	coalesce(left, notAdjacent)

	if left.size != 32 {
		t.Fatal("coalesce must not merge non-adjacent descriptors")
	}

	allocatedNeighbor := (*descriptor)(unsafe.Pointer(&buf[descriptorSize+32]))
	allocatedNeighbor.size = 16
	allocatedNeighbor.state = stateHeapAllocated

	coalesce(left, allocatedNeighbor)

	if left.size != 32 {
		t.Fatal("coalesce must not merge a HEAP_ALLOCATED neighbor")
	}
}

// TestPreallocationScenario grounds spec scenario S1.
func TestPreallocationScenario(t *testing.T) {
	h := newTestHeap()

	p1 := h.Alloc(100)
	if p1 == nil {
		t.Fatal("alloc(100) returned nil")
	}

	if h.registry.head == nil || h.registry.head.next == nil {
		t.Fatal("expected exactly two descriptors after preallocation")
	}

	if h.registry.head.next.next != nil {
		t.Fatal("expected exactly two descriptors after preallocation")
	}

	first := h.registry.head
	if first.state != stateHeapAllocated {
		t.Fatalf("first descriptor state = %v, want HEAP_ALLOCATED", first.state)
	}

	if first.size != 104 {
		t.Fatalf("first descriptor size = %d, want 104", first.size)
	}

	second := first.next
	if second.state != stateFree {
		t.Fatalf("second descriptor state = %v, want FREE", second.state)
	}

	wantRemainder := uintptr(PreallocSize) - descriptorSize - 104 - descriptorSize
	if second.size != wantRemainder {
		t.Fatalf("remainder size = %d, want %d", second.size, wantRemainder)
	}
}

// TestBestFitReuseScenario grounds spec scenario S2.
func TestBestFitReuseScenario(t *testing.T) {
	h := newTestHeap()

	p1 := h.Alloc(200)
	_ = h.Alloc(100)
	h.Release(p1)
	p3 := h.Alloc(150)

	if p3 != p1 {
		t.Fatalf("p3 = %p, want reuse of p1 = %p", p3, p1)
	}
}

// TestCoalesceScenario grounds spec scenario S3.
func TestCoalesceScenario(t *testing.T) {
	h := newTestHeap()

	p1 := h.Alloc(100)
	p2 := h.Alloc(100)
	p3 := h.Alloc(100)

	h.Release(p1)
	h.Release(p3)
	h.Release(p2)

	freeCount := 0
	allocatedCount := 0

	for d := h.registry.head; d != nil; d = d.next {
		switch d.state {
		case stateFree:
			freeCount++
		case stateHeapAllocated:
			allocatedCount++
		}
	}

	if allocatedCount != 0 {
		t.Fatalf("allocatedCount = %d, want 0", allocatedCount)
	}

	if freeCount != 1 {
		t.Fatalf("freeCount = %d, want 1 (three FREE blocks must merge into one)", freeCount)
	}
}

// TestMmapPathScenario grounds spec scenario S4.
func TestMmapPathScenario(t *testing.T) {
	h := newTestHeap()

	p := h.Alloc(200000)
	if p == nil {
		t.Fatal("alloc(200000) returned nil")
	}

	d, _ := h.registry.findByPayload(p)
	if d == nil || d.state != stateMapped {
		t.Fatal("expected a MAPPED descriptor for a >=threshold allocation")
	}

	h.Release(p)

	if d, _ := h.registry.findByPayload(p); d != nil {
		t.Fatal("released MAPPED descriptor must disappear from the registry")
	}
}

// TestReleaseMappedHeadSetsHeadToSuccessor grounds spec §9's corrected
// head-release behavior.
func TestReleaseMappedHeadSetsHeadToSuccessor(t *testing.T) {
	h := newTestHeap()

	pMapped := h.Alloc(200000)
	pSecond := h.Alloc(200000)

	if h.registry.head.payload() != pMapped {
		t.Fatal("expected the first mapped allocation to be the registry head")
	}

	h.Release(pMapped)

	if h.registry.head == nil {
		t.Fatal("head must not become nil when a successor exists")
	}

	if h.registry.head.payload() != pSecond {
		t.Fatal("head must become the released block's successor")
	}
}

// TestTailExtensionResizeScenario grounds spec scenario S5.
func TestTailExtensionResizeScenario(t *testing.T) {
	h := newTestHeap()

	p1 := h.Alloc(50)
	writePattern(t, p1, 50, 0xAB)

	p2 := h.Resize(p1, 5000)
	if p2 != p1 {
		t.Fatalf("p2 = %p, want in-place tail growth at p1 = %p", p2, p1)
	}

	verifyPattern(t, p2, 50, 0xAB)
}

// TestOverflowGuardScenario grounds spec scenario S6.
func TestOverflowGuardScenario(t *testing.T) {
	h := newTestHeap()

	const maxUintptr = ^uintptr(0)

	if p := h.ZeroedAlloc(maxUintptr, 2); p != nil {
		t.Fatal("zeroed_alloc with an overflowing n*size must return none")
	}

	if h.registry.head != nil {
		t.Fatal("overflow guard must not touch the registry or invoke any syscall")
	}
}

func TestAllocZeroSizeReturnsNil(t *testing.T) {
	h := newTestHeap()

	if p := h.Alloc(0); p != nil {
		t.Fatal("alloc(0) must return none")
	}
}

func TestZeroedAllocZeroesExactRequestedBytes(t *testing.T) {
	h := newTestHeap()

	p := h.ZeroedAlloc(10, 7)
	if p == nil {
		t.Fatal("zeroed_alloc(10, 7) returned nil")
	}

	verifyPattern(t, p, 70, 0x00)
}

func TestResizeToZeroReleases(t *testing.T) {
	h := newTestHeap()

	p := h.Alloc(64)

	if got := h.Resize(p, 0); got != nil {
		t.Fatal("resize(p, 0) must return none")
	}

	if d, _ := h.registry.findByPayload(p); d != nil && d.state != stateFree {
		t.Fatal("resize(p, 0) must release the block")
	}
}

func TestResizeNilPayloadBehavesLikeAlloc(t *testing.T) {
	h := newTestHeap()

	p := h.Resize(nil, 32)
	if p == nil {
		t.Fatal("resize(nil, size) must behave like alloc(size)")
	}
}

func TestReleaseUnknownPointerIsNoOp(t *testing.T) {
	h := newTestHeap()

	junk := make([]byte, 64)
	h.Release(unsafe.Pointer(&junk[descriptorSize]))
}

func TestReleaseNilIsNoOp(t *testing.T) {
	h := newTestHeap()
	h.Release(nil)
}

func TestDoubleReleaseIsNoOp(t *testing.T) {
	h := newTestHeap()

	p := h.Alloc(64)
	h.Release(p)
	h.Release(p)
}

func TestRegistryInvariantsHoldAcrossWorkload(t *testing.T) {
	h := newTestHeap()

	var live []unsafe.Pointer

	for i := 0; i < 64; i++ {
		switch i % 3 {
		case 0:
			live = append(live, h.Alloc(uintptr(16*(i+1))))
		case 1:
			if len(live) > 0 {
				h.Release(live[0])
				live = live[1:]
			}
		case 2:
			live = append(live, h.ZeroedAlloc(2, uintptr(8*(i+1))))
		}

		if !h.registry.sorted() {
			t.Fatalf("iteration %d: registry is not in ascending address order", i)
		}

		if !h.registry.noAdjacentFree() {
			t.Fatalf("iteration %d: two adjacent FREE descriptors were not coalesced", i)
		}
	}
}

// TestCheckpointDetectsBystanderMutation proves the integrity guard
// wired into Release/Resize/allocBlock can actually detect the bug
// class it exists for: a mutation reaching a descriptor that was not
// named as a participant. It exercises fingerprintOf/checkpoint
// directly rather than through verifyUnchanged, since a real mismatch
// there calls os.Exit via fatalf.
func TestCheckpointDetectsBystanderMutation(t *testing.T) {
	h := newTestHeap()

	p1 := h.Alloc(64)
	p2 := h.Alloc(64)

	d1, _ := h.registry.findByPayload(p1)
	d2, _ := h.registry.findByPayload(p2)

	// d2 is the only intended participant; d1 is a bystander.
	checkpoint := h.checkpoint(d2)

	if fingerprintOf(checkpoint.bystanders) != checkpoint.sum {
		t.Fatal("checkpoint's own fingerprint must match immediately after capture")
	}

	// Simulate a bug that reaches past its intended scope and corrupts
	// the bystander's size.
	d1.size += 8

	if fingerprintOf(checkpoint.bystanders) == checkpoint.sum {
		t.Fatal("fingerprintOf must change when a bystander descriptor is mutated")
	}

	d1.size -= 8 // restore, in case this heap is reused by later assertions

	if fingerprintOf(checkpoint.bystanders) != checkpoint.sum {
		t.Fatal("fingerprintOf must match again once the bystander is restored")
	}
}

// TestCheckpointIgnoresTouchedParticipants ensures legitimate mutations
// to the named participants never trip the guard, matching how every
// wired call site in heap.go/placement.go uses it.
func TestCheckpointIgnoresTouchedParticipants(t *testing.T) {
	h := newTestHeap()

	p := h.Alloc(64)
	d, _ := h.registry.findByPayload(p)

	checkpoint := h.checkpoint(d)
	d.size += 8 // d is a named participant, not a bystander

	if fingerprintOf(checkpoint.bystanders) != checkpoint.sum {
		t.Fatal("mutating a named participant must not affect the bystander fingerprint")
	}
}

// TestIntegrityChecksDisabledIsZeroCost confirms checkpoint/verifyUnchanged
// are no-ops when EnableIntegrityChecks is off, matching Config's
// documented default.
func TestIntegrityChecksDisabledIsZeroCost(t *testing.T) {
	h := New() // integrity checks off by default

	p := h.Alloc(64)
	d, _ := h.registry.findByPayload(p)

	checkpoint := h.checkpoint(d)
	if checkpoint.bystanders != nil || checkpoint.sum != 0 {
		t.Fatal("checkpoint must be a zero-value no-op when integrity checks are disabled")
	}

	h.verifyUnchanged(checkpoint) // must not fatal regardless of registry state
}
