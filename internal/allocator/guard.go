package allocator

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/dolthub/maphash"
	"github.com/timandy/routine"
)

// checkOwner implements the opt-in single-mutator tripwire described in
// SPEC_FULL.md §5. It is a development-time safety net, not a
// correctness guarantee: the allocator's contract is still "behavior
// under concurrent entry is undefined" (spec §5). When enabled, the
// first goroutine to call into the Heap is recorded via
// github.com/timandy/routine's goroutine-id lookup; any later call from
// a different goroutine is treated as a misuse and reaches the same
// fatal-exit path a kernel-primitive failure would.
func (h *Heap) checkOwner() {
	if !h.config.EnableOwnerGuard {
		return
	}

	id := routine.Goid()

	if !h.ownerSet {
		h.owner = id
		h.ownerSet = true

		return
	}

	if h.owner != id {
		h.fatalf("owner-guard", fmt.Errorf("allocator entered from goroutine %d, owned by goroutine %d", id, h.owner))
	}
}

// registryHasher computes a fingerprint over a set of descriptors'
// visible shape (address, size, state) so the opt-in integrity guard can
// assert a placement/surgery step left every descriptor it did not name
// as a participant exactly as it was.
var registryHasher = maphash.NewHasher[string]()

// fingerprintOf hashes the (address, size, state) triple of each given
// descriptor, skipping nils. next pointers are deliberately excluded:
// every operation legitimately relinks neighbors, so only a bystander's
// own size/state identifies corruption.
func fingerprintOf(ds []*descriptor) uint64 {
	var b strings.Builder

	for _, d := range ds {
		if d == nil {
			continue
		}

		b.WriteString(strconv.FormatUint(uint64(uintptr(unsafe.Pointer(d))), 16))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(d.size), 10))
		b.WriteByte(':')
		b.WriteString(d.state.String())
		b.WriteByte(';')
	}

	return registryHasher.Hash(b.String())
}

// integrityCheckpoint captures a fingerprint of every descriptor NOT
// named as a participant in the mutation about to happen, so the
// caller can assert afterward that none of them were disturbed as a
// side effect.
type integrityCheckpoint struct {
	bystanders []*descriptor
	sum        uint64
}

// checkpoint records the current (address, size, state) of every
// descriptor in the registry except those in touched (the descriptors
// the caller is about to mutate by design — e.g. the block a split
// carves, or the neighbor a coalesce absorbs). It is a no-op, returning
// a zero-value checkpoint, when integrity checks are disabled.
func (h *Heap) checkpoint(touched ...*descriptor) integrityCheckpoint {
	if !h.config.EnableIntegrityChecks {
		return integrityCheckpoint{}
	}

	excluded := make(map[*descriptor]bool, len(touched))
	for _, d := range touched {
		if d != nil {
			excluded[d] = true
		}
	}

	var bystanders []*descriptor

	for d := h.registry.head; d != nil; d = d.next {
		if !excluded[d] {
			bystanders = append(bystanders, d)
		}
	}

	return integrityCheckpoint{bystanders: bystanders, sum: fingerprintOf(bystanders)}
}

// verifyUnchanged re-reads every bystander descriptor captured in c and
// fatals if any of them no longer matches its recorded (address, size,
// state) — catching a placement/surgery bug that reached past the
// descriptors it was meant to touch. It is a no-op when integrity
// checks are disabled.
func (h *Heap) verifyUnchanged(c integrityCheckpoint) {
	if !h.config.EnableIntegrityChecks {
		return
	}

	if fingerprintOf(c.bystanders) != c.sum {
		h.fatalf("integrity-guard", fmt.Errorf("registry mutated a descriptor outside the current operation's scope"))
	}
}
