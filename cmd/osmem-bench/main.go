// Command osmem-bench drives a synthetic allocation workload against the
// allocator and reports basic throughput and outstanding-byte figures.
// It exercises both backends by mixing small heap-extend-sized requests
// with occasional anon-map-sized ones, the same shape the teacher
// package's pool allocator used for its own size-classed benchmarking.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/orizon-lang/osmem/internal/allocator"
	"github.com/orizon-lang/osmem/internal/cli"
)

// uintptrOf and pointerOf round-trip a raw allocator payload address
// through uintptr for storage in the live-set map. This is safe only
// because allocator payloads are backed by syscall memory (brk/mmap),
// never by the Go-managed heap, so nothing relocates them between the
// two calls.
func uintptrOf(p unsafe.Pointer) uintptr { return uintptr(p) }
func pointerOf(a uintptr) unsafe.Pointer { return unsafe.Pointer(a) } //nolint:govet

func main() {
	var (
		showVersion bool
		jsonOutput  bool
		iterations  int
		liveSet     int
		largeEvery  int
		debugLog    bool
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&jsonOutput, "json", false, "output version in JSON format")
	flag.IntVar(&iterations, "iterations", 200000, "number of alloc/release cycles to run")
	flag.IntVar(&liveSet, "live-set", 4096, "number of outstanding allocations kept alive at once")
	flag.IntVar(&largeEvery, "large-every", 500, "emit one mmap-threshold-sized allocation every N iterations (0 disables)")
	flag.BoolVar(&debugLog, "debug", false, "enable allocator debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "osmem-bench drives a mixed alloc/release workload and reports throughput.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		cli.PrintVersion("osmem-bench", jsonOutput)

		return
	}

	logger := cli.NewLogger(true)

	var opts []allocator.Option
	if debugLog {
		opts = append(opts, allocator.WithDebugLog(true), allocator.WithLogger(allocator.NewLogger(true, debugLog)))
	}

	h := allocator.New(opts...)

	live := make([]uintptr, 0, liveSet)
	ptrs := make(map[uintptr]uintptr) // address -> size, kept for final accounting only

	start := time.Now()

	for i := 0; i < iterations; i++ {
		size := uintptr(16 + (i % 512))
		if largeEvery > 0 && i%largeEvery == 0 {
			size = allocator.MmapThreshold + uintptr(i%4096)
		}

		p := h.Alloc(size)
		if p == nil {
			logger.Error("allocation %d of size %d failed", i, size)

			continue
		}

		addr := uintptrOf(p)
		ptrs[addr] = size
		live = append(live, addr)

		if len(live) > liveSet {
			victimIdx := i % len(live)
			victim := live[victimIdx]
			h.Release(pointerOf(victim))
			delete(ptrs, victim)

			live[victimIdx] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	elapsed := time.Since(start)

	for _, addr := range live {
		h.Release(pointerOf(addr))
	}

	fmt.Printf("osmem-bench: %d iterations in %s (%.0f ops/sec), %d bytes outstanding before drain\n",
		iterations, elapsed, float64(iterations)/elapsed.Seconds(), sumSizes(ptrs))
}

func sumSizes(m map[uintptr]uintptr) uintptr {
	var total uintptr
	for _, s := range m {
		total += s
	}

	return total
}
