package allocator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Logger provides the structured diagnostic output used by the fatal-exit
// path (§7) and, when enabled, by the debug trace of allocator-internal
// events. It follows the same timestamped-line shape as the teacher
// package's CLI logger.
type Logger struct {
	debug bool
}

// NewLogger creates a Logger. debug controls whether Debugf lines are
// emitted; fatal diagnostics are always emitted regardless.
func NewLogger(debug, _ bool) *Logger {
	return &Logger{debug: debug}
}

// Debugf writes a debug-level line if debug logging is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil || !l.debug {
		return
	}

	fmt.Fprintf(os.Stderr, "[DEBUG] %s: %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

// Fatalf writes the mandatory diagnostic line identifying the call site
// and error, per §7's "print a diagnostic identifying the call site,
// then terminate the process with the system error code" policy.
func (l *Logger) Fatalf(callsite string, err error) {
	fmt.Fprintf(os.Stderr, "[FATAL] %s: %s: %v\n", time.Now().Format("15:04:05.000"), callsite, err)
}

// logf routes a debug trace line through the Heap's configured logger.
func (h *Heap) logf(format string, args ...interface{}) {
	if !h.config.EnableDebugLog {
		return
	}

	h.config.Logger.Debugf(format, args...)
}

// fatalf implements §7's syscall-failure policy: print a diagnostic
// identifying the call site, then terminate the process with the
// system error code. Besides kernel primitive failures, only the opt-in
// owner and integrity guards (guard.go) reach this path, and they exit
// with code 1 — invalid arguments and unknown pointers are handled by
// returning none/no-op, never by aborting.
func (h *Heap) fatalf(callsite string, err error) {
	h.config.Logger.Fatalf(callsite, err)

	code := 1

	var errno unix.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}

	os.Exit(code)
}
