package jitterbuf

import "errors"

// Error kinds returned by the public API. They are coarse-grained by
// design: the buffer's contract is best-effort smoothing, so anything
// recoverable (overrun, malformed frame) is handled locally and never
// surfaces as one of these.
var (
	// ErrInvalidArgument is returned by New for a zero frame interval or a
	// LowWater above HighWater.
	ErrInvalidArgument = errors.New("jitterbuf: invalid argument")

	// ErrTimeout is returned when a mutex acquisition exceeds its bound.
	// The caller may retry. An ACK wait that times out is logged, not
	// returned.
	ErrTimeout = errors.New("jitterbuf: timeout")

	// ErrOutOfMemory is kept for taxonomy parity with the original API
	// this module was ported from; Go's allocator does not hand back a
	// recoverable out-of-memory condition, so this implementation never
	// returns it.
	ErrOutOfMemory = errors.New("jitterbuf: out of memory")

	// ErrClosed is returned by operations attempted after Destroy.
	ErrClosed = errors.New("jitterbuf: buffer destroyed")
)
