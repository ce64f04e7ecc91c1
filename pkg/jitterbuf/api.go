package jitterbuf

// OutputSink is the borrowed capability invoked once per consumer tick
// that produces a frame (real or silence). It runs on the consumer
// goroutine, outside the buffer's mutex, and must not call back into the
// Buffer that invoked it.
type OutputSink func(data []byte)

// Stats is a point-in-time snapshot of the buffer's lifetime counters,
// useful for tests and operational dashboards. It is not part of any
// invariant and carries no synchronization guarantee beyond having been
// read under the buffer's mutex at some instant.
type Stats struct {
	TotalWritten  uint64
	TotalRead     uint64
	OverrunBytes  uint64
	OverrunCount  uint64
	UnderrunCount uint64
	DataSize      int
	State         State
}
