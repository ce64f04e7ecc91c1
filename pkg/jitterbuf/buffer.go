package jitterbuf

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shootao/jitter-buffer/internal/diagnostics"
)

const (
	// writeReadTimeout bounds mutex acquisition on the hot Write/read
	// path, matching the original's 50ms xSemaphoreTake.
	writeReadTimeout = 50 * time.Millisecond

	// resetTimeout bounds mutex acquisition for Reset, matching the
	// original's 500ms xSemaphoreTake.
	resetTimeout = 500 * time.Millisecond

	// diagnosticsCapacity bounds the retained overrun/underrun history.
	diagnosticsCapacity = 256
)

// Buffer is a jitter buffer instance: a ring, a framer, a state machine,
// and the single consumer goroutine that drains frames to Config.OnOutputData
// on a fixed cadence. The zero value is not usable; construct with New.
type Buffer struct {
	cfg    Config
	log    zerolog.Logger
	mu     *mutex
	ring   *ring
	framer framer
	state  State

	scratch []byte
	diag    *diagnostics.Ledger

	worker *consumer
	closed atomic.Bool
}

// New allocates a Buffer, its ring, its scratch buffer, and its worker
// goroutine, and returns it in the IDLE state. It returns
// ErrInvalidArgument if the configuration cannot be run (a zero frame
// interval, or low_water > high_water).
func New(cfg Config) (*Buffer, error) {
	effectiveSize, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	b := &Buffer{
		cfg:     cfg,
		log:     cfg.Logger,
		mu:      newMutex(),
		ring:    newRing(effectiveSize),
		state:   StateIdle,
		scratch: make([]byte, cfg.FrameSize),
		diag:    diagnostics.New(diagnosticsCapacity),
	}
	if cfg.WithHeader {
		b.framer = headerFramer{maxPayload: int(cfg.FrameSize), ringCap: int(effectiveSize)}
	} else {
		b.framer = fixedFramer{frameSize: int(cfg.FrameSize)}
	}

	b.log.Info().
		Uint32("buffer_size", effectiveSize).
		Uint32("frame_size", cfg.FrameSize).
		Uint32("frame_interval_ms", cfg.FrameInterval).
		Bool("with_header", cfg.WithHeader).
		Msg("jitterbuf: created")

	b.worker = newConsumer(b)
	go b.worker.run()

	return b, nil
}

// Start transitions IDLE (or any state) to BUFFERING, wakes the consumer,
// and waits for its acknowledgement. Calling Start repeatedly is
// idempotent: every call re-ACKs, but only the first emits a BUFFERING
// event.
func (b *Buffer) Start() error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.mu.lock(writeReadTimeout) {
		return ErrTimeout
	}
	changed := b.state != StateBuffering
	b.state = StateBuffering
	b.mu.unlock()

	if changed {
		b.postEvent(EventBuffering)
	}

	b.worker.signalAndWaitAck(signalStart)
	b.log.Info().Msg("jitterbuf: start")
	return nil
}

// Stop returns the consumer to its outer wait and moves the state to
// IDLE. No event is emitted.
func (b *Buffer) Stop() error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.mu.lock(writeReadTimeout) {
		return ErrTimeout
	}
	b.state = StateIdle
	b.mu.unlock()

	b.worker.signalAndWaitAck(signalStop)
	b.log.Info().Msg("jitterbuf: stop")
	return nil
}

// Reset clears the ring's cursors and occupancy and returns to BUFFERING.
// Lifetime counters (TotalWritten, TotalRead, OverrunCount, ...) are left
// untouched.
func (b *Buffer) Reset() error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.mu.lock(resetTimeout) {
		return ErrTimeout
	}
	b.ring.reset()
	b.state = StateBuffering
	b.mu.unlock()

	b.postEvent(EventBuffering)
	return nil
}

// Write enqueues one frame. With Config.WithHeader, len(data) is the
// payload length; the 2-byte length prefix is added internally. Write
// never fails because the producer outran the consumer: on overrun it
// drops the minimum number of whole frames needed to admit the new data
// (or, in the pathological case, falls back to a byte-level discard) and
// still returns nil.
func (b *Buffer) Write(data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if !b.mu.lock(writeReadTimeout) {
		return ErrTimeout
	}

	writeLen := b.framer.encodedLen(len(data))
	if writeLen > b.ring.free() {
		bytesDropped, framesDropped, alignmentLost := b.framer.discardForSpace(b.ring, writeLen)
		b.ring.overrunCount++
		b.diag.Record(diagnostics.Entry{
			Kind:          diagnostics.KindOverrun,
			BytesDropped:  bytesDropped,
			FramesDropped: framesDropped,
			AlignmentLost: alignmentLost,
		})
		event := b.log.Warn().
			Int("bytes_dropped", bytesDropped).
			Int("frames_dropped", framesDropped)
		if alignmentLost {
			event = event.Bool("alignment_lost", true)
		}
		event.Uint64("overrun_count", b.ring.overrunCount).Msg("jitterbuf: overrun")
	}

	b.framer.encode(b.ring, data)

	frameCount := b.framer.frameCount(b.ring)
	next, ev, changed := evaluateHighWater(b.state, frameCount, b.cfg.HighWater)
	hasEvent := changed
	if changed {
		b.state = next
	}
	b.mu.unlock()

	if hasEvent {
		b.postEvent(ev)
	}
	return nil
}

// Destroy signals the worker to exit, waits up to 500ms for its
// acknowledgement, and returns. It always succeeds: the worker is
// considered gone regardless of whether the ACK arrived in time. It is
// idempotent; every call after the first is a no-op. Every other method
// returns ErrClosed once Destroy has been called.
func (b *Buffer) Destroy() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.worker.signalAndWaitAck(signalExit)
	b.log.Info().Msg("jitterbuf: destroyed")
	return nil
}

// Diagnostics returns the retained overrun/underrun history, oldest
// first. It is purely observational.
func (b *Buffer) Diagnostics() []diagnostics.Entry {
	if !b.mu.lock(writeReadTimeout) {
		return nil
	}
	defer b.mu.unlock()
	return b.diag.Snapshot()
}

// Stats returns a snapshot of the buffer's lifetime counters and current
// state.
func (b *Buffer) Stats() Stats {
	if !b.mu.lock(writeReadTimeout) {
		return Stats{}
	}
	defer b.mu.unlock()
	return Stats{
		TotalWritten:  b.ring.totalWritten,
		TotalRead:     b.ring.totalRead,
		OverrunBytes:  b.ring.overrunBytes,
		OverrunCount:  b.ring.overrunCount,
		UnderrunCount: b.ring.underrunCount,
		DataSize:      b.ring.dataSize(),
		State:         b.state,
	}
}

// processOnce is step 1-5 of the consumer tick: re-evaluate state under
// the mutex, read at most one frame if PLAYING, release the mutex, then
// invoke the output sink (or emit silence) outside it.
func (b *Buffer) processOnce() {
	if !b.mu.lock(writeReadTimeout) {
		b.log.Warn().Msg("jitterbuf: process tick skipped, mutex timeout")
		return
	}

	frameCount := b.framer.frameCount(b.ring)

	var pendingEvent EventID
	hasEvent := false

	if next, ev, changed := evaluateHighWater(b.state, frameCount, b.cfg.HighWater); changed {
		b.state = next
		pendingEvent, hasEvent = ev, true
	}
	if next, ev, changed := evaluateLowWater(b.state, frameCount, b.cfg.LowWater); changed {
		b.state = next
		b.ring.underrunCount++
		b.diag.Record(diagnostics.Entry{Kind: diagnostics.KindUnderrun})
		pendingEvent, hasEvent = ev, true
	}

	var n int
	var malformed bool
	if b.state == StatePlaying {
		n, malformed = b.framer.decode(b.ring, b.scratch)
	}

	b.mu.unlock()

	if hasEvent {
		b.postEvent(pendingEvent)
	}
	if malformed {
		b.log.Warn().Msg("jitterbuf: dropped malformed frame")
	}

	if b.cfg.OnOutputData == nil {
		return
	}
	switch {
	case n > 0:
		b.cfg.OnOutputData(b.scratch[:n])
	case b.cfg.OutputSilenceOnEmpty:
		for i := range b.scratch {
			b.scratch[i] = 0
		}
		b.cfg.OnOutputData(b.scratch[:b.cfg.FrameSize])
	}
}

// postEvent dispatches to the configured EventSink outside any lock, so a
// slow or misbehaving sink can never stall a producer or the consumer.
func (b *Buffer) postEvent(id EventID) {
	if err := b.cfg.EventSink.Post(Event{ID: id, Handle: b}); err != nil {
		b.log.Warn().Err(err).Str("event", id.String()).Msg("jitterbuf: event post failed")
	}
}
