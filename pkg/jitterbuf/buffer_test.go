package jitterbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/huandu/go-assert"
)

type frameCollector struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *frameCollector) sink(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.mu.Lock()
	c.frames = append(c.frames, cp)
	c.mu.Unlock()
}

func (c *frameCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *frameCollector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

func newTestBuffer(t *testing.T, cfg Config) (*Buffer, *frameCollector, *ChannelEventSink) {
	t.Helper()
	collector := &frameCollector{}
	sink := NewChannelEventSink(32)
	cfg.OnOutputData = collector.sink
	cfg.EventSink = sink
	b, err := New(cfg)
	assert.New(t).NilError(err)
	t.Cleanup(func() { _ = b.Destroy() })
	return b, collector, sink
}

func drainEvents(sink *ChannelEventSink) []EventID {
	var out []EventID
	for {
		select {
		case e := <-sink.C:
			out = append(out, e.ID)
		default:
			return out
		}
	}
}

// Scenario 1: pre-roll.
func TestScenarioPreRoll(t *testing.T) {
	cfg := Config{
		BufferSize:    64 * 1024,
		FrameSize:     512,
		FrameInterval: 20,
		HighWater:     20,
		LowWater:      10,
	}
	b, collector, sink := newTestBuffer(t, cfg)
	assert.New(t).NilError(b.Start())
	drainEvents(sink) // consume the initial BUFFERING event

	for i := 0; i < 19; i++ {
		assert.New(t).NilError(b.Write(make([]byte, 512)))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, collector.count(), 0)
	assert.Equal(t, b.Stats().State, StateBuffering)

	assert.New(t).NilError(b.Write(make([]byte, 512)))

	waitFor(t, 200*time.Millisecond, func() bool { return b.Stats().State == StatePlaying })
	assert.Equal(t, b.Stats().State, StatePlaying)

	events := drainEvents(sink)
	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0], EventPlaying)

	waitFor(t, 200*time.Millisecond, func() bool { return collector.count() > 0 })
	assert.Equal(t, collector.count() > 0, true)
}

// Scenario 2: length-prefixed round trip.
func TestScenarioLengthPrefixedRoundTrip(t *testing.T) {
	cfg := Config{
		BufferSize:    64 * 1024,
		WithHeader:    true,
		FrameSize:     512,
		FrameInterval: 1000, // slow cadence; we read via the framer directly below
		HighWater:     1,
		LowWater:      0,
	}
	b, _, _ := newTestBuffer(t, cfg)

	lengths := []int{100, 250, 512, 1, 333}
	for _, l := range lengths {
		payload := make([]byte, l)
		for i := range payload {
			payload[i] = byte(i)
		}
		assert.New(t).NilError(b.Write(payload))
	}

	assert.Equal(t, b.framer.frameCount(b.ring), len(lengths))

	scratch := make([]byte, 512)
	for _, l := range lengths {
		n, malformed := b.framer.decode(b.ring, scratch)
		assert.Equal(t, malformed, false)
		assert.Equal(t, n, l)
	}
	assert.Equal(t, b.framer.frameCount(b.ring), 0)
}

// Scenario 3: aligned overrun.
func TestScenarioAlignedOverrun(t *testing.T) {
	cfg := Config{
		BufferSize:    2048,
		WithHeader:    true,
		FrameSize:     500,
		FrameInterval: 1000,
		HighWater:     1,
		LowWater:      0,
	}
	b, _, _ := newTestBuffer(t, cfg)
	// Never start the consumer: the overrun must happen purely on the
	// write path.

	for i := 0; i < 5; i++ {
		assert.New(t).NilError(b.Write(make([]byte, 500)))
	}

	stats := b.Stats()
	assert.Equal(t, stats.OverrunCount >= 1, true)

	hdr := b.ring.peekAt(0, 2)
	l := int(hdr[0])<<8 | int(hdr[1])
	assert.Equal(t, l, 500)
}

// Scenario 4: malformed length.
func TestScenarioMalformedLength(t *testing.T) {
	cfg := Config{
		BufferSize:    64 * 1024,
		WithHeader:    true,
		FrameSize:     16,
		FrameInterval: 1000,
		HighWater:     0,
		LowWater:      0,
	}
	b, collector, _ := newTestBuffer(t, cfg)

	// Craft a header declaring a payload larger than FrameSize but still
	// parsable (well under buffer_size/2) directly on the ring, bypassing
	// Write's encoder.
	assert.Equal(t, true, b.mu.lock(time.Second))
	hdr := []byte{0, 100}
	b.ring.write(hdr)
	b.ring.write(make([]byte, 100))
	stateBefore := b.state
	b.state = StatePlaying
	b.mu.unlock()

	b.processOnce()

	assert.Equal(t, collector.count(), 0)
	assert.Equal(t, b.ring.dataSize(), 0)
	assert.Equal(t, b.state, StatePlaying)
	_ = stateBefore
}

// Scenario 5: underrun and recover.
func TestScenarioUnderrunAndRecover(t *testing.T) {
	cfg := Config{
		BufferSize:    64 * 1024,
		FrameSize:     64,
		FrameInterval: 5,
		HighWater:     4,
		LowWater:      2,
	}
	b, _, sink := newTestBuffer(t, cfg)
	assert.New(t).NilError(b.Start())
	drainEvents(sink)

	for i := 0; i < 4; i++ {
		assert.New(t).NilError(b.Write(make([]byte, 64)))
	}
	waitFor(t, 500*time.Millisecond, func() bool { return b.Stats().State == StatePlaying })
	drainEvents(sink)

	waitFor(t, 500*time.Millisecond, func() bool { return b.Stats().State == StateUnderrun })
	assert.Equal(t, b.Stats().State, StateUnderrun)
	events := drainEvents(sink)
	underrunCount := 0
	for _, e := range events {
		if e == EventUnderrun {
			underrunCount++
		}
	}
	assert.Equal(t, underrunCount, 1)

	for i := 0; i < 4; i++ {
		assert.New(t).NilError(b.Write(make([]byte, 64)))
	}
	waitFor(t, 500*time.Millisecond, func() bool { return b.Stats().State == StatePlaying })
	events = drainEvents(sink)
	playingCount := 0
	for _, e := range events {
		if e == EventPlaying {
			playingCount++
		}
	}
	assert.Equal(t, playingCount, 1)
}

// Scenario 6 (partial, single-iteration): destroy while running.
func TestScenarioDestroyWhileRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrameInterval = 5
	cfg.HighWater = 2
	cfg.LowWater = 1
	b, collector, _ := newTestBuffer(t, cfg)
	assert.New(t).NilError(b.Start())

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				_ = b.Write(make([]byte, int(cfg.FrameSize)))
				time.Sleep(time.Millisecond)
			}
		}
	}()

	time.Sleep(30 * time.Millisecond)
	close(stop)

	done := make(chan struct{})
	go func() {
		_ = b.Destroy()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(600 * time.Millisecond):
		t.Fatal("Destroy did not return within the ACK bound")
	}

	before := collector.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, collector.count(), before)
}

// P6: idempotent start.
func TestIdempotentStart(t *testing.T) {
	cfg := DefaultConfig()
	b, _, sink := newTestBuffer(t, cfg)

	assert.New(t).NilError(b.Start())
	assert.New(t).NilError(b.Start())

	events := drainEvents(sink)
	bufferingCount := 0
	for _, e := range events {
		if e == EventBuffering {
			bufferingCount++
		}
	}
	assert.Equal(t, bufferingCount, 1)
}

// P7: reset clears data_size, sets BUFFERING, preserves lifetime counters.
func TestResetClears(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighWater = 1000 // stay in BUFFERING regardless of writes below
	b, _, _ := newTestBuffer(t, cfg)

	assert.New(t).NilError(b.Write(make([]byte, int(cfg.FrameSize))))
	assert.New(t).NilError(b.Write(make([]byte, int(cfg.FrameSize))))
	statsBefore := b.Stats()
	assert.Equal(t, statsBefore.DataSize > 0, true)

	assert.New(t).NilError(b.Reset())

	stats := b.Stats()
	assert.Equal(t, stats.DataSize, 0)
	assert.Equal(t, stats.State, StateBuffering)
	assert.Equal(t, stats.TotalWritten, statsBefore.TotalWritten)
	assert.Equal(t, stats.TotalRead, statsBefore.TotalRead)
}

// P5: cadence, loosely — with a fast sink and silence fill, a 220ms window
// at a 10ms cadence should produce about 20 invocations; the assertion
// accepts any count from 10 to 30.
func TestCadenceApproximatesFrameInterval(t *testing.T) {
	cfg := Config{
		BufferSize:           64 * 1024,
		FrameSize:            64,
		FrameInterval:        10,
		HighWater:            1,
		LowWater:             0,
		OutputSilenceOnEmpty: true,
	}
	b, collector, _ := newTestBuffer(t, cfg)
	assert.New(t).NilError(b.Start())
	assert.New(t).NilError(b.Write(make([]byte, 64)))

	time.Sleep(220 * time.Millisecond)
	n := collector.count()
	// ~20 ticks expected at 10ms cadence over 220ms; allow generous jitter.
	assert.Equal(t, n >= 10 && n <= 30, true)
}
