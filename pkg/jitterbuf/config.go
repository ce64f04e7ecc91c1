package jitterbuf

import (
	"github.com/rs/zerolog"
)

// AudioFormat is metadata describing the payload carried by the buffer.
// The buffer never converts or validates sample rates; this is advisory
// only and used to emit a warning when silence-fill is combined with an
// Opus frame interval outside the codec's fixed set of frame durations.
type AudioFormat int

const (
	AudioFormatPCM AudioFormat = iota
	AudioFormatOpus
)

func (f AudioFormat) String() string {
	if f == AudioFormatOpus {
		return "opus"
	}
	return "pcm"
}

// jitterHeaderLen is the size, in bytes, of the big-endian length prefix
// written before every payload when Config.WithHeader is set.
const jitterHeaderLen = 2

// Config is copied into the Buffer at construction and is immutable
// thereafter.
type Config struct {
	// BufferSize is the ring buffer capacity in bytes. With WithHeader
	// set, this is raised silently if it cannot hold HighWater frames at
	// worst-case size.
	BufferSize uint32

	// WithHeader selects the framer: false is fixed-size frames of
	// exactly FrameSize bytes, true is length-prefixed frames capped at
	// FrameSize bytes of payload.
	WithHeader bool

	// FrameSize is the fixed frame length (WithHeader false) or the
	// maximum payload length per frame (WithHeader true).
	FrameSize uint32

	// FrameInterval is the consumer tick period. Must be > 0.
	FrameInterval uint32 // milliseconds

	// HighWater is the frame count at which BUFFERING/UNDERRUN transitions
	// to PLAYING.
	HighWater uint32

	// LowWater is the frame count below which PLAYING transitions to
	// UNDERRUN. Must be <= HighWater.
	LowWater uint32

	// OutputSilenceOnEmpty, when true, makes the consumer emit a
	// zero-filled frame on ticks where no real frame is available.
	OutputSilenceOnEmpty bool

	// AudioFormatID is advisory metadata; see AudioFormat.
	AudioFormatID AudioFormat

	// OnOutputData is invoked from the consumer goroutine, outside the
	// buffer's mutex, once per tick that produces a frame (real or
	// silence). It must not call back into the Buffer.
	OnOutputData OutputSink

	// EventSink, if non-nil, receives one Event per state transition.
	// Posting is best-effort; a failed post is logged and ignored.
	EventSink EventSink

	// Logger receives structured lifecycle and warning output. The zero
	// value disables logging.
	Logger zerolog.Logger
}

// DefaultConfig returns the reference configuration from the original
// jitter buffer: 11KiB ring, 512-byte frames, 20ms cadence, a 20-frame
// high water mark and a 10-frame low water mark, fixed framing, no
// silence fill, no event sink.
func DefaultConfig() Config {
	return Config{
		BufferSize:           11 * 1024,
		WithHeader:           false,
		FrameSize:            512,
		FrameInterval:        20,
		HighWater:            20,
		LowWater:             10,
		OutputSilenceOnEmpty: false,
		AudioFormatID:        AudioFormatOpus,
		Logger:               zerolog.Nop(),
	}
}

// normalize validates the configuration and applies the silent
// buffer_size-raise required by with_header. It returns the effective
// buffer size and an error only for conditions that must fail Buffer
// creation outright.
func (c *Config) normalize() (effectiveSize uint32, err error) {
	if c.FrameInterval == 0 {
		return 0, ErrInvalidArgument
	}
	if c.LowWater > c.HighWater {
		return 0, ErrInvalidArgument
	}
	if c.EventSink == nil {
		c.EventSink = NullEventSink{}
	}

	effectiveSize = c.BufferSize
	if c.WithHeader {
		minSize := c.HighWater * (jitterHeaderLen + c.FrameSize)
		if effectiveSize < minSize {
			c.Logger.Warn().
				Uint32("configured_size", effectiveSize).
				Uint32("required_size", minSize).
				Msg("jitterbuf: with_header needs buffer_size >= high_water*(2+frame_size), raising buffer_size")
			effectiveSize = minSize
		}
	}

	if c.OutputSilenceOnEmpty && c.AudioFormatID == AudioFormatOpus && !isOpusFrameInterval(c.FrameInterval) {
		c.Logger.Warn().
			Uint32("frame_interval_ms", c.FrameInterval).
			Msg("jitterbuf: opus silence fill expects frame_interval in {20,40,60,120}ms")
	}

	return effectiveSize, nil
}

func isOpusFrameInterval(ms uint32) bool {
	switch ms {
	case 20, 40, 60, 120:
		return true
	default:
		return false
	}
}
