package jitterbuf

import (
	"encoding/binary"

	"github.com/samber/lo"
)

// framer interprets ring contents as a sequence of frames. The buffer picks
// one implementation at construction, based on Config.WithHeader, and never
// swaps it afterwards.
type framer interface {
	// frameCount reports how many complete frames currently sit in r.
	frameCount(r *ring) int

	// discardForSpace drops data from the head of r until at least need
	// bytes are free (the fixed framer drops bytes; the header framer drops
	// whole frames and falls back to bytes once no parsable frame is left).
	// It reports how many bytes and frames were dropped and whether
	// alignment was lost (a byte-level fallback was needed).
	discardForSpace(r *ring, need int) (bytesDropped, framesDropped int, alignmentLost bool)

	// encode writes one frame (header, if any, plus payload) to r. The
	// caller guarantees r has enough free space.
	encode(r *ring, payload []byte)

	// encodedLen returns the number of ring bytes one frame carrying
	// payload of this length would occupy.
	encodedLen(payloadLen int) int

	// decode consumes one frame from the head of r into scratch and
	// returns the payload length. malformed is true when a frame was
	// found and dropped but yielded no payload (oversize length); in
	// that case n is always 0 and the frame's bytes were still consumed
	// so read_pos stays aligned to the next frame.
	decode(r *ring, scratch []byte) (n int, malformed bool)
}

// --- fixed framer -----------------------------------------------------

type fixedFramer struct {
	frameSize int
}

func (f fixedFramer) frameCount(r *ring) int {
	return r.dataSize() / f.frameSize
}

// encodedLen is the identity for the fixed framer: Write's caller is
// expected to supply exactly frame_size bytes per call, but the ring
// itself does not enforce that — it stores whatever byte count it is
// given, and frameCount simply divides by frame_size.
func (f fixedFramer) encodedLen(payloadLen int) int { return payloadLen }

func (f fixedFramer) encode(r *ring, payload []byte) {
	r.write(payload)
}

func (f fixedFramer) decode(r *ring, scratch []byte) (int, bool) {
	n := r.read(scratch[:f.frameSize])
	return n, false
}

// discardForSpace is byte-granular: it drops exactly the shortfall from the
// head. When every write is frame_size bytes and the ring capacity is a
// multiple of frame_size, the shortfall is a whole number of frames and the
// head stays on a frame boundary; otherwise it need not, and alignmentLost
// is still reported as false.
func (f fixedFramer) discardForSpace(r *ring, need int) (int, int, bool) {
	shortfall := need - r.free()
	if shortfall <= 0 {
		return 0, 0, false
	}
	drop := lo.Min([]int{shortfall, r.dataSize()})
	frames := drop / f.frameSize
	r.discard(drop)
	return drop, frames, false
}

// --- length-prefixed framer --------------------------------------------

type headerFramer struct {
	maxPayload int // Config.FrameSize: payload cap per frame
	ringCap    int // Config.BufferSize (effective), for the L <= cap/2 sanity check
}

// peekHeader walks to offset bytes past the head and reads the 2-byte
// big-endian length prefix there, reporting whether it looks sane (the
// whole frame fits in the bytes actually present and L doesn't exceed
// half the ring).
func (f headerFramer) peekHeader(r *ring, offset int) (length int, ok bool) {
	remaining := r.dataSize() - offset
	if remaining < jitterHeaderLen {
		return 0, false
	}
	hdr := r.peekAt(offset, jitterHeaderLen)
	l := int(binary.BigEndian.Uint16(hdr))
	if l > f.ringCap/2 {
		return 0, false
	}
	if remaining < jitterHeaderLen+l {
		return 0, false
	}
	return l, true
}

func (f headerFramer) frameCount(r *ring) int {
	offset := 0
	count := 0
	for {
		l, ok := f.peekHeader(r, offset)
		if !ok {
			break
		}
		offset += jitterHeaderLen + l
		count++
	}
	return count
}

func (f headerFramer) encodedLen(payloadLen int) int { return jitterHeaderLen + payloadLen }

func (f headerFramer) encode(r *ring, payload []byte) {
	var hdr [jitterHeaderLen]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	r.write(hdr[:])
	r.write(payload)
}

// discardForSpace enumerates whole frames at the head and drops them one
// at a time until enough space is reclaimed. If the parsable frames at the
// head are exhausted before enough space is freed, it falls back to a
// byte-level discard of the remaining shortfall, which loses frame
// alignment — this is the delicate case flagged in the spec and is not
// expected on well-formed streams.
func (f headerFramer) discardForSpace(r *ring, need int) (bytesDropped, framesDropped int, alignmentLost bool) {
	for r.free() < need {
		l, ok := f.peekHeader(r, 0)
		if !ok {
			break
		}
		frame := jitterHeaderLen + l
		r.discard(frame)
		bytesDropped += frame
		framesDropped++
	}
	if shortfall := need - r.free(); shortfall > 0 {
		drop := lo.Min([]int{shortfall, r.dataSize()})
		r.discard(drop)
		bytesDropped += drop
		alignmentLost = true
	}
	return bytesDropped, framesDropped, alignmentLost
}

func (f headerFramer) decode(r *ring, scratch []byte) (int, bool) {
	l, ok := f.peekHeader(r, 0)
	if !ok {
		return 0, false
	}
	if l > f.maxPayload {
		// Malformed: would overflow the caller's scratch buffer. Drop the
		// whole frame so read_pos realigns to the next header, and report
		// nothing available this tick.
		var hdr [jitterHeaderLen]byte
		r.read(hdr[:])
		discardPayload(r, l)
		return 0, true
	}
	var hdr [jitterHeaderLen]byte
	r.read(hdr[:])
	n := r.read(scratch[:l])
	return n, false
}

// discardPayload drains n bytes of payload through a bounded scratch
// buffer, since the only caller (decode's malformed branch) has no
// guarantee that n fits in the caller's scratch slice.
func discardPayload(r *ring, n int) {
	buf := make([]byte, 256)
	for n > 0 {
		chunk := len(buf)
		if chunk > n {
			chunk = n
		}
		got := r.read(buf[:chunk])
		if got == 0 {
			return
		}
		n -= got
	}
}
