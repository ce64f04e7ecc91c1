package jitterbuf

import "time"

// signal is one of the control messages the host sends to the worker.
type signal int

const (
	signalStart signal = iota
	signalStop
	signalExit
)

// ackTimeout bounds how long Start/Stop/Destroy wait for the worker to
// acknowledge a control signal, mirroring the original's 500ms FreeRTOS
// event-group wait.
const ackTimeout = 500 * time.Millisecond

// consumer is the single long-lived worker. It sits in an outer wait for
// START or EXIT; on START it runs an inner loop that wakes on an absolute
// schedule every frameInterval and pulls at most one frame per tick. The
// request/ack channel pair is the idiomatic Go counterpart of the
// original's two FreeRTOS event groups.
type consumer struct {
	buf      *Buffer
	requests chan signal
	acks     chan struct{}
	done     chan struct{}
}

func newConsumer(buf *Buffer) *consumer {
	return &consumer{
		buf:      buf,
		requests: make(chan signal),
		acks:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// signalAndWaitAck sends s to the worker and waits up to ackTimeout for the
// acknowledgement. Per the spec, a timed-out ACK is not an error: the
// operation is eventually consistent and the host may retry.
func (c *consumer) signalAndWaitAck(s signal) {
	c.requests <- s
	select {
	case <-c.acks:
	case <-time.After(ackTimeout):
		c.buf.log.Warn().Str("signal", signalName(s)).Msg("jitterbuf: ACK wait timed out")
	}
}

func signalName(s signal) string {
	switch s {
	case signalStart:
		return "start"
	case signalStop:
		return "stop"
	case signalExit:
		return "exit"
	default:
		return "unknown"
	}
}

func (c *consumer) ack() {
	select {
	case c.acks <- struct{}{}:
	default:
	}
}

// run is the worker's goroutine body.
func (c *consumer) run() {
	defer close(c.done)
	for {
		s := <-c.requests
		switch s {
		case signalExit:
			c.ack()
			return
		case signalStop:
			// Idempotent stop while already stopped: re-ack without
			// entering the inner loop.
			c.ack()
		case signalStart:
			if c.innerLoop() {
				return
			}
		}
	}
}

// innerLoop runs the periodic tick schedule until it observes STOP or
// EXIT. It returns true when the worker should terminate entirely.
func (c *consumer) innerLoop() bool {
	c.ack()

	interval := time.Duration(c.buf.cfg.FrameInterval) * time.Millisecond
	next := time.Now().Add(interval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case s := <-c.requests:
			switch s {
			case signalExit:
				c.ack()
				return true
			case signalStop:
				c.ack()
				return false
			case signalStart:
				// Idempotent: re-ack without disrupting cadence.
				c.ack()
			}
		case <-timer.C:
			c.buf.processOnce()
			next = next.Add(interval)
			timer.Reset(time.Until(next))
		}
	}
}
