// Package diagnostics keeps a bounded, time-ordered log of jitter-buffer
// overrun and underrun events for post-hoc inspection. It participates in
// no invariant and no state transition — it is purely observational, the
// queryable form of the original implementation's "record alignment lost
// in the overrun log" warning.
package diagnostics

import (
	"github.com/huandu/skiplist"
)

// Kind identifies what happened.
type Kind int

const (
	KindOverrun Kind = iota
	KindUnderrun
)

// Entry is one ledger record.
type Entry struct {
	Seq           uint64
	Kind          Kind
	BytesDropped  int
	FramesDropped int
	AlignmentLost bool
}

// Ledger is a bounded, sequence-ordered log backed by a skiplist keyed on
// a monotonically increasing sequence number. Once it holds capacity
// entries, recording a new one evicts the oldest.
type Ledger struct {
	list     *skiplist.SkipList
	capacity int
	next     uint64
}

// New returns a Ledger that retains at most capacity entries.
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ledger{
		list:     skiplist.New(skiplist.Uint64),
		capacity: capacity,
	}
}

// Record appends an entry, evicting the oldest if the ledger is full.
// Not safe for concurrent use; callers already hold the Buffer's mutex
// when this is invoked from the write/read path.
func (l *Ledger) Record(e Entry) {
	e.Seq = l.next
	l.next++
	l.list.Set(e.Seq, e)
	for l.list.Len() > l.capacity {
		l.list.RemoveFront()
	}
}

// Snapshot returns all retained entries, oldest first.
func (l *Ledger) Snapshot() []Entry {
	out := make([]Entry, 0, l.list.Len())
	for el := l.list.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry))
	}
	return out
}

// Len reports how many entries are currently retained.
func (l *Ledger) Len() int { return l.list.Len() }
