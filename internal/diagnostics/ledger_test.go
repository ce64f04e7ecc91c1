package diagnostics

import (
	"testing"

	"github.com/huandu/go-assert"
)

func TestLedgerRecordsInOrder(t *testing.T) {
	l := New(8)
	l.Record(Entry{Kind: KindOverrun, BytesDropped: 10})
	l.Record(Entry{Kind: KindUnderrun})

	got := l.Snapshot()
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].Kind, KindOverrun)
	assert.Equal(t, got[0].Seq, uint64(0))
	assert.Equal(t, got[1].Kind, KindUnderrun)
	assert.Equal(t, got[1].Seq, uint64(1))
}

func TestLedgerEvictsOldest(t *testing.T) {
	l := New(2)
	for i := 0; i < 5; i++ {
		l.Record(Entry{Kind: KindOverrun, BytesDropped: i})
	}
	got := l.Snapshot()
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].BytesDropped, 3)
	assert.Equal(t, got[1].BytesDropped, 4)
}
