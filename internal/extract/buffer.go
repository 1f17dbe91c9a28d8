package extract

import "github.com/gyaneshwarpardhi/electrondump/internal/event"

// Tagged is a record that passed the filter, with the tag it was given.
type Tagged struct {
	Tag string
	event.ObjectRecord
}

// Buffer accumulates one event's kept records. It is reset at the top of
// every event and read once by the flattener.
type Buffer struct {
	Run   uint64
	Event uint64
	Kept  []Tagged
}

// Reset clears the buffer for a new event, keeping the backing array.
func (b *Buffer) Reset(run, evt uint64) {
	b.Run = run
	b.Event = evt
	clear(b.Kept)
	b.Kept = b.Kept[:0]
}

// Len is the number of kept records.
func (b *Buffer) Len() int { return len(b.Kept) }
