// Package buffer accumulates sensor records between flushes.
//
// Append and Drain share one mutex, and Drain swaps the whole backing slice
// out under it: a record is returned by exactly one Drain and is never lost
// between an Append and a Drain.
package buffer

import (
	"sync"

	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// Buffer is a mutex-guarded, ordered record accumulator.
type Buffer struct {
	mu      sync.Mutex
	records types.Batch
	max     int
	dropped int

	// onAppend and onDrop observe ingestion for metrics; may be nil.
	onAppend func()
	onDrop   func()
}

// Option customizes a Buffer.
type Option func(*Buffer)

// WithObservers registers callbacks run for every appended and every dropped
// record. They are called with the buffer lock held and must not block.
func WithObservers(onAppend, onDrop func()) Option {
	return func(b *Buffer) {
		b.onAppend = onAppend
		b.onDrop = onDrop
	}
}

// New returns an empty Buffer holding at most max records. When full, the
// oldest record is dropped to make room. max <= 0 means unbounded.
func New(max int, opts ...Option) *Buffer {
	b := &Buffer{max: max}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append adds rec to the tail.
func (b *Buffer) Append(rec types.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && len(b.records) >= b.max {
		// Drop-oldest. Clear the slot so the record can be collected.
		b.records[0] = nil
		b.records = b.records[1:]
		b.dropped++
		if b.onDrop != nil {
			b.onDrop()
		}
	}
	b.records = append(b.records, rec)
	if b.onAppend != nil {
		b.onAppend()
	}
}

// Drain returns every buffered record in append order and empties the
// buffer. dropped is the number of records evicted since the previous Drain.
func (b *Buffer) Drain() (batch types.Batch, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, dropped = b.records, b.dropped
	b.records, b.dropped = nil, 0
	return batch, dropped
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Consume appends every record received on in and returns once in is closed.
// It does not watch for cancellation: the producer stops and closes in, and
// whatever it queued before closing still lands in the buffer.
func (b *Buffer) Consume(in <-chan types.Record) {
	for rec := range in {
		b.Append(rec)
	}
}
