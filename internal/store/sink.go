package store

import (
	"context"

	"github.com/wesm/emlx/internal/scan"
)

// DefaultBatchSize is the number of entries a Sink writes per transaction.
const DefaultBatchSize = 200

// Sink indexes scan entries into a Store. Each entry is reduced to its
// column values on Add, so the buffer never holds MIME bytes. Rows are
// written in batches; call Flush after the scan finishes.
type Sink struct {
	store     *Store
	batchSize int
	pending   []messageRow
	written   int
}

var _ scan.Sink = (*Sink)(nil)

// NewSink returns a Sink writing batchSize entries per transaction.
// A batchSize <= 0 uses DefaultBatchSize.
func NewSink(st *Store, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sink{store: st, batchSize: batchSize}
}

// Add buffers e and writes the batch once it is full.
func (k *Sink) Add(ctx context.Context, e scan.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := newMessageRow(e)
	if err != nil {
		return err
	}
	k.pending = append(k.pending, row)
	if len(k.pending) >= k.batchSize {
		return k.Flush()
	}
	return nil
}

// Flush writes any buffered entries.
func (k *Sink) Flush() error {
	if len(k.pending) == 0 {
		return nil
	}
	if err := k.store.upsertRows(k.pending); err != nil {
		return err
	}
	k.written += len(k.pending)
	k.pending = k.pending[:0]
	return nil
}

// Written returns the number of entries committed so far.
func (k *Sink) Written() int {
	return k.written
}
