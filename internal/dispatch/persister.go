package dispatch

import (
	"fmt"
	"sync"

	"github.com/manabi-dev/manabi/internal/checkpoint"
)

// Persister buffers result records and appends them to the checkpoint store
// in batches, so a long run costs one write per threshold rather than one
// per task. A failed flush keeps the batch buffered for the next try.
type Persister struct {
	store     checkpoint.Store
	threshold int

	mu     sync.Mutex
	buf    []checkpoint.ResultRecord
	saved  int
	closed bool
}

// NewPersister wraps a store with batching. threshold must be positive.
func NewPersister(store checkpoint.Store, threshold int) *Persister {
	if threshold <= 0 {
		panic("dispatch: persister threshold must be positive")
	}
	return &Persister{store: store, threshold: threshold}
}

// Add buffers one record, flushing when the buffer reaches the threshold.
func (p *Persister) Add(rec checkpoint.ResultRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("persister: add after close")
	}
	p.buf = append(p.buf, rec)
	if len(p.buf) >= p.threshold {
		return p.flushLocked()
	}
	return nil
}

// Flush writes any buffered records immediately.
func (p *Persister) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Persister) flushLocked() error {
	if len(p.buf) == 0 {
		return nil
	}
	if err := p.store.Append(p.buf); err != nil {
		// Keep the batch; the caller may retry or the close flush will.
		return fmt.Errorf("persister: flush %d records: %w", len(p.buf), err)
	}
	p.saved += len(p.buf)
	p.buf = p.buf[:0]
	return nil
}

// Saved returns how many records have been durably written so far.
func (p *Persister) Saved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved
}

// Pending returns how many records are buffered but not yet written.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Close flushes the remaining buffer and marks the persister finished. The
// underlying store is not closed; its owner does that.
func (p *Persister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	err := p.flushLocked()
	if err == nil {
		p.closed = true
	}
	return err
}
