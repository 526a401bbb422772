package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-memory, thread-safe Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryLog creates a MemoryLog holding only the genesis entry.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: []*Entry{genesisEntry(time.Now())}}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.entries[len(l.entries)-1]
	if rec.Block < prev.Block {
		return nil, fmt.Errorf("append block %d behind tail block %d", rec.Block, prev.Block)
	}
	e := newEntry(prev, rec)
	l.entries = append(l.entries, e)
	cp := *e
	return &cp, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	cp := *l.entries[index]
	return &cp, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prev *Entry
	for _, curr := range l.entries {
		if err := verifyNext(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// Range implements Log. It iterates over a snapshot taken when called.
func (l *MemoryLog) Range(ctx context.Context, from int, fn func(*Entry) error) error {
	l.mu.RLock()
	if from < 0 {
		from = 0
	}
	var snapshot []*Entry
	if from < len(l.entries) {
		snapshot = append(snapshot, l.entries[from:]...)
	}
	l.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := *e
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}
