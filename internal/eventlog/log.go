package eventlog

import "context"

// Log is the append-only, hash-chained journal of governance events.
// MemoryLog, PostgresLog and SQLiteLog implement it.
type Log interface {
	// Append adds a new entry chained to the current tail.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and checks hash consistency and block order.
	Verify(ctx context.Context) error

	// Root returns the hash of the tail entry.
	Root(ctx context.Context) (string, error)

	// Range calls fn for every entry with index >= from, in order, stopping
	// at the first error.
	Range(ctx context.Context, from int, fn func(*Entry) error) error
}
