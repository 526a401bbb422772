package eventlog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

var ctx = context.Background()

// logFactories lists every Log implementation that runs without external
// services. Postgres is covered by postgres_test.go under the integration tag.
func logFactories(t *testing.T) map[string]func() eventlog.Log {
	t.Helper()
	return map[string]func() eventlog.Log{
		"memory": func() eventlog.Log { return eventlog.NewMemoryLog() },
		"sqlite": func() eventlog.Log {
			l, err := eventlog.OpenSQLiteLog(ctx, filepath.Join(t.TempDir(), "journal.db"), zap.NewNop())
			if err != nil {
				t.Fatalf("open sqlite log: %v", err)
			}
			t.Cleanup(func() { l.Close() })
			return l
		},
	}
}

func forEachLog(t *testing.T, fn func(t *testing.T, l eventlog.Log)) {
	for name, factory := range logFactories(t) {
		factory := factory
		t.Run(name, func(t *testing.T) { fn(t, factory()) })
	}
}

func TestNew_genesisEntry(t *testing.T) {
	forEachLog(t, func(t *testing.T, l eventlog.Log) {
		n, err := l.Len(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 genesis entry, got %d", n)
		}

		entry, err := l.Get(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Kind != eventlog.KindGenesis {
			t.Errorf("expected kind genesis, got %q", entry.Kind)
		}
		if entry.Hash != eventlog.GenesisHash {
			t.Errorf("genesis hash: got %q, want GenesisHash", entry.Hash)
		}

		root, err := l.Root(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if root != eventlog.GenesisHash {
			t.Errorf("Root() on genesis-only: got %q, want GenesisHash", root)
		}
		if err := l.Verify(ctx); err != nil {
			t.Errorf("Verify() on genesis-only chain should pass: %v", err)
		}
	})
}

func TestAppend_chainsCorrectly(t *testing.T) {
	forEachLog(t, func(t *testing.T, l eventlog.Log) {
		e1, err := l.Append(ctx, eventlog.Record{
			Block: 2, Kind: eventlog.KindMint, Actor: "0xowner", Account: "0xholder", Amount: "10",
		})
		if err != nil {
			t.Fatal(err)
		}
		e2, err := l.Append(ctx, eventlog.Record{
			Block: 2, Kind: eventlog.KindVotesChanged, Account: "0xdelegate", Previous: "0", Amount: "10",
		})
		if err != nil {
			t.Fatal(err)
		}

		if e1.Index != 1 || e2.Index != 2 {
			t.Errorf("indices: got %d, %d", e1.Index, e2.Index)
		}
		if e2.PrevHash != e1.Hash {
			t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
		}

		root, err := l.Root(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if root != e2.Hash {
			t.Errorf("Root(): got %q, want %q", root, e2.Hash)
		}

		got, err := l.Get(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got.Hash != e1.Hash || got.Amount != "10" || got.Actor != "0xowner" || got.ID != e1.ID {
			t.Errorf("Get(1) = %+v, want %+v", got, e1)
		}
		if !got.Timestamp.Equal(e1.Timestamp) {
			t.Errorf("timestamp round trip: got %v, want %v", got.Timestamp, e1.Timestamp)
		}

		if err := l.Verify(ctx); err != nil {
			t.Errorf("Verify() failed on valid chain: %v", err)
		}
	})
}

func TestAppend_rejectsBlockBehindTail(t *testing.T) {
	forEachLog(t, func(t *testing.T, l eventlog.Log) {
		if _, err := l.Append(ctx, eventlog.Record{Block: 5, Kind: eventlog.KindMint}); err != nil {
			t.Fatal(err)
		}
		if _, err := l.Append(ctx, eventlog.Record{Block: 4, Kind: eventlog.KindMint}); err == nil {
			t.Error("expected error appending block 4 after block 5")
		}
		n, _ := l.Len(ctx)
		if n != 2 {
			t.Errorf("expected 2 entries, got %d", n)
		}
	})
}

func TestGet_outOfRange(t *testing.T) {
	forEachLog(t, func(t *testing.T, l eventlog.Log) {
		_, err := l.Get(ctx, 99)
		if !errors.Is(err, eventlog.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRange_fromIndex(t *testing.T) {
	forEachLog(t, func(t *testing.T, l eventlog.Log) {
		for b := uint64(1); b <= 4; b++ {
			if _, err := l.Append(ctx, eventlog.Record{Block: b, Kind: eventlog.KindMint}); err != nil {
				t.Fatal(err)
			}
		}

		var seen []int
		err := l.Range(ctx, 2, func(e *eventlog.Entry) error {
			seen = append(seen, e.Index)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(seen) != 3 || seen[0] != 2 || seen[2] != 4 {
			t.Errorf("Range(2) visited %v, want [2 3 4]", seen)
		}

		stop := errors.New("stop")
		calls := 0
		err = l.Range(ctx, 0, func(*eventlog.Entry) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) || calls != 1 {
			t.Errorf("Range should stop at first error: err=%v calls=%d", err, calls)
		}
	})
}

func TestSQLiteLog_reopenKeepsChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	l, err := eventlog.OpenSQLiteLog(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Append(ctx, eventlog.Record{Block: 3, Kind: eventlog.KindBurn, Amount: "7"})
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	reopened, err := eventlog.OpenSQLiteLog(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	n, _ := reopened.Len(ctx)
	if n != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", n)
	}
	root, _ := reopened.Root(ctx)
	if root != e.Hash {
		t.Errorf("root after reopen: got %q, want %q", root, e.Hash)
	}
	if err := reopened.Verify(ctx); err != nil {
		t.Errorf("Verify() after reopen: %v", err)
	}
}
