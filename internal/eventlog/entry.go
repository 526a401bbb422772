package eventlog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the well-known hash of the genesis entry. Every chain starts
// from it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SystemActor is the actor recorded on the genesis entry.
const SystemActor = "govledger"

// ErrNotFound is returned by Get for an index outside the journal.
var ErrNotFound = errors.New("journal entry not found")

// Kind is the type of a journaled governance event.
type Kind string

const (
	KindGenesis         Kind = "genesis"
	KindMint            Kind = "mint"
	KindBurn            Kind = "burn"
	KindDelegateChanged Kind = "delegate_changed"
	KindVotesChanged    Kind = "votes_changed"
)

// Record is the caller-supplied part of an entry.
//
// Field use per kind:
//
//	mint, burn:        Account = holder, Amount = amount
//	delegate_changed:  Account = delegator, Previous = old delegate, Counterparty = new delegate ("" = none)
//	votes_changed:     Account = delegate, Previous = old weight, Amount = new weight
type Record struct {
	Block        uint64
	Kind         Kind
	Actor        string
	Account      string
	Counterparty string
	Amount       string
	Previous     string
}

// Entry is a single hash-chained journal record.
type Entry struct {
	Index        int       `json:"index"`
	ID           uuid.UUID `json:"id"`
	Block        uint64    `json:"block"`
	Kind         Kind      `json:"kind"`
	Actor        string    `json:"actor,omitempty"`
	Account      string    `json:"account,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Previous     string    `json:"previous,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// newEntry builds the entry that follows prev. Timestamps are truncated to
// microseconds so they survive a round trip through Postgres unchanged.
func newEntry(prev *Entry, rec Record) *Entry {
	e := &Entry{
		Index:        prev.Index + 1,
		ID:           uuid.New(),
		Block:        rec.Block,
		Kind:         rec.Kind,
		Actor:        rec.Actor,
		Account:      rec.Account,
		Counterparty: rec.Counterparty,
		Amount:       rec.Amount,
		Previous:     rec.Previous,
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prev.Hash,
	}
	e.Hash = hashEntry(e)
	return e
}

func genesisEntry(ts time.Time) *Entry {
	return &Entry{
		Index:     0,
		ID:        uuid.Nil,
		Kind:      KindGenesis,
		Actor:     SystemActor,
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// hashEntry computes the SHA-256 over an entry's fields. It is never used for
// the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Index, e.ID, e.Block, e.Kind,
		e.Actor, e.Account, e.Counterparty, e.Amount, e.Previous,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// verifyNext checks that curr correctly follows prev. prev is nil for the
// first entry.
func verifyNext(prev, curr *Entry) error {
	if prev == nil {
		if curr.Index != 0 || curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.Index != prev.Index+1 {
		return fmt.Errorf("index gap between %d and %d", prev.Index, curr.Index)
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	if curr.Block < prev.Block {
		return fmt.Errorf("entry %d block %d precedes block %d", curr.Index, curr.Block, prev.Block)
	}
	return nil
}
