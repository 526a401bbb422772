package checkpoint

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Write is a single weight update for one account.
type Write struct {
	Account common.Address
	Weight  *big.Int
}

// Ledger holds the checkpoint sequences of every account. It is safe for
// concurrent use: reads share a lock, writes are exclusive.
type Ledger struct {
	mu   sync.RWMutex
	seqs map[common.Address][]Checkpoint
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{seqs: make(map[common.Address][]Checkpoint)}
}

// CurrentWeight returns the weight of the account's latest checkpoint, or
// zero when the account has none.
func (l *Ledger) CurrentWeight(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := l.seqs[account]
	if len(seq) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(seq[len(seq)-1].Weight)
}

// WeightAt returns the weight that was in effect for account at block.
// head is the current block; block must be strictly below it.
func (l *Ledger) WeightAt(account common.Address, block, head uint64) (*big.Int, error) {
	if block >= head {
		return nil, fmt.Errorf("weight of %s at block %d (head %d): %w",
			account.Hex(), block, head, ErrNotYetDetermined)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(lookup(l.seqs[account], block)), nil
}

// Record writes account's weight as of block.
func (l *Ledger) Record(account common.Address, weight *big.Int, block uint64) error {
	return l.Apply(block, Write{Account: account, Weight: weight})
}

// Apply writes every update at block as one unit: either all writes land or,
// if any of them would break a sequence invariant, none do. Readers never
// observe a partially applied batch.
func (l *Ledger) Apply(block uint64, writes ...Write) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, w := range writes {
		if err := l.check(w, block); err != nil {
			return err
		}
	}
	for _, w := range writes {
		l.write(w, block)
	}
	return nil
}

func (l *Ledger) check(w Write, block uint64) error {
	if w.Weight == nil || w.Weight.Sign() < 0 {
		return fmt.Errorf("negative weight %v for %s: %w", w.Weight, w.Account.Hex(), ErrInvariantViolation)
	}
	seq := l.seqs[w.Account]
	if n := len(seq); n > 0 && block < seq[n-1].Block {
		return fmt.Errorf("block %d precedes last checkpoint %d for %s: %w",
			block, seq[n-1].Block, w.Account.Hex(), ErrInvariantViolation)
	}
	return nil
}

func (l *Ledger) write(w Write, block uint64) {
	seq := l.seqs[w.Account]
	weight := new(big.Int).Set(w.Weight)

	if n := len(seq); n > 0 && seq[n-1].Block == block {
		seq[n-1].Weight = weight
		return
	}
	l.seqs[w.Account] = append(seq, Checkpoint{Block: block, Weight: weight})
}

// NumCheckpoints returns the length of the account's sequence.
func (l *Ledger) NumCheckpoints(account common.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seqs[account])
}

// CheckpointAt returns the i-th checkpoint of account.
func (l *Ledger) CheckpointAt(account common.Address, i int) (Checkpoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := l.seqs[account]
	if i < 0 || i >= len(seq) {
		return Checkpoint{}, false
	}
	return seq[i].clone(), true
}

// Checkpoints returns a copy of the account's full sequence.
func (l *Ledger) Checkpoints(account common.Address) []Checkpoint {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seq := l.seqs[account]
	out := make([]Checkpoint, len(seq))
	for i, c := range seq {
		out[i] = c.clone()
	}
	return out
}

// Accounts returns every account with at least one checkpoint, in byte order.
func (l *Ledger) Accounts() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]common.Address, 0, len(l.seqs))
	for a := range l.seqs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
