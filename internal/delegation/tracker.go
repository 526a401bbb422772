// Package delegation tracks which account each token holder has designated
// as its vote delegate, and turns delegation changes and supply changes into
// checkpoint writes on the delegates' weights.
package delegation

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"go.uber.org/zap"
)

var (
	// ErrInvalidAmount is returned when a supply hook receives a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidDelegate is returned for the zero address as a delegate target.
	// Use Undelegate to clear a delegate.
	ErrInvalidDelegate = errors.New("invalid delegate address")
)

// Tracker owns the holder → delegate relation and moves weight between
// delegates through a checkpoint.Ledger.
//
// Balances are not tracked here; callers pass the holder's current balance
// in, so the tracker never calls back into token accounting.
type Tracker struct {
	mu        sync.RWMutex
	ledger    *checkpoint.Ledger
	delegates map[common.Address]common.Address
	observers []EventFunc
	logger    *zap.Logger
}

// New creates a Tracker that records weights into ledger.
func New(ledger *checkpoint.Ledger, logger *zap.Logger) *Tracker {
	return &Tracker{
		ledger:    ledger,
		delegates: make(map[common.Address]common.Address),
		logger:    logger,
	}
}

// OnEvent registers fn to be called for every emitted event, in order.
func (t *Tracker) OnEvent(fn EventFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Ledger returns the checkpoint ledger the tracker writes to.
func (t *Tracker) Ledger() *checkpoint.Ledger {
	return t.ledger
}

// DelegateOf returns holder's current delegate. ok is false when none is set.
func (t *Tracker) DelegateOf(holder common.Address) (delegate common.Address, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	delegate, ok = t.delegates[holder]
	return delegate, ok
}

// Assignment is one holder → delegate pair.
type Assignment struct {
	Holder   common.Address
	Delegate common.Address
}

// Assignments returns every current assignment ordered by holder.
func (t *Tracker) Assignments() []Assignment {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Assignment, 0, len(t.delegates))
	for h, d := range t.delegates {
		out = append(out, Assignment{Holder: h, Delegate: d})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Holder[:], out[j].Holder[:]) < 0
	})
	return out
}

// Delegate makes to the delegate of holder as of block. balance is holder's
// current token balance; when positive it moves from the previous delegate
// (if any) to to in a single ledger batch.
func (t *Tracker) Delegate(holder, to common.Address, balance *big.Int, block uint64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("delegate %s to zero address: %w", holder.Hex(), ErrInvalidDelegate)
	}
	return t.reassign(holder, &to, balance, block)
}

// Undelegate clears holder's delegate as of block, removing balance from the
// previous delegate's weight.
func (t *Tracker) Undelegate(holder common.Address, balance *big.Int, block uint64) error {
	return t.reassign(holder, nil, balance, block)
}

func (t *Tracker) reassign(holder common.Address, to *common.Address, balance *big.Int, block uint64) error {
	if balance == nil {
		balance = new(big.Int)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("balance %s of %s: %w", balance, holder.Hex(), checkpoint.ErrInvariantViolation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, hadPrev := t.delegates[holder]
	var from *common.Address
	if hadPrev {
		from = &prev
	}

	var (
		writes []checkpoint.Write
		events []Event
	)
	if !sameDelegate(from, to) && balance.Sign() > 0 {
		if from != nil {
			wr, ev, err := t.adjust(*from, new(big.Int).Neg(balance), block)
			if err != nil {
				return err
			}
			writes, events = append(writes, wr), append(events, ev)
		}
		if to != nil {
			wr, ev, err := t.adjust(*to, balance, block)
			if err != nil {
				return err
			}
			writes, events = append(writes, wr), append(events, ev)
		}
	}

	if err := t.ledger.Apply(block, writes...); err != nil {
		return fmt.Errorf("move votes of %s: %w", holder.Hex(), err)
	}

	if to != nil {
		t.delegates[holder] = *to
	} else {
		delete(t.delegates, holder)
	}

	changed := Event{
		Kind:         KindDelegateChanged,
		Block:        block,
		Delegator:    holder,
		FromDelegate: from,
		ToDelegate:   to,
	}
	t.emit(append([]Event{changed}, events...))

	t.logger.Debug("delegate changed",
		zap.String("holder", holder.Hex()),
		zap.Stringer("from", optionalHex(from)),
		zap.Stringer("to", optionalHex(to)),
		zap.Uint64("block", block),
	)
	return nil
}

// OnSupplyIncrease credits amount of newly minted tokens held by holder to
// holder's delegate, if one is set.
func (t *Tracker) OnSupplyIncrease(holder common.Address, amount *big.Int, block uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("supply increase for %s: %w", holder.Hex(), ErrInvalidAmount)
	}
	return t.moveSupply(holder, amount, block)
}

// OnSupplyDecrease removes amount of burned tokens held by holder from
// holder's delegate, if one is set. The caller has already checked that
// holder's balance covers amount; a delegate weight that would go negative
// is an ErrInvariantViolation.
func (t *Tracker) OnSupplyDecrease(holder common.Address, amount *big.Int, block uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("supply decrease for %s: %w", holder.Hex(), ErrInvalidAmount)
	}
	return t.moveSupply(holder, new(big.Int).Neg(amount), block)
}

func (t *Tracker) moveSupply(holder common.Address, delta *big.Int, block uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delegate, ok := t.delegates[holder]
	if !ok {
		return nil
	}

	wr, ev, err := t.adjust(delegate, delta, block)
	if err != nil {
		return err
	}
	if err := t.ledger.Apply(block, wr); err != nil {
		return fmt.Errorf("update votes of %s: %w", delegate.Hex(), err)
	}
	t.emit([]Event{ev})
	return nil
}

// adjust computes the write that adds delta to delegate's current weight.
// Caller must hold t.mu.
func (t *Tracker) adjust(delegate common.Address, delta *big.Int, block uint64) (checkpoint.Write, Event, error) {
	old := t.ledger.CurrentWeight(delegate)
	next := new(big.Int).Add(old, delta)
	if next.Sign() < 0 {
		return checkpoint.Write{}, Event{}, fmt.Errorf("votes of %s would drop to %s: %w",
			delegate.Hex(), next, checkpoint.ErrInvariantViolation)
	}
	ev := Event{
		Kind:           KindVotesChanged,
		Block:          block,
		Delegate:       delegate,
		PreviousWeight: old,
		NewWeight:      next,
	}
	return checkpoint.Write{Account: delegate, Weight: next}, ev, nil
}

func (t *Tracker) emit(events []Event) {
	for _, ev := range events {
		for _, fn := range t.observers {
			fn(ev)
		}
	}
}

func sameDelegate(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
