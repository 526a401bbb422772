// Package token implements the token-accounting side of the governance
// token: balances, total supply and the owner-gated mint and burn
// operations. Every supply or delegation change is forwarded to a
// delegation.Tracker at the block reported by the injected clock.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/internal/chain"
	"github.com/jmerrifield20/govledger/internal/delegation"
	"go.uber.org/zap"
)

var (
	// ErrNotOwner is returned when a caller other than the owner mints or burns.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrInsufficientBalance is returned when a burn exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("burn amount exceeds balance")

	// ErrZeroAddress is returned when minting to or burning from the zero address.
	ErrZeroAddress = errors.New("zero address")
)

// Kind names a supply event.
type Kind string

const (
	KindMint Kind = "mint"
	KindBurn Kind = "burn"
)

// Event describes a mint or burn.
type Event struct {
	Kind    Kind
	Block   uint64
	Caller  common.Address
	Account common.Address
	Amount  *big.Int
}

// EventFunc receives supply events. It is called with the token lock held,
// only after the supply change and its vote changes have been applied.
type EventFunc func(Event)

// Token holds balances and total supply. All mutations are serialized by a
// single mutex, inside which the current block is read from the clock, so
// checkpoint writes always see a non-decreasing block.
type Token struct {
	mu        sync.Mutex
	owner     common.Address
	balances  map[common.Address]*big.Int
	supply    *big.Int
	tracker   *delegation.Tracker
	clock     chain.Clock
	observers []EventFunc
	logger    *zap.Logger
}

// New creates a Token owned by owner.
func New(owner common.Address, tracker *delegation.Tracker, clock chain.Clock, logger *zap.Logger) *Token {
	return &Token{
		owner:    owner,
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
		tracker:  tracker,
		clock:    clock,
		logger:   logger,
	}
}

// OnEvent registers fn to be called for every mint and burn.
func (t *Token) OnEvent(fn EventFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Owner returns the address allowed to mint and burn.
func (t *Token) Owner() common.Address {
	return t.owner
}

// Tracker returns the delegation tracker fed by this token.
func (t *Token) Tracker() *delegation.Tracker {
	return t.tracker
}

// BalanceOf returns holder's balance.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balanceOf(holder))
}

// TotalSupply returns the minted-and-not-burned amount.
func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

func (t *Token) balanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return b
	}
	return new(big.Int)
}

// Mint creates amount tokens for to. Only the owner may mint.
func (t *Token) Mint(caller, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if caller != t.owner {
		return fmt.Errorf("mint by %s: %w", caller.Hex(), ErrNotOwner)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrZeroAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint %v: %w", amount, delegation.ErrInvalidAmount)
	}

	block := t.clock.Head()
	if err := t.tracker.OnSupplyIncrease(to, amount, block); err != nil {
		return fmt.Errorf("mint to %s: %w", to.Hex(), err)
	}
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	t.supply = new(big.Int).Add(t.supply, amount)
	t.emit(Event{Kind: KindMint, Block: block, Caller: caller, Account: to, Amount: new(big.Int).Set(amount)})

	t.logger.Info("tokens minted",
		zap.String("to", to.Hex()),
		zap.Stringer("amount", amount),
		zap.Uint64("block", block),
	)
	return nil
}

// Burn destroys amount tokens held by from. Only the owner may burn.
func (t *Token) Burn(caller, from common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if caller != t.owner {
		return fmt.Errorf("burn by %s: %w", caller.Hex(), ErrNotOwner)
	}
	if from == (common.Address{}) {
		return fmt.Errorf("burn: %w", ErrZeroAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("burn %v: %w", amount, delegation.ErrInvalidAmount)
	}
	bal := t.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from %s holding %s: %w", amount, from.Hex(), bal, ErrInsufficientBalance)
	}

	block := t.clock.Head()
	if err := t.tracker.OnSupplyDecrease(from, amount, block); err != nil {
		return fmt.Errorf("burn from %s: %w", from.Hex(), err)
	}
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	t.emit(Event{Kind: KindBurn, Block: block, Caller: caller, Account: from, Amount: new(big.Int).Set(amount)})

	t.logger.Info("tokens burned",
		zap.String("from", from.Hex()),
		zap.Stringer("amount", amount),
		zap.Uint64("block", block),
	)
	return nil
}

// Delegate designates to as the delegate of holder's votes.
func (t *Token) Delegate(holder, to common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.Delegate(holder, to, t.balanceOf(holder), t.clock.Head())
}

// Undelegate clears holder's delegate.
func (t *Token) Undelegate(holder common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.Undelegate(holder, t.balanceOf(holder), t.clock.Head())
}

// CurrentVotes returns account's current voting weight.
func (t *Token) CurrentVotes(account common.Address) *big.Int {
	return t.tracker.Ledger().CurrentWeight(account)
}

// PriorVotes returns account's voting weight as of block, which must be
// below the current head.
func (t *Token) PriorVotes(account common.Address, block uint64) (*big.Int, error) {
	return t.tracker.Ledger().WeightAt(account, block, t.clock.Head())
}

func (t *Token) emit(ev Event) {
	for _, fn := range t.observers {
		fn(ev)
	}
}
