// Package governance wires the governance token, its delegation tracker and
// the block clock to the committed-state journal. Every mutation is executed
// under one lock, journaled in emission order and published to listeners.
package governance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/internal/chain"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"github.com/jmerrifield20/govledger/internal/delegation"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"github.com/jmerrifield20/govledger/internal/token"
	"go.uber.org/zap"
)

// ErrJournalMismatch is returned by Restore when a journaled vote change
// disagrees with the replayed ledger.
var ErrJournalMismatch = errors.New("journal does not match replayed ledger")

// ErrDegraded is returned for every mutation after a journal append has
// failed. In-memory state may then be ahead of the journal, so the service
// refuses writes until it is restarted and restored from the journal.
var ErrDegraded = errors.New("governance service degraded: journal append failed, restart required")

// Config controls block production for mutations.
type Config struct {
	// Automine mines a new block before every mutation, so each mutation
	// lands in its own block.
	Automine bool
}

// AppendHook is called for every entry appended to the journal.
type AppendHook func(*eventlog.Entry)

// Service is the entry point for governance mutations and queries.
type Service struct {
	mu      sync.Mutex
	token   *token.Token
	clock   *chain.Counter
	journal eventlog.Log
	cfg     Config
	hooks   []AppendHook
	pending []eventlog.Record
	logger  *zap.Logger

	degraded   error
	onDegraded []func(error)
}

// NewService creates a Service. The token must use clock as its Clock.
func NewService(tok *token.Token, clock *chain.Counter, journal eventlog.Log, cfg Config, logger *zap.Logger) *Service {
	s := &Service{
		token:   tok,
		clock:   clock,
		journal: journal,
		cfg:     cfg,
		logger:  logger,
	}
	tok.OnEvent(s.onSupplyEvent)
	tok.Tracker().OnEvent(s.onDelegationEvent)
	return s
}

// OnAppend registers fn to receive every newly journaled entry.
func (s *Service) OnAppend(fn AppendHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// OnDegraded registers fn to be called once, with the journal error, when the
// service stops accepting mutations.
func (s *Service) OnDegraded(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDegraded = append(s.onDegraded, fn)
}

// Degraded returns the journal error that stopped the service, or nil.
func (s *Service) Degraded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Journal returns the underlying journal.
func (s *Service) Journal() eventlog.Log {
	return s.journal
}

// ── Mutations ────────────────────────────────────────────────────────────────

// Mint mints amount to to on behalf of caller and returns the block it landed in.
func (s *Service) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) (uint64, error) {
	return s.mutate(ctx, func() error { return s.token.Mint(caller, to, amount) })
}

// Burn burns amount from from on behalf of caller.
func (s *Service) Burn(ctx context.Context, caller, from common.Address, amount *big.Int) (uint64, error) {
	return s.mutate(ctx, func() error { return s.token.Burn(caller, from, amount) })
}

// Delegate sets holder's delegate to to.
func (s *Service) Delegate(ctx context.Context, holder, to common.Address) (uint64, error) {
	return s.mutate(ctx, func() error { return s.token.Delegate(holder, to) })
}

// Undelegate clears holder's delegate.
func (s *Service) Undelegate(ctx context.Context, holder common.Address) (uint64, error) {
	return s.mutate(ctx, func() error { return s.token.Undelegate(holder) })
}

// Mine advances the chain by one block.
func (s *Service) Mine() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Mine()
}

func (s *Service) mutate(ctx context.Context, op func() error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded != nil {
		return s.clock.Head(), fmt.Errorf("%w: %w", ErrDegraded, s.degraded)
	}

	var mined uint64
	if s.cfg.Automine {
		mined = s.clock.Mine()
	}
	block := s.clock.Head()

	s.pending = s.pending[:0]
	if err := op(); err != nil {
		s.pending = s.pending[:0]
		// A rejected mutation wrote nothing, so the block it mined is unused.
		if mined != 0 && s.clock.Revert(mined) {
			block = s.clock.Head()
		}
		if errors.Is(err, checkpoint.ErrInvariantViolation) {
			s.logger.Error("checkpoint invariant violated", zap.Uint64("block", block), zap.Error(err))
		}
		return block, err
	}

	for _, rec := range s.pending {
		e, err := s.journal.Append(ctx, rec)
		if err != nil {
			s.pending = s.pending[:0]
			s.degrade(rec, err)
			return block, fmt.Errorf("%w: journal %s: %w", ErrDegraded, rec.Kind, err)
		}
		for _, fn := range s.hooks {
			fn(e)
		}
	}
	s.pending = s.pending[:0]
	return block, nil
}

// degrade latches the service into refusing mutations. Must hold s.mu.
func (s *Service) degrade(rec eventlog.Record, err error) {
	s.degraded = fmt.Errorf("append %s at block %d: %w", rec.Kind, rec.Block, err)
	s.logger.Error("journal append failed; refusing mutations until restart",
		zap.String("kind", string(rec.Kind)),
		zap.Uint64("block", rec.Block),
		zap.Error(err),
	)
	for _, fn := range s.onDegraded {
		fn(s.degraded)
	}
}

// onSupplyEvent fires after the vote changes the supply change caused. The
// supply record is journaled ahead of them so replay reproduces the order.
func (s *Service) onSupplyEvent(ev token.Event) {
	rec := eventlog.Record{
		Block:   ev.Block,
		Kind:    eventlog.Kind(ev.Kind),
		Actor:   ev.Caller.Hex(),
		Account: ev.Account.Hex(),
		Amount:  ev.Amount.String(),
	}
	s.pending = append([]eventlog.Record{rec}, s.pending...)
}

func (s *Service) onDelegationEvent(ev delegation.Event) {
	switch ev.Kind {
	case delegation.KindDelegateChanged:
		s.pending = append(s.pending, eventlog.Record{
			Block:        ev.Block,
			Kind:         eventlog.KindDelegateChanged,
			Actor:        ev.Delegator.Hex(),
			Account:      ev.Delegator.Hex(),
			Previous:     hexOrEmpty(ev.FromDelegate),
			Counterparty: hexOrEmpty(ev.ToDelegate),
		})
	case delegation.KindVotesChanged:
		s.pending = append(s.pending, eventlog.Record{
			Block:    ev.Block,
			Kind:     eventlog.KindVotesChanged,
			Account:  ev.Delegate.Hex(),
			Previous: ev.PreviousWeight.String(),
			Amount:   ev.NewWeight.String(),
		})
	}
}

func hexOrEmpty(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Head returns the current block.
func (s *Service) Head() uint64 {
	return s.clock.Head()
}

// Owner returns the token owner.
func (s *Service) Owner() common.Address {
	return s.token.Owner()
}

// CurrentVotes returns account's current voting weight.
func (s *Service) CurrentVotes(account common.Address) *big.Int {
	return s.token.CurrentVotes(account)
}

// PriorVotes returns account's voting weight as of a block below the head.
func (s *Service) PriorVotes(account common.Address, block uint64) (*big.Int, error) {
	return s.token.PriorVotes(account, block)
}

// Checkpoints returns account's full checkpoint history.
func (s *Service) Checkpoints(account common.Address) []checkpoint.Checkpoint {
	return s.token.Tracker().Ledger().Checkpoints(account)
}

// DelegateOf returns holder's delegate, if any.
func (s *Service) DelegateOf(holder common.Address) (common.Address, bool) {
	return s.token.Tracker().DelegateOf(holder)
}

// BalanceOf returns holder's token balance.
func (s *Service) BalanceOf(holder common.Address) *big.Int {
	return s.token.BalanceOf(holder)
}

// TotalSupply returns the token's total supply.
func (s *Service) TotalSupply() *big.Int {
	return s.token.TotalSupply()
}

// Verify checks the journal's hash chain.
func (s *Service) Verify(ctx context.Context) error {
	return s.journal.Verify(ctx)
}
