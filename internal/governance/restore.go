package governance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

// Restore rebuilds balances, delegations and checkpoints by replaying the
// journal. It must run before any mutation. Operations are re-executed at
// their journaled blocks; every votes_changed entry is checked against the
// rebuilt ledger. The clock ends one block past the last journaled block so
// that every replayed block is determined.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.pending = s.pending[:0] }()

	var (
		replayed int
		last     uint64
	)
	err := s.journal.Range(ctx, 1, func(e *eventlog.Entry) error {
		if head := s.clock.AdvanceTo(e.Block); head != e.Block {
			return fmt.Errorf("replay entry %d: block %d is behind clock %d", e.Index, e.Block, head)
		}
		if err := s.replay(e); err != nil {
			return fmt.Errorf("replay entry %d (%s): %w", e.Index, e.Kind, err)
		}
		s.pending = s.pending[:0]
		last = e.Block
		replayed++
		return nil
	})
	if err != nil {
		return replayed, err
	}
	if replayed > 0 {
		s.clock.AdvanceTo(last + 1)
	}

	s.logger.Info("journal replayed",
		zap.Int("entries", replayed),
		zap.Uint64("head", s.clock.Head()),
	)
	return replayed, nil
}

func (s *Service) replay(e *eventlog.Entry) error {
	switch e.Kind {
	case eventlog.KindMint, eventlog.KindBurn:
		caller, err := parseAddress(e.Actor)
		if err != nil {
			return err
		}
		account, err := parseAddress(e.Account)
		if err != nil {
			return err
		}
		amount, err := parseAmount(e.Amount)
		if err != nil {
			return err
		}
		if e.Kind == eventlog.KindMint {
			return s.token.Mint(caller, account, amount)
		}
		return s.token.Burn(caller, account, amount)

	case eventlog.KindDelegateChanged:
		holder, err := parseAddress(e.Account)
		if err != nil {
			return err
		}
		if e.Counterparty == "" {
			return s.token.Undelegate(holder)
		}
		to, err := parseAddress(e.Counterparty)
		if err != nil {
			return err
		}
		return s.token.Delegate(holder, to)

	case eventlog.KindVotesChanged:
		delegate, err := parseAddress(e.Account)
		if err != nil {
			return err
		}
		want, err := parseAmount(e.Amount)
		if err != nil {
			return err
		}
		// Votes entries follow the operation that produced them; a delegate
		// appears at most once per operation, so its current weight is final.
		if got := s.token.CurrentVotes(delegate); got.Cmp(want) != 0 {
			return fmt.Errorf("votes of %s: journal %s, ledger %s: %w", delegate.Hex(), want, got, ErrJournalMismatch)
		}
		return nil

	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
