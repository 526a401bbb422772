// Package checkpoint implements the per-account vote checkpoint ledger.
//
// Every account that has ever been credited with voting weight owns an
// ordered sequence of checkpoints. Each checkpoint records the account's
// weight as of a block. Blocks strictly increase along a sequence; a second
// write at the tail's block rewrites the tail in place, so a sequence holds
// at most one checkpoint per block.
//
// Current weight is the tail of the sequence. Historical weight is found by
// binary search and is only reported for blocks that are strictly in the
// past relative to the caller-supplied head.
package checkpoint

import (
	"errors"
	"math/big"
)

var (
	// ErrNotYetDetermined is returned by WeightAt when the queried block is
	// not strictly below the current head.
	ErrNotYetDetermined = errors.New("not yet determined")

	// ErrInvariantViolation is returned when a write would move a sequence
	// backwards in time or drive a weight negative. It indicates a bug in
	// the caller and must not be retried.
	ErrInvariantViolation = errors.New("checkpoint invariant violation")
)

// Checkpoint is the weight of an account as of a block.
type Checkpoint struct {
	Block  uint64
	Weight *big.Int
}

// clone returns a copy that does not share the weight's backing storage.
func (c Checkpoint) clone() Checkpoint {
	return Checkpoint{Block: c.Block, Weight: new(big.Int).Set(c.Weight)}
}
