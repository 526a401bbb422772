package checkpoint

import "math/big"

var zero = new(big.Int)

// lookup returns the weight of the last checkpoint whose block is at or
// before block. seq must be ordered by strictly increasing block.
func lookup(seq []Checkpoint, block uint64) *big.Int {
	n := len(seq)
	if n == 0 {
		return zero
	}
	if seq[n-1].Block <= block {
		return seq[n-1].Weight
	}
	if seq[0].Block > block {
		return zero
	}

	// Invariant: seq[lo].Block <= block < seq[hi].Block.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		switch c := seq[mid].Block; {
		case c == block:
			return seq[mid].Weight
		case c < block:
			lo = mid
		default:
			hi = mid
		}
	}
	return seq[lo].Weight
}
