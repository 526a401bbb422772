// Package chain provides the block-height time source for the governance
// ledger. Block heights never move backwards.
package chain

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock reports the current block height.
type Clock interface {
	Head() uint64
}

// Counter is a manually advanced block height. The zero value starts at 0.
type Counter struct {
	mu   sync.RWMutex
	head uint64
}

// NewCounter creates a Counter at start.
func NewCounter(start uint64) *Counter {
	return &Counter{head: start}
}

// Head implements Clock.
func (c *Counter) Head() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Mine advances the head by one block and returns the new head.
func (c *Counter) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head++
	return c.head
}

// Revert undoes the Mine that produced block. The head only moves back when
// block is still the head; it reports whether it moved.
func (c *Counter) Revert(block uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if block == 0 || c.head != block {
		return false
	}
	c.head--
	return true
}

// AdvanceTo moves the head to n if n is ahead of it and returns the
// resulting head.
func (c *Counter) AdvanceTo(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.head {
		c.head = n
	}
	return c.head
}

// Miner advances a block height by one.
type Miner interface {
	Mine() uint64
}

// Producer mines a block on a fixed interval.
type Producer struct {
	miner    Miner
	interval time.Duration
	logger   *zap.Logger
}

// NewProducer creates a Producer. interval must be positive.
func NewProducer(miner Miner, interval time.Duration, logger *zap.Logger) *Producer {
	return &Producer{miner: miner, interval: interval, logger: logger}
}

// Run mines blocks until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			head := p.miner.Mine()
			p.logger.Debug("block produced", zap.Uint64("block", head))
		case <-ctx.Done():
			return
		}
	}
}
