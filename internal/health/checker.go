// Package health periodically re-verifies the journal hash chain and reports
// the result to a status sink such as the gRPC health server.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds integrity check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// Verifier re-checks a hash chain. eventlog.Log satisfies it.
type Verifier interface {
	Verify(ctx context.Context) error
}

// StatusFunc receives every transition between serving and not serving.
type StatusFunc func(serving bool)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic journal integrity checks. It reports not serving
// after FailThreshold consecutive failures and serving again on the first
// success after that.
type Checker struct {
	verifier  Verifier
	cfg       Config
	onStatus  StatusFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu        sync.Mutex
	failCount int
	degraded  bool
}

// New creates a new Checker.
func New(verifier Verifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{verifier: verifier, cfg: cfg, logger: logger}
}

// SetStatusFunc configures the status transition callback.
func (h *Checker) SetStatusFunc(fn StatusFunc) {
	h.onStatus = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Run checks on every tick until ctx is done.
func (h *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check verifies the journal once and returns whether it passed.
func (h *Checker) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
	defer cancel()

	err := h.verifier.Verify(checkCtx)
	success := err == nil
	if h.onMetrics != nil {
		h.onMetrics(success)
	}

	h.mu.Lock()
	var transition, serving bool
	if success {
		h.failCount = 0
		if h.degraded {
			h.degraded = false
			transition, serving = true, true
		}
	} else {
		h.failCount++
		if h.failCount == h.cfg.FailThreshold {
			h.degraded = true
			transition = true
		}
	}
	count := h.failCount
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("health: journal verify failed", zap.Int("fail_count", count), zap.Error(err))
	}
	if transition {
		if serving {
			h.logger.Info("health: journal recovered")
		} else {
			h.logger.Error("health: journal degraded", zap.Int("fail_count", count))
		}
		if h.onStatus != nil {
			h.onStatus(serving)
		}
	}
	return success
}

// Degraded reports whether the last threshold of checks failed.
func (h *Checker) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}
