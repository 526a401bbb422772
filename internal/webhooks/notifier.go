// Package webhooks pushes committed journal entries to configured HTTP
// endpoints, signed with a per-target HMAC secret.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

// SignatureHeader carries "sha256=<hex hmac of body>".
const SignatureHeader = "X-Govledger-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Config holds notifier configuration.
type Config struct {
	Targets     []Target
	Timeout     time.Duration
	QueueSize   int
	RetryDelays []time.Duration // delay before attempts 2..n
}

// Notifier queues journal entries and delivers them to every matching target.
// Notify never blocks the caller; entries are dropped when the queue is full.
type Notifier struct {
	cfg        Config
	queue      chan *eventlog.Entry
	httpClient *http.Client
	onMetrics  MetricsRecorder
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a Notifier. Call Run to start delivering.
func NewNotifier(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RetryDelays == nil {
		// Exponential backoff: 1s, 5s.
		cfg.RetryDelays = []time.Duration{1 * time.Second, 5 * time.Second}
	}
	return &Notifier{
		cfg:        cfg,
		queue:      make(chan *eventlog.Entry, cfg.QueueSize),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (n *Notifier) SetMetricsRecorder(fn MetricsRecorder) {
	n.onMetrics = fn
}

// Notify enqueues e for delivery. It has the shape of a governance append hook.
func (n *Notifier) Notify(e *eventlog.Entry) {
	if len(n.cfg.Targets) == 0 {
		return
	}
	select {
	case n.queue <- e:
	default:
		n.logger.Warn("webhook: queue full, dropping entry",
			zap.Int("index", e.Index),
			zap.String("kind", string(e.Kind)),
		)
	}
}

// Run drains the queue until ctx is done, then waits for in-flight
// deliveries to finish.
func (n *Notifier) Run(ctx context.Context) {
	defer n.wg.Wait()
	for {
		select {
		case e := <-n.queue:
			n.dispatch(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch fans an entry out to all matching targets. Deliveries for one
// entry run in parallel; entries are dispatched in journal order.
func (n *Notifier) dispatch(ctx context.Context, e *eventlog.Entry) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      "journal." + string(e.Kind),
		Timestamp: time.Now().UTC(),
		Entry:     e,
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	for _, t := range n.cfg.Targets {
		if !t.wants(e.Kind) {
			continue
		}
		n.wg.Add(1)
		go func(t Target) {
			defer n.wg.Done()
			n.deliver(ctx, t, event.ID, body)
		}(t)
	}
}

// deliver sends the body to a single target with retries.
func (n *Notifier) deliver(ctx context.Context, t Target, eventID string, body []byte) {
	signature := signPayload(body, t.Secret)
	attempts := len(n.cfg.RetryDelays) + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(n.cfg.RetryDelays[attempt-2]):
			case <-ctx.Done():
				return
			}
		}

		success, statusCode, errMsg := n.doDelivery(ctx, t.URL, body, signature)

		if n.onMetrics != nil {
			n.onMetrics(success)
		}

		if success {
			return
		}

		n.logger.Warn("webhook: delivery failed",
			zap.String("url", t.URL),
			zap.String("event_id", eventID),
			zap.Int("attempt", attempt),
			zap.Int("status", statusCode),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (n *Notifier) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(signPayload(body, secret)), []byte(signature))
}
