// Package stream fans journal entries out to websocket subscribers.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

const (
	writeWait   = 10 * time.Second
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts entries to every connected subscriber. A subscriber whose
// buffer is full is dropped rather than blocking publishers.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

type subscriber struct {
	send chan *eventlog.Entry
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// Publish delivers e to all current subscribers without blocking.
func (h *Hub) Publish(e *eventlog.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- e:
		default:
			delete(h.subs, s)
			close(s.send)
			h.logger.Warn("stream subscriber dropped: buffer full")
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) add() *subscriber {
	s := &subscriber{send: make(chan *eventlog.Entry, sendBufSize)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

// ServeHTTP upgrades the request to a websocket and streams entries as JSON
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s := h.add()
	defer h.remove(s)

	// Reader goroutine: detect client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e, ok := <-s.send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-closed:
			return
		}
	}
}
