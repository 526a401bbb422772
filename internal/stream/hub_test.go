package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

func TestHub_deliversPublishedEntries(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	hub.Publish(&eventlog.Entry{Index: 7, Kind: eventlog.KindMint, Amount: "42"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got eventlog.Entry
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Index != 7 || got.Kind != eventlog.KindMint || got.Amount != "42" {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestHub_dropsSlowSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := hub.add()

	for i := 0; i < sendBufSize+1; i++ {
		hub.Publish(&eventlog.Entry{Index: i})
	}
	if hub.Subscribers() != 0 {
		t.Errorf("expected slow subscriber to be dropped, have %d", hub.Subscribers())
	}

	// Removing an already-dropped subscriber must not panic.
	hub.remove(s)
}
