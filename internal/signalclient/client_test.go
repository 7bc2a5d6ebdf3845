package signalclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// echoRelay upgrades one connection, sends a hello and echoes everything back.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := protocol.NewEnvelope(protocol.EventSessionCreated, &protocol.SessionCreated{ID: "conn-test"})
		if err := conn.WriteJSON(hello); err != nil {
			return
		}
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if err := conn.WriteJSON(&env); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientRoundTrip(t *testing.T) {
	srv := echoRelay(t)
	defer srv.Close()

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case env := <-c.Incoming():
		if env.Event != protocol.EventSessionCreated {
			t.Fatalf("first event=%q, want %q", env.Event, protocol.EventSessionCreated)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hello never arrived")
	}

	out, _ := protocol.NewEnvelope(protocol.EventRoomJoin, &protocol.JoinRoom{Label: "alice", RoomCode: "r1"})
	c.Send(out)

	select {
	case env := <-c.Incoming():
		if env.Event != protocol.EventRoomJoin {
			t.Fatalf("echo event=%q, want %q", env.Event, protocol.EventRoomJoin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}
}

func TestIncomingClosesOnLinkLoss(t *testing.T) {
	srv := echoRelay(t)

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	<-c.Incoming() // hello
	srv.CloseClientConnections()
	srv.Close()

	select {
	case _, ok := <-c.Incoming():
		if ok {
			t.Fatal("expected closed channel, got envelope")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming never closed")
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	c := NewClient("://not-a-url")
	if err := c.Connect(); err == nil {
		t.Fatal("expected error")
	}
}

// TestCloseFlushesQueuedEnvelopes covers a hang-up queued right before
// shutdown: Close must not return until the writer drained the queue.
func TestCloseFlushesQueuedEnvelopes(t *testing.T) {
	received := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env.Event
		}
	}))
	defer srv.Close()

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 3; i++ {
		env, _ := protocol.NewEnvelope(protocol.EventCallEnded, &protocol.CallEnded{To: "conn-peer"})
		c.Send(env)
	}
	c.Close()

	for i := 0; i < 3; i++ {
		select {
		case event := <-received:
			if event != protocol.EventCallEnded {
				t.Fatalf("event=%q, want %q", event, protocol.EventCallEnded)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 3 queued envelopes reached the relay", i)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := echoRelay(t)
	defer srv.Close()

	c := NewClient(wsURL(srv))
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Close()
	c.Close()

	// Send after close is discarded, not blocked.
	env, _ := protocol.NewEnvelope(protocol.EventRoomJoin, &protocol.JoinRoom{Label: "a", RoomCode: "r"})
	done := make(chan struct{})
	go func() {
		c.Send(env)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked after Close")
	}
}
