package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
	"github.com/BhargavShekhar/meet-p2p/internal/server"
	"github.com/BhargavShekhar/meet-p2p/internal/signaling"
)

// testRelay is a full relay stack behind an httptest listener.
type testRelay struct {
	hub *signaling.Hub
	srv *httptest.Server
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	hub := signaling.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewMux(hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testRelay{hub: hub, srv: srv}
}

func (r *testRelay) wsURL() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http") + "/ws"
}

// wsClient wraps one dialed websocket for test scripting.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

// dial connects a client and consumes the session:created hello.
func dial(t *testing.T, relay *testRelay) *wsClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(relay.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn}
	env := c.recv()
	if env.Event != protocol.EventSessionCreated {
		t.Fatalf("first event=%q, want %q", env.Event, protocol.EventSessionCreated)
	}
	var created protocol.SessionCreated
	c.decode(env, &created)
	if created.ID == "" {
		t.Fatal("session:created without id")
	}
	c.id = created.ID
	return c
}

func (c *wsClient) send(event string, data any) {
	c.t.Helper()
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		c.t.Fatalf("encode %s: %v", event, err)
	}
	if err := c.conn.WriteJSON(env); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
}

func (c *wsClient) recv() *protocol.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return &env
}

// expect reads the next envelope and asserts its event name.
func (c *wsClient) expect(event string) *protocol.Envelope {
	c.t.Helper()
	env := c.recv()
	if env.Event != event {
		c.t.Fatalf("event=%q, want %q", env.Event, event)
	}
	return env
}

// expectSilence asserts nothing arrives within a short window.
func (c *wsClient) expectSilence() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var env protocol.Envelope
	if err := c.conn.ReadJSON(&env); err == nil {
		c.t.Fatalf("unexpected envelope %q", env.Event)
	}
	c.conn.SetReadDeadline(time.Time{})
}

func (c *wsClient) decode(env *protocol.Envelope, v any) {
	c.t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.t.Fatalf("decode %s: %v", env.Event, err)
	}
}

func (c *wsClient) join(label, room string) {
	c.t.Helper()
	c.send(protocol.EventRoomJoin, &protocol.JoinRoom{Label: label, RoomCode: room})
	c.expect(protocol.EventRoomJoin)
}

func TestHealthEndpoint(t *testing.T) {
	relay := newTestRelay(t)

	resp, err := http.Get(relay.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	relay := newTestRelay(t)

	alice := dial(t, relay)
	alice.join("alice", "stats-room")

	resp, err := http.Get(relay.srv.URL + "/stats")
	if err != nil {
		t.Fatalf("get /stats: %v", err)
	}
	defer resp.Body.Close()

	var stats signaling.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Clients != 1 {
		t.Fatalf("clients=%d, want 1", stats.Clients)
	}
	members := stats.Rooms["stats-room"]
	if len(members) != 1 || members[0] != alice.id {
		t.Fatalf("members=%v, want [%s]", members, alice.id)
	}
}

// TestNegotiationRelay walks the full happy-path exchange at the wire level:
// join, arrival notification, offer, answer and candidates in both
// directions, then a hang-up.
func TestNegotiationRelay(t *testing.T) {
	relay := newTestRelay(t)

	alice := dial(t, relay)
	bob := dial(t, relay)
	alice.join("alice", "meet-1")

	bob.send(protocol.EventRoomJoin, &protocol.JoinRoom{Label: "bob", RoomCode: "meet-1"})
	bob.expect(protocol.EventRoomJoin)

	env := alice.expect(protocol.EventUserJoined)
	var arrival protocol.UserJoined
	alice.decode(env, &arrival)
	if arrival.ID != bob.id || arrival.Label != "bob" {
		t.Fatalf("user:joined=%+v, want id=%s label=bob", arrival, bob.id)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0 alice"}`)
	alice.send(protocol.EventUserCall, &protocol.CallOffer{To: bob.id, Offer: offer})

	env = bob.expect(protocol.EventIncomingCall)
	var incoming protocol.IncomingCall
	bob.decode(env, &incoming)
	if incoming.From != alice.id {
		t.Fatalf("offer from=%q, want %s", incoming.From, alice.id)
	}
	if string(incoming.Offer) != string(offer) {
		t.Fatalf("offer altered: %s", incoming.Offer)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0 bob"}`)
	bob.send(protocol.EventCallAccepted, &protocol.CallAccepted{To: incoming.From, Answer: answer})

	env = alice.expect(protocol.EventCallAccepted)
	var accepted protocol.CallAccepted
	alice.decode(env, &accepted)
	if accepted.From != bob.id || string(accepted.Answer) != string(answer) {
		t.Fatalf("call:accepted=%+v, want from=%s", accepted, bob.id)
	}

	alice.send(protocol.EventICECandidate, &protocol.ICECandidate{To: bob.id, Candidate: json.RawMessage(`{"candidate":"a1"}`)})
	bob.send(protocol.EventICECandidate, &protocol.ICECandidate{To: alice.id, Candidate: json.RawMessage(`{"candidate":"b1"}`)})

	env = bob.expect(protocol.EventICECandidate)
	var cand protocol.ICECandidate
	bob.decode(env, &cand)
	if cand.From != alice.id {
		t.Fatalf("candidate from=%q, want %s", cand.From, alice.id)
	}
	alice.expect(protocol.EventICECandidate)

	alice.send(protocol.EventCallEnded, &protocol.CallEnded{To: bob.id})
	env = bob.expect(protocol.EventCallEnded)
	var ended protocol.CallEnded
	bob.decode(env, &ended)
	if ended.From != alice.id {
		t.Fatalf("call:ended from=%q, want %s", ended.From, alice.id)
	}
}

// TestDisconnectCleanup covers a peer vanishing mid-call: the survivor's
// follow-up messages to the gone id are dropped without an error, and the
// survivor can keep using the relay.
func TestDisconnectCleanup(t *testing.T) {
	relay := newTestRelay(t)

	alice := dial(t, relay)
	bob := dial(t, relay)
	alice.join("alice", "meet-2")
	bob.join("bob", "meet-2")
	alice.expect(protocol.EventUserJoined)

	goneID := alice.id
	alice.conn.Close()

	// Wait for the hub to process the disconnect.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if stats := relay.hub.Stats(); stats.Clients == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub never observed the disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	bob.send(protocol.EventICECandidate, &protocol.ICECandidate{To: goneID, Candidate: json.RawMessage(`{"candidate":"b1"}`)})
	bob.send(protocol.EventCallEnded, &protocol.CallEnded{To: goneID})
	bob.expectSilence()

	// The survivor is unaffected: it can still join a fresh room.
	bob.join("bob", "meet-3")

	stats := relay.hub.Stats()
	if _, ok := stats.Rooms["meet-2"]; ok {
		t.Fatalf("meet-2 not reclaimed: %v", stats.Rooms)
	}
	if members := stats.Rooms["meet-3"]; len(members) != 1 || members[0] != bob.id {
		t.Fatalf("meet-3 members=%v, want [%s]", members, bob.id)
	}
}

func TestInvalidMessageBouncesToSenderOnly(t *testing.T) {
	relay := newTestRelay(t)

	alice := dial(t, relay)
	bob := dial(t, relay)
	alice.join("alice", "meet-4")
	bob.join("bob", "meet-4")
	alice.expect(protocol.EventUserJoined)

	bob.send("room:flood", map[string]string{"x": "y"})

	env := bob.expect(protocol.EventError)
	var perr protocol.ErrorPayload
	bob.decode(env, &perr)
	if perr.Error == "" {
		t.Fatal("error event without message")
	}
	alice.expectSilence()
}
