package signalclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
)

func startHandler(t *testing.T) (chan *protocol.Envelope, *Handler) {
	t.Helper()
	incoming := make(chan *protocol.Envelope, 8)
	h := NewHandler(incoming)
	go h.Start()
	return incoming, h
}

func push(t *testing.T, incoming chan *protocol.Envelope, event string, data any) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	incoming <- env
}

func TestHandlerRoutesTypedEvents(t *testing.T) {
	incoming, h := startHandler(t)

	push(t, incoming, protocol.EventSessionCreated, &protocol.SessionCreated{ID: "conn-a"})
	push(t, incoming, protocol.EventUserJoined, &protocol.UserJoined{ID: "conn-b", Label: "bob"})
	push(t, incoming, protocol.EventIncomingCall, &protocol.IncomingCall{From: "conn-b", Offer: json.RawMessage(`{}`)})
	push(t, incoming, protocol.EventCallEnded, &protocol.CallEnded{From: "conn-b"})
	push(t, incoming, protocol.EventError, &protocol.ErrorPayload{Error: "boom"})

	select {
	case p := <-h.SessionCreated:
		if p.ID != "conn-a" {
			t.Fatalf("session id=%q, want conn-a", p.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session:created never routed")
	}
	select {
	case p := <-h.UserJoined:
		if p.ID != "conn-b" {
			t.Fatalf("joined id=%q, want conn-b", p.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("user:joined never routed")
	}
	select {
	case p := <-h.IncomingCall:
		if p.From != "conn-b" {
			t.Fatalf("offer from=%q, want conn-b", p.From)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming:call never routed")
	}
	select {
	case p := <-h.CallEnded:
		if p.From != "conn-b" {
			t.Fatalf("hang-up from=%q, want conn-b", p.From)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call:ended never routed")
	}
	select {
	case msg := <-h.ServerError:
		if msg != "boom" {
			t.Fatalf("error=%q, want boom", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error never routed")
	}
}

func TestHandlerDiscardsMalformedEnvelopes(t *testing.T) {
	incoming, h := startHandler(t)

	incoming <- &protocol.Envelope{Event: "server:unknown", Data: json.RawMessage(`{}`)}
	push(t, incoming, protocol.EventIncomingCall, &protocol.IncomingCall{Offer: json.RawMessage(`{}`)}) // no sender
	push(t, incoming, protocol.EventUserJoined, &protocol.UserJoined{ID: "conn-b", Label: "bob"})

	// Only the valid event comes through.
	select {
	case p := <-h.UserJoined:
		if p.ID != "conn-b" {
			t.Fatalf("joined id=%q, want conn-b", p.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event never routed")
	}
	select {
	case p := <-h.IncomingCall:
		t.Fatalf("malformed offer routed: %+v", p)
	default:
	}
}

func TestHandlerClosesWhenStreamEnds(t *testing.T) {
	incoming, h := startHandler(t)
	close(incoming)

	select {
	case <-h.Closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Closed never closed")
	}
}

func TestPickAddress(t *testing.T) {
	tests := []struct {
		name    string
		ips     []string
		want    string
		wantErr bool
	}{
		{name: "empty", ips: nil, wantErr: true},
		{name: "single v4", ips: []string{"192.0.2.1"}, want: "192.0.2.1"},
		{name: "prefers v4", ips: []string{"2001:db8::1", "192.0.2.7"}, want: "192.0.2.7"},
		{name: "v6 only", ips: []string{"2001:db8::1", "2001:db8::2"}, want: "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickAddress(tt.ips)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("pickAddress: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookupHostPassesLiteralIPs(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "192.0.2.9", "::1"} {
		got, err := lookupHost(ip)
		if err != nil {
			t.Fatalf("lookupHost(%s): %v", ip, err)
		}
		if got != ip {
			t.Fatalf("lookupHost(%s)=%q, want passthrough", ip, got)
		}
	}
}
