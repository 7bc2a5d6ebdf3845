package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BhargavShekhar/meet-p2p/internal/protocol"
	"github.com/BhargavShekhar/meet-p2p/internal/signaling"
)

// Configure the websocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024, // 64 KB
	WriteBufferSize: 64 * 1024, // 64 KB

	// CORS policy is the deployment's concern; the relay accepts any origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that upgrades requests onto the
// signaling hub. Each connection gets a fresh server-assigned id, announced
// to the client as the first message on the link.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "err", err)
			return
		}

		client := signaling.NewClient(hub, conn, uuid.NewString())

		// Announce the assigned connection id before any inbound traffic is
		// processed; the client needs it for the glare tie-break.
		hello, err := protocol.NewEnvelope(protocol.EventSessionCreated, &protocol.SessionCreated{ID: client.ID})
		if err != nil {
			conn.Close()
			return
		}
		client.Send <- hello

		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// StatsHandler reports a snapshot of room membership as JSON.
func StatsHandler(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
			slog.Warn("encode stats", "err", err)
		}
	}
}

// NewMux wires the relay's routes.
func NewMux(hub *signaling.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub))
	return mux
}
