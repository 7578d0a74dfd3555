// Package monitor serves a live view of receiver.Chain/Backend state
// over HTTP and WebSocket: lock state, SNR/MER, coarse and fine CFO.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Blockstream/gr-blocksat/internal/receiver"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard, no cross-origin concern
	},
}

// WSMessage is the envelope every WebSocket push uses.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// TelemetryPayload mirrors receiver.Telemetry for JSON transport.
type TelemetryPayload struct {
	Locked   bool    `json:"locked"`
	SNRDB    float64 `json:"snrDb"`
	CoarseHz float64 `json:"coarseCfo"`
	FineCFO  float64 `json:"fineCfo"`
}

// WSHub fans a single telemetry stream out to every connected browser.
type WSHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewWSHub creates an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*websocket.Conn]bool)}
}

// AddClient registers a new WebSocket connection.
func (h *WSHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Printf("monitor: client connected (%d total)", len(h.clients))
}

// RemoveClient removes and closes a WebSocket connection.
func (h *WSHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	conn.Close()
	log.Printf("monitor: client disconnected (%d remaining)", len(h.clients))
}

// Broadcast sends msg to every connected client, dropping any that
// error (e.g. a closed connection) rather than letting one bad client
// stall the rest.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("monitor: marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("monitor: write error: %v", err)
			go h.RemoveClient(conn)
		}
	}
}

// BroadcastTelemetry pushes one receiver.Telemetry snapshot.
func (h *WSHub) BroadcastTelemetry(t receiver.Telemetry) {
	h.Broadcast(WSMessage{
		Type: "telemetry",
		Payload: TelemetryPayload{
			Locked:   t.Locked,
			SNRDB:    t.SNRDB,
			CoarseHz: t.CoarseHz,
			FineCFO:  t.FineCFO,
		},
	})
}

// BroadcastLog pushes a free-form log line, for startup/shutdown and
// error notices the dashboard should surface alongside telemetry.
func (h *WSHub) BroadcastLog(level, message string) {
	h.Broadcast(WSMessage{
		Type: "log",
		Payload: map[string]string{
			"level":   level,
			"message": message,
		},
	})
}
