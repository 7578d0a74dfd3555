package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/Blockstream/gr-blocksat/internal/iqsource"
	"github.com/Blockstream/gr-blocksat/internal/receiver"
)

// Handlers holds the dashboard's HTTP API handlers and the most recent
// telemetry snapshot, so a freshly opened "/api/status" poll always has
// something to show immediately rather than waiting for the next frame
// to complete. A newly connected WebSocket client is not sent that
// snapshot; it receives telemetry from the next Observe call on.
type Handlers struct {
	wsHub *WSHub

	mu     sync.Mutex
	latest receiver.Telemetry
	active int32 // atomic bool: whether a Chain/Backend is currently running
}

// NewHandlers creates new API handlers.
func NewHandlers() *Handlers {
	return &Handlers{wsHub: NewWSHub()}
}

// SetActive marks whether a receive pipeline is currently running.
func (h *Handlers) SetActive(active bool) {
	var v int32
	if active {
		v = 1
	}
	atomic.StoreInt32(&h.active, v)
}

// Observe records t as the latest snapshot and forwards it to the hub.
func (h *Handlers) Observe(t receiver.Telemetry) {
	h.mu.Lock()
	h.latest = t
	h.mu.Unlock()
	h.wsHub.BroadcastTelemetry(t)
}

// HandleWebSocket upgrades the connection and streams telemetry pushes;
// inbound messages are drained and ignored since the dashboard is
// read-only.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade error: %v", err)
		return
	}
	h.wsHub.AddClient(conn)

	go func() {
		defer h.wsHub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleStatus returns whether a receive pipeline is active and the
// most recent telemetry snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	t := h.latest
	h.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"active":    atomic.LoadInt32(&h.active) == 1,
		"telemetry": TelemetryPayload{Locked: t.Locked, SNRDB: t.SNRDB, CoarseHz: t.CoarseHz, FineCFO: t.FineCFO},
	})
}

// HandleDevices lists available IQ capture devices.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := iqsource.ListDevices()
	if err != nil {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"devices": devices,
	})
}
