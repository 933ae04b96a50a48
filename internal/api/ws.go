package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"festival-orders/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamEvents upgrades to a websocket and pushes the tenant's snapshot
// followed by its ordered event stream. The hub delivers events on a single
// goroutine per subscriber, so writes never interleave.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Error("ws_upgrade_failed", err, map[string]any{"tenant_id": tenantID})
		return
	}

	unsubscribe, err := h.hub.Subscribe(r.Context(), tenantID, func(ev domain.Event) {
		if werr := conn.WriteJSON(ev); werr != nil {
			h.lg.Debug("ws_write_failed", map[string]any{"tenant_id": tenantID})
		}
	})
	if err != nil {
		h.lg.Error("ws_subscribe_failed", err, map[string]any{"tenant_id": tenantID})
		_ = conn.Close()
		return
	}

	// reader loop only detects the peer going away
	go func() {
		defer unsubscribe()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
