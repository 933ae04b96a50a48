package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"festival-orders/internal/common/logger"
	"festival-orders/internal/domain"
	"festival-orders/internal/hub"
	"festival-orders/internal/ledger"
	"festival-orders/internal/lifecycle"
	"festival-orders/internal/offline"
	"festival-orders/internal/ratelimit"
	"festival-orders/internal/registry"
	"festival-orders/internal/stats"
)

type Handler struct {
	registry  *registry.Registry
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Manager
	stats     *stats.Aggregator
	hub       *hub.Hub
	limiter   *ratelimit.Limiter
	queue     *offline.Queue
	lg        *logger.Logger
}

func NewHandler(reg *registry.Registry, led *ledger.Ledger, lc *lifecycle.Manager, agg *stats.Aggregator, h *hub.Hub, limiter *ratelimit.Limiter, queue *offline.Queue) *Handler {
	return &Handler{
		registry:  reg,
		ledger:    led,
		lifecycle: lc,
		stats:     agg,
		hub:       h,
		limiter:   limiter,
		queue:     queue,
		lg:        logger.New("api"),
	}
}

// Router wires the tenant-scoped HTTP surface. Order placement goes through
// the admission gate before it can reach the lifecycle manager.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/tenants", h.createTenant).Methods(http.MethodPost)
	r.HandleFunc("/tenants", h.listTenants).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}", h.getTenant).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/open", h.setOpen).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/wait-time", h.setWaitTime).Methods(http.MethodPost)

	r.HandleFunc("/tenants/{id}/menu", h.getMenu).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/menu", h.addMenuItem).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/menu/{itemID}", h.updateMenuItem).Methods(http.MethodPatch)
	r.HandleFunc("/tenants/{id}/menu/{itemID}/stock", h.updateStock).Methods(http.MethodPost)

	r.HandleFunc("/tenants/{id}/orders", rateLimited(h.limiter, "place_order", h.placeOrder)).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/orders", h.listOrders).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/orders", h.clearOrders).Methods(http.MethodDelete)
	r.HandleFunc("/tenants/{id}/orders/status", h.checkStatuses).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/orders/{orderID}/status", h.updateOrderStatus).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/orders/{orderID}/cancel", h.cancelOrder).Methods(http.MethodPost)
	r.HandleFunc("/tenants/{id}/orders/{orderID}/timeline", h.timeline).Methods(http.MethodGet)

	r.HandleFunc("/tenants/{id}/stats", h.getStats).Methods(http.MethodGet)
	r.HandleFunc("/tenants/{id}/stats/recompute", h.recomputeStats).Methods(http.MethodPost)

	r.HandleFunc("/tenants/{id}/events", h.streamEvents).Methods(http.MethodGet)

	r.HandleFunc("/tenants/{id}/offline", h.offlinePending).Methods(http.MethodGet)
	r.HandleFunc("/offline/failed", h.offlineFailed).Methods(http.MethodGet)
	r.HandleFunc("/offline/failed/{opID}/ack", h.offlineAcknowledge).Methods(http.MethodPost)
	r.HandleFunc("/offline/replay", h.offlineReplay).Methods(http.MethodPost)

	return r
}

// queuedBody is the 202 response for a mutation buffered while the backend
// is unreachable.
type queuedBody struct {
	Queued bool   `json:"queued"`
	OpID   string `json:"op_id"`
}

// opID makes the client's idempotency key the queue operation id, so a
// buffered op replays with exactly the key its online attempt used.
func opID(idemKey string) string {
	if idemKey != "" {
		return idemKey
	}
	return uuid.NewString()
}

// do routes one mutating call through the offline queue. ok reports that the
// caller should write its success response; false means the op was either
// buffered (202 written here) or failed (error written here).
func (h *Handler) do(w http.ResponseWriter, r *http.Request, op offline.Operation) bool {
	queued, err := h.queue.Do(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return false
	}
	if queued {
		writeJSON(w, http.StatusAccepted, queuedBody{Queued: true, OpID: op.ID})
		return false
	}
	return true
}

// --- tenants ---

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID     string `json:"owner_id"`
		DisplayName string `json:"display_name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.registry.CreateTenant(r.Context(), req.OwnerID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.ListTenants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.registry.GetTenant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) setOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Open bool `json:"open"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.registry.SetOpen(r.Context(), mux.Vars(r)["id"], req.Open)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) setWaitTime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.registry.SetWaitTime(r.Context(), mux.Vars(r)["id"], req.Minutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- menu & stock ---

func (h *Handler) getMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.Menu(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) addMenuItem(w http.ResponseWriter, r *http.Request) {
	var it domain.MenuItem
	if err := decode(r, &it); err != nil {
		writeError(w, err)
		return
	}
	it.TenantID = mux.Vars(r)["id"]
	created, err := h.ledger.AddItem(r.Context(), &it)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	var it domain.MenuItem
	if err := decode(r, &it); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	it.TenantID = vars["id"]
	it.ID = vars["itemID"]
	updated, err := h.ledger.UpdateItem(r.Context(), &it)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	tenantID, itemID := vars["id"], vars["itemID"]

	payload, err := json.Marshal(offline.StockPayload{ItemID: itemID, Delta: req.Delta, Absolute: req.Absolute})
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.do(w, r, offline.Operation{
		ID: opID(req.IdempotencyKey), TenantID: tenantID, Type: offline.OpUpdateStock, Payload: payload,
	}) {
		return
	}
	item, err := h.ledger.GetItem(r.Context(), tenantID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// --- orders ---

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PlaceOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tenantID := mux.Vars(r)["id"]
	req.IdempotencyKey = opID(req.IdempotencyKey)

	payload, err := json.Marshal(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.do(w, r, offline.Operation{
		ID: req.IdempotencyKey, TenantID: tenantID, Type: offline.OpPlaceOrder, Payload: payload,
	}) {
		return
	}
	o, err := h.lifecycle.OrderByKey(r.Context(), tenantID, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.PlaceOrderResponse{
		OrderID:      o.ID,
		PickupNumber: o.PickupNumber,
		Status:       o.Status,
		TotalPrice:   o.TotalPrice,
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.lifecycle.Orders(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) clearOrders(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.ClearOrders(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkStatuses(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.lifecycle.CheckStatuses(r.Context(), mux.Vars(r)["id"], req.OrderIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := domain.ParseStatus(req.Status); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)

	payload, err := json.Marshal(offline.StatusPayload{OrderID: vars["orderID"], Status: req.Status})
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.do(w, r, offline.Operation{
		ID: opID(req.IdempotencyKey), TenantID: vars["id"], Type: offline.OpUpdateStatus, Payload: payload,
	}) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdempotencyKey string `json:"idempotency_key,omitempty"`
	}
	// body optional for cancel
	_ = decode(r, &req)
	vars := mux.Vars(r)

	payload, err := json.Marshal(offline.CancelPayload{OrderID: vars["orderID"]})
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.do(w, r, offline.Operation{
		ID: opID(req.IdempotencyKey), TenantID: vars["id"], Type: offline.OpCancelOrder, Payload: payload,
	}) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- offline queue ---

func (h *Handler) offlinePending(w http.ResponseWriter, r *http.Request) {
	ops := h.queue.Pending(mux.Vars(r)["id"])
	if ops == nil {
		ops = []offline.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *Handler) offlineFailed(w http.ResponseWriter, r *http.Request) {
	ops := h.queue.Failed()
	if ops == nil {
		ops = []offline.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (h *Handler) offlineAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Acknowledge(mux.Vars(r)["opID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) offlineReplay(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Replay(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	log, err := h.lifecycle.Timeline(r.Context(), vars["id"], vars["orderID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// --- stats ---

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	records, err := h.stats.Range(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) recomputeStats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.stats.Recompute(r.Context(), mux.Vars(r)["id"], req.Date); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
