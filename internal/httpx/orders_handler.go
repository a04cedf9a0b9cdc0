package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderService is what the handler needs from orders.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, buyerID string, items []orders.ItemInput) (orders.Order, error)
	GetOrder(ctx context.Context, actor orders.Actor, orderID string) (orders.Order, error)
	ListOrders(ctx context.Context, actor orders.Actor, f orders.ListFilter) ([]orders.Order, error)
	ChangeOrderStatus(ctx context.Context, actor orders.Actor, orderID string, target orders.Status) (orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Auth   ActorResolver
	Log    zerolog.Logger
}

type CreateOrderReq struct {
	Items []orders.ItemInput `json:"items"`
}

type ChangeStatusReq struct {
	Status string `json:"status"`
}

type ListOrdersResp struct {
	Orders []orders.Order `json:"orders"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.Auth))
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/status", h.changeStatus)
		r.Patch("/orders/{id}/status", h.changeStatus)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	if actor.Role != orders.RoleBuyer {
		writeJSON(w, http.StatusForbidden, ErrorResp{Error: "forbidden", Message: "only buyers can place orders"})
		return
	}
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "invalid_input", Message: "invalid json"})
		return
	}

	o, err := h.Orders.CreateOrder(r.Context(), actor.ID, req.Items)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	o, err := h.Orders.GetOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	q := r.URL.Query()

	f := orders.ListFilter{Limit: defaultListLimit}
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		f.Status = st
	}
	var ok bool
	if f.Limit, ok = intParam(q.Get("limit"), defaultListLimit); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "invalid_input", Message: "limit must be an integer"})
		return
	}
	if f.Offset, ok = intParam(q.Get("offset"), 0); !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "invalid_input", Message: "offset must be an integer"})
		return
	}
	if f.Limit == 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	list, err := h.Orders.ListOrders(r.Context(), actor, f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, ListOrdersResp{Orders: list, Limit: f.Limit, Offset: f.Offset})
}

func (h *OrdersHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req ChangeStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Error: "invalid_input", Message: "invalid json"})
		return
	}
	// an unrecognised target is still a transition request, not malformed input
	o, err := h.Orders.ChangeOrderStatus(r.Context(), actor, chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func intParam(s string, def int) (int, bool) {
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
