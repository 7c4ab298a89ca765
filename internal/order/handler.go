package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"brewbar-be/internal/logger"
	"brewbar-be/internal/menu"
	"brewbar-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler serves the customer-facing order surface.
type Handler struct {
	Svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/orders", h.Checkout).Methods("POST")
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	r.HandleFunc("/kitchen/queue", h.KitchenQueue).Methods("GET")
}

type checkoutRequest struct {
	Items []struct {
		MenuItemID uint `json:"menu_item_id"`
		Quantity   int  `json:"quantity"`
	} `json:"items"`
	CustomerEmail string `json:"customer_email"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	input := CheckoutInput{CustomerEmail: req.CustomerEmail}
	for _, it := range req.Items {
		input.Items = append(input.Items, CheckoutItemInput{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
		})
	}

	o, checkout, err := h.Svc.Checkout(ctx, input)
	switch {
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidQuantity):
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, menu.ErrMenuItemNotFound):
		utils.WriteJSONError(w, "unknown menu item", http.StatusBadRequest)
		return
	case err != nil:
		logger.FromCtx(ctx).Error("checkout failed", zap.Error(err))
		utils.WriteJSONError(w, "checkout failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"order_external_id": o.ExternalID.String(),
		"order_number":      o.OrderNumber,
		"total_cents":       o.TotalCents,
		"payment_status":    o.PaymentStatus,
		"redirect_url":      checkout.RedirectURL,
	})
}

// GetOrder reports a customer-safe view: while payment is unresolved the
// order shows a generic processing state, never the raw ambiguity.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := mux.Vars(r)["id"]

	o, err := h.Svc.GetOrder(ctx, orderID)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		return
	case err != nil:
		logger.FromCtx(ctx).Error("failed to load order", zap.Error(err))
		utils.WriteJSONError(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	display := string(o.Status)
	if !o.PaymentStatus.Terminal() {
		display = "processing"
	}

	items := make([]map[string]interface{}, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]interface{}{
			"name":             it.Name,
			"quantity":         it.Quantity,
			"unit_price_cents": it.UnitPriceCents,
		})
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"order_external_id": o.ExternalID.String(),
		"order_number":      o.OrderNumber,
		"status":            display,
		"total_cents":       o.TotalCents,
		"items":             items,
		"created_at":        o.CreatedAt,
	})
}

func (h *Handler) KitchenQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.Svc.KitchenQueue(ctx)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load kitchen queue", zap.Error(err))
		utils.WriteJSONError(w, "failed to load kitchen queue", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]interface{}, 0, len(orders))
	for _, o := range orders {
		out = append(out, map[string]interface{}{
			"order_external_id": o.ExternalID.String(),
			"order_number":      o.OrderNumber,
			"status":            o.Status,
			"total_cents":       o.TotalCents,
			"created_at":        o.CreatedAt,
		})
	}

	utils.WriteJSON(w, http.StatusOK, out)
}
