package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"brewbar-be/internal/logger"
	"brewbar-be/internal/metrics"
	"brewbar-be/internal/order"
	"brewbar-be/internal/reconcile"
	"brewbar-be/internal/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler serves the admin-only surface: manual order overrides and
// reconciliation triggers. Routes must be mounted behind RequireAdmin.
type Handler struct {
	OrderSvc order.Service
	Sweeper  *reconcile.Sweeper
}

func NewHandler(orderSvc order.Service, sweeper *reconcile.Sweeper) *Handler {
	return &Handler{
		OrderSvc: orderSvc,
		Sweeper:  sweeper,
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/orders/{id}/override", h.OverrideOrder).Methods("POST")
	r.HandleFunc("/reconcile", h.TriggerReconcile).Methods("POST")
	r.HandleFunc("/reconcile-status", h.ReconcileStatus).Methods("GET")
}

type overrideRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (h *Handler) OverrideOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := mux.Vars(r)["id"]

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	action := order.OverrideAction(req.Action)
	if action != order.OverrideComplete && action != order.OverrideCancel {
		utils.WriteJSONError(w, "action must be 'complete' or 'cancel'", http.StatusBadRequest)
		return
	}

	actor := utils.GetUserEmailFromContext(ctx)

	o, err := h.OrderSvc.Override(ctx, orderID, action, actor, req.Reason)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		utils.WriteJSONError(w, "order not found", http.StatusNotFound)
		return
	case errors.Is(err, order.ErrConflictingState):
		utils.WriteJSONError(w, "order already resolved to a different terminal state", http.StatusConflict)
		return
	case err != nil:
		logger.FromCtx(ctx).Error("override failed", zap.Error(err))
		utils.WriteJSONError(w, "failed to apply override", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"order_external_id": o.ExternalID.String(),
		"order_number":      o.OrderNumber,
		"status":            o.Status,
		"payment_status":    o.PaymentStatus,
		"total_cents":       o.TotalCents,
		"updated_at":        o.UpdatedAt,
	})
}

type reconcileRequest struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}

func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Body is optional; an empty body runs with the configured threshold.
	var req reconcileRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	report, err := h.Sweeper.RunOnce(ctx, req.ThresholdMinutes)
	if err != nil {
		logger.FromCtx(ctx).Error("reconcile run failed", zap.Error(err))
		utils.WriteJSONError(w, "reconcile run failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) ReconcileStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.Sweeper.DryRun(ctx)
	if err != nil {
		logger.FromCtx(ctx).Error("reconcile dry-run failed", zap.Error(err))
		utils.WriteJSONError(w, "reconcile dry-run failed", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"report": report,
		"webhooks": map[string]uint64{
			"received":           metrics.Webhooks.Received.Load(),
			"signature_rejected": metrics.Webhooks.SignatureRejected.Load(),
			"duplicates":         metrics.Webhooks.Duplicates.Load(),
			"unknown_orders":     metrics.Webhooks.UnknownOrders.Load(),
			"transitioned":       metrics.Webhooks.Transitioned.Load(),
		},
	})
}
