package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"brewbar-be/internal/logger"
	"brewbar-be/internal/metrics"
	"brewbar-be/internal/order"
	"brewbar-be/internal/payment"

	"go.uber.org/zap"
)

// Handler receives provider callbacks and applies order state transitions.
type Handler struct {
	OrderSvc order.Service
	PayRepo  payment.Repository

	payfastPassphrase string
	payfastNets       []*net.IPNet
	yocoSecret        string
}

func NewHandler(
	orderSvc order.Service,
	payRepo payment.Repository,
	payfastPassphrase string,
	payfastAllowedCIDRs []string,
	yocoWebhookSecret string,
) *Handler {
	var nets []*net.IPNet
	for _, c := range payfastAllowedCIDRs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			logger.L().Warn("invalid PayFast CIDR, skipping", zap.String("cidr", c))
			continue
		}
		nets = append(nets, n)
	}

	return &Handler{
		OrderSvc:          orderSvc,
		PayRepo:           payRepo,
		payfastPassphrase: payfastPassphrase,
		payfastNets:       nets,
		yocoSecret:        yocoWebhookSecret,
	}
}

// PayFastHandler handles POST /webhook/payfast (form-encoded ITN callback).
func (h *Handler) PayFastHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("provider", string(payment.ProviderPayFast)))
	metrics.Webhooks.Received.Inc()

	// 1. Raw body first; signature verification needs the exact bytes.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	fields, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form payload", http.StatusBadRequest)
		return
	}

	// 2. Verify before anything else; a bad signature changes no state.
	if !payment.VerifyPayFastSignature(fields, fields.Get("signature"), h.payfastPassphrase) {
		metrics.Webhooks.SignatureRejected.Inc()
		log.Warn("PayFast signature rejected",
			zap.String("m_payment_id", fields.Get("m_payment_id")),
		)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// 3. Advisory source check. Provider IP ranges drift, so this logs only.
	h.checkSourceIP(r, log)

	n := payment.Notification{
		Provider:          payment.ProviderPayFast,
		EventID:           fields.Get("pf_payment_id"),
		EventType:         "pf.itn." + strings.ToLower(fields.Get("payment_status")),
		OrderExternalID:   fields.Get("m_payment_id"),
		ProviderPaymentID: fields.Get("pf_payment_id"),
		Outcome:           payfastOutcome(fields.Get("payment_status")),
		AmountCents:       parseAmountCents(fields.Get("amount_gross")),
	}

	payload, _ := json.Marshal(fields)
	h.process(w, r, n, payload, log)
}

func payfastOutcome(status string) payment.Outcome {
	switch strings.ToUpper(status) {
	case "COMPLETE":
		return payment.OutcomeSuccess
	case "FAILED":
		return payment.OutcomeFailed
	case "CANCELLED":
		return payment.OutcomeCancelled
	default:
		return payment.OutcomeIgnored
	}
}

// parseAmountCents converts the provider's decimal string (e.g. "37.00")
// without going through floats.
func parseAmountCents(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	whole, frac, _ := strings.Cut(s, ".")
	cents, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	cents *= 100

	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		for len(frac) < 2 {
			frac += "0"
		}
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0
		}
		cents += f
	}
	return cents
}

type yocoEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Status   string `json:"status"`
		Metadata struct {
			OrderExternalID string `json:"order_external_id"`
		} `json:"metadata"`
	} `json:"payload"`
}

// YocoHandler handles POST /webhook/yoco (JSON webhook).
func (h *Handler) YocoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("provider", string(payment.ProviderYoco)))
	metrics.Webhooks.Received.Inc()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	ok := payment.VerifyYocoSignature(
		r.Header.Get("webhook-id"),
		r.Header.Get("webhook-timestamp"),
		body,
		r.Header.Get("webhook-signature"),
		h.yocoSecret,
	)
	if !ok {
		metrics.Webhooks.SignatureRejected.Inc()
		log.Warn("Yoco signature rejected", zap.String("webhook_id", r.Header.Get("webhook-id")))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var ev yocoEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	n := payment.Notification{
		Provider:          payment.ProviderYoco,
		EventID:           ev.ID,
		EventType:         ev.Type,
		OrderExternalID:   ev.Payload.Metadata.OrderExternalID,
		ProviderPaymentID: ev.Payload.ID,
		Outcome:           yocoOutcome(ev.Type),
		AmountCents:       ev.Payload.Amount,
	}

	h.process(w, r, n, body, log)
}

func yocoOutcome(eventType string) payment.Outcome {
	switch eventType {
	case "payment.succeeded":
		return payment.OutcomeSuccess
	case "payment.failed":
		return payment.OutcomeFailed
	case "checkout.cancelled":
		return payment.OutcomeCancelled
	default:
		return payment.OutcomeIgnored
	}
}

// process runs the provider-agnostic half: log + dedup, order lookup,
// terminal transition, response. Only transient store failures return 5xx;
// every permanent condition is acknowledged with 200 so the provider stops
// retrying something a retry cannot fix.
func (h *Handler) process(w http.ResponseWriter, r *http.Request, n payment.Notification, payload json.RawMessage, log *zap.Logger) {
	ctx := r.Context()
	log = log.With(
		zap.String("event_id", n.EventID),
		zap.String("event_type", n.EventType),
		zap.String("order_id", n.OrderExternalID),
	)

	// 4. Append to the webhook log; duplicates short-circuit here.
	webhookID, dup, err := h.PayRepo.SavePaymentWebhook(
		ctx, n.Provider, n.EventID, n.EventType, n.OrderExternalID, payload, true,
	)
	if err != nil {
		log.Error("failed to save webhook", zap.Error(err))
		http.Error(w, "failed to record webhook", http.StatusInternalServerError)
		return
	}
	if dup {
		metrics.Webhooks.Duplicates.Inc()
		log.Info("duplicate webhook ignored")
		writeOK(w)
		return
	}

	if n.Outcome == payment.OutcomeIgnored {
		log.Info("ignoring webhook event type")
		_ = h.PayRepo.MarkWebhookProcessed(ctx, webhookID)
		writeOK(w)
		return
	}

	// 5. Look up the order. An unknown correlation id is not the provider's
	// fault: acknowledge it so retries stop, and flag the anomaly.
	o, err := h.OrderSvc.GetOrder(ctx, n.OrderExternalID)
	if errors.Is(err, order.ErrOrderNotFound) {
		metrics.Webhooks.UnknownOrders.Inc()
		log.Warn("webhook for unknown order")
		_ = h.PayRepo.MarkWebhookFailed(ctx, webhookID, "order not found")
		writeOK(w)
		return
	}
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		http.Error(w, "failed to load order", http.StatusInternalServerError)
		return
	}

	// Amount mismatches are permanent anomalies: never transition, never
	// invite a retry; leave the order for manual override.
	if n.AmountCents != 0 && n.AmountCents != o.TotalCents {
		log.Error("webhook amount does not match order total",
			zap.Int64("webhook_cents", n.AmountCents),
			zap.Int64("order_cents", o.TotalCents),
		)
		_ = h.PayRepo.MarkWebhookFailed(ctx, webhookID, "amount mismatch")
		writeOK(w)
		return
	}

	// 6. Terminal transition. Replays and out-of-order deliveries are
	// no-ops inside the service; anything it returns without error is done.
	var res order.TransitionResult
	switch n.Outcome {
	case payment.OutcomeSuccess:
		res, err = h.OrderSvc.MarkAsPaid(ctx, n.OrderExternalID, n.ProviderPaymentID)
	case payment.OutcomeFailed:
		res, err = h.OrderSvc.MarkAsFailed(ctx, n.OrderExternalID, n.ProviderPaymentID, order.PaymentFailed)
	case payment.OutcomeCancelled:
		res, err = h.OrderSvc.MarkAsFailed(ctx, n.OrderExternalID, n.ProviderPaymentID, order.PaymentCancelled)
	}
	if err != nil {
		log.Error("failed to update order", zap.Error(err))
		_ = h.PayRepo.MarkWebhookFailed(ctx, webhookID, err.Error())
		http.Error(w, "failed to update order", http.StatusInternalServerError)
		return
	}

	if res == order.Transitioned {
		metrics.Webhooks.Transitioned.Inc()
	}

	_ = h.PayRepo.MarkWebhookProcessed(ctx, webhookID)
	writeOK(w)
}

func (h *Handler) checkSourceIP(r *http.Request, log *zap.Logger) {
	if len(h.payfastNets) == 0 {
		return
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		log.Warn("webhook source address unparseable", zap.String("remote_addr", r.RemoteAddr))
		return
	}

	for _, n := range h.payfastNets {
		if n.Contains(ip) {
			return
		}
	}
	log.Warn("webhook source outside provider allow-list", zap.String("ip", ip.String()))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
