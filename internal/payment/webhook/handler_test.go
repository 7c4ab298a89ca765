package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"brewbar-be/internal/order"
	"brewbar-be/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Checkout(ctx context.Context, input order.CheckoutInput) (*order.Order, *payment.CheckoutResponse, error) {
	args := m.Called(ctx, input)
	var o *order.Order
	var c *payment.CheckoutResponse
	if v := args.Get(0); v != nil {
		o = v.(*order.Order)
	}
	if v := args.Get(1); v != nil {
		c = v.(*payment.CheckoutResponse)
	}
	return o, c, args.Error(2)
}

func (m *MockOrderService) GetOrder(ctx context.Context, externalID string) (*order.Order, error) {
	args := m.Called(ctx, externalID)
	if v := args.Get(0); v != nil {
		return v.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderService) KitchenQueue(ctx context.Context) ([]*order.Order, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderService) MarkAsPaid(ctx context.Context, externalID, providerPaymentID string) (order.TransitionResult, error) {
	args := m.Called(ctx, externalID, providerPaymentID)
	return args.Get(0).(order.TransitionResult), args.Error(1)
}

func (m *MockOrderService) MarkAsFailed(ctx context.Context, externalID, providerPaymentID string, ps order.PaymentStatus) (order.TransitionResult, error) {
	args := m.Called(ctx, externalID, providerPaymentID, ps)
	return args.Get(0).(order.TransitionResult), args.Error(1)
}

func (m *MockOrderService) Override(ctx context.Context, externalID string, action order.OverrideAction, actor, reason string) (*order.Order, error) {
	args := m.Called(ctx, externalID, action, actor, reason)
	if v := args.Get(0); v != nil {
		return v.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SavePayment(ctx context.Context, p *payment.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) SavePaymentWebhook(
	ctx context.Context,
	provider payment.Provider,
	eventID, eventType, externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, externalID, payload, signatureValid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	args := m.Called(ctx, webhookID)
	return args.Error(0)
}

func (m *MockPaymentRepository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	args := m.Called(ctx, webhookID, reason)
	return args.Error(0)
}

const (
	testPassphrase = "pass phrase"
	testYocoSecret = "whsec_dGVzdC15b2NvLXNlY3JldA=="
)

// signPayFast mirrors the provider's signing rules so tests build payloads the
// same way PayFast does: alphabetical keys, query-escaped values, empty fields
// skipped, passphrase appended, MD5 hex.
func signPayFast(fields url.Values, passphrase string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if fields.Get(k) == "" {
			continue
		}
		parts = append(parts, k+"="+url.QueryEscape(fields.Get(k)))
	}
	s := strings.Join(parts, "&")
	if passphrase != "" {
		s += "&passphrase=" + url.QueryEscape(passphrase)
	}
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func payfastForm(orderID, status, amount string) url.Values {
	fields := url.Values{}
	fields.Set("m_payment_id", orderID)
	fields.Set("pf_payment_id", "pf_98765")
	fields.Set("payment_status", status)
	fields.Set("amount_gross", amount)
	fields.Set("merchant_id", "10000100")
	fields.Set("signature", signPayFast(fields, testPassphrase))
	return fields
}

func postPayFast(h *Handler, fields url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/payfast", strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.PayFastHandler(rec, req)
	return rec
}

func signYoco(webhookID, timestamp string, body []byte) string {
	key, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(testYocoSecret, "whsec_"))
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(webhookID + "." + timestamp + "."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postYoco(h *Handler, webhookID, timestamp string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/yoco", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", webhookID)
	req.Header.Set("webhook-timestamp", timestamp)
	req.Header.Set("webhook-signature", signature)
	rec := httptest.NewRecorder()
	h.YocoHandler(rec, req)
	return rec
}

func newTestHandler() (*MockOrderService, *MockPaymentRepository, *Handler) {
	svc := new(MockOrderService)
	repo := new(MockPaymentRepository)
	h := NewHandler(svc, repo, testPassphrase, nil, testYocoSecret)
	return svc, repo, h
}

func TestPayFastHandler(t *testing.T) {
	orderID := uuid.NewString()

	t.Run("Completed payment marks order paid", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			"pf_98765", "pf.itn.complete", orderID, mock.Anything, true).
			Return(int64(1), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 3700}, nil)
		svc.On("MarkAsPaid", mock.Anything, orderID, "pf_98765").
			Return(order.Transitioned, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("Failed payment cancels order", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, "pf.itn.failed", orderID, mock.Anything, true).
			Return(int64(2), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 3700}, nil)
		svc.On("MarkAsFailed", mock.Anything, orderID, "pf_98765", order.PaymentFailed).
			Return(order.Transitioned, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(2)).Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "FAILED", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Tampered payload is rejected before any state change", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		fields := payfastForm(orderID, "COMPLETE", "37.00")
		fields.Set("amount_gross", "1.00")

		rec := postPayFast(h, fields)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		repo.AssertNotCalled(t, "SavePaymentWebhook",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything, mock.Anything)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing signature is rejected", func(t *testing.T) {
		_, _, h := newTestHandler()

		fields := payfastForm(orderID, "COMPLETE", "37.00")
		fields.Del("signature")

		rec := postPayFast(h, fields)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Duplicate delivery is acknowledged without transition", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(0), true, nil)

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown order is acknowledged and flagged", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(3), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).Return(nil, order.ErrOrderNotFound)
		repo.On("MarkWebhookFailed", mock.Anything, int64(3), "order not found").Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("Amount mismatch never transitions", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(4), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 9900}, nil)
		repo.On("MarkWebhookFailed", mock.Anything, int64(4), "amount mismatch").Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Pending status is logged and ignored", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, "pf.itn.pending", orderID, mock.Anything, true).
			Return(int64(5), false, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(5)).Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "PENDING", "37.00"))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
	})

	t.Run("Transient store failure returns 500 so provider retries", func(t *testing.T) {
		_, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(0), false, errors.New("db down"))

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Transition failure returns 500", func(t *testing.T) {
		svc, repo, h := newTestHandler()

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderPayFast,
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, true).
			Return(int64(6), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 3700}, nil)
		svc.On("MarkAsPaid", mock.Anything, orderID, "pf_98765").
			Return(order.Superseded, errors.New("db down"))
		repo.On("MarkWebhookFailed", mock.Anything, int64(6), mock.Anything).Return(nil)

		rec := postPayFast(h, payfastForm(orderID, "COMPLETE", "37.00"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Malformed body", func(t *testing.T) {
		_, _, h := newTestHandler()

		req := httptest.NewRequest(http.MethodPost, "/webhook/payfast", strings.NewReader("%zz=bad"))
		rec := httptest.NewRecorder()
		h.PayFastHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestYocoHandler(t *testing.T) {
	orderID := uuid.NewString()

	yocoBody := func(eventType string, amount int64) []byte {
		body, err := json.Marshal(map[string]any{
			"id":   "evt_01",
			"type": eventType,
			"payload": map[string]any{
				"id":     "p_abc",
				"amount": amount,
				"status": "succeeded",
				"metadata": map[string]any{
					"order_external_id": orderID,
				},
			},
		})
		require.NoError(t, err)
		return body
	}

	t.Run("Succeeded payment marks order paid", func(t *testing.T) {
		svc, repo, h := newTestHandler()
		body := yocoBody("payment.succeeded", 3700)

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderYoco,
			"evt_01", "payment.succeeded", orderID, mock.Anything, true).
			Return(int64(1), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 3700}, nil)
		svc.On("MarkAsPaid", mock.Anything, orderID, "p_abc").
			Return(order.Transitioned, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(1)).Return(nil)

		rec := postYoco(h, "wh_1", "1700000000", body, signYoco("wh_1", "1700000000", body))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Failed payment cancels order", func(t *testing.T) {
		svc, repo, h := newTestHandler()
		body := yocoBody("payment.failed", 3700)

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderYoco,
			"evt_01", "payment.failed", orderID, mock.Anything, true).
			Return(int64(2), false, nil)
		svc.On("GetOrder", mock.Anything, orderID).
			Return(&order.Order{TotalCents: 3700}, nil)
		svc.On("MarkAsFailed", mock.Anything, orderID, "p_abc", order.PaymentFailed).
			Return(order.Transitioned, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(2)).Return(nil)

		rec := postYoco(h, "wh_2", "1700000000", body, signYoco("wh_2", "1700000000", body))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Tampered body is rejected", func(t *testing.T) {
		svc, _, h := newTestHandler()
		body := yocoBody("payment.succeeded", 3700)
		sig := signYoco("wh_3", "1700000000", body)
		tampered := []byte(strings.Replace(string(body), "3700", "100", 1))

		rec := postYoco(h, "wh_3", "1700000000", tampered, sig)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing signature headers are rejected", func(t *testing.T) {
		_, _, h := newTestHandler()
		body := yocoBody("payment.succeeded", 3700)

		req := httptest.NewRequest(http.MethodPost, "/webhook/yoco", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()
		h.YocoHandler(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Valid signature over unparseable JSON is a bad request", func(t *testing.T) {
		_, _, h := newTestHandler()
		body := []byte("not json at all")

		rec := postYoco(h, "wh_4", "1700000000", body, signYoco("wh_4", "1700000000", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Refund event is acknowledged without transition", func(t *testing.T) {
		svc, repo, h := newTestHandler()
		body := yocoBody("refund.succeeded", 3700)

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderYoco,
			"evt_01", "refund.succeeded", orderID, mock.Anything, true).
			Return(int64(7), false, nil)
		repo.On("MarkWebhookProcessed", mock.Anything, int64(7)).Return(nil)

		rec := postYoco(h, "wh_5", "1700000000", body, signYoco("wh_5", "1700000000", body))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
	})

	t.Run("Replay of a processed event is deduplicated", func(t *testing.T) {
		svc, repo, h := newTestHandler()
		body := yocoBody("payment.succeeded", 3700)

		repo.On("SavePaymentWebhook", mock.Anything, payment.ProviderYoco,
			"evt_01", "payment.succeeded", orderID, mock.Anything, true).
			Return(int64(0), true, nil)

		rec := postYoco(h, "wh_6", "1700000000", body, signYoco("wh_6", "1700000000", body))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertNotCalled(t, "MarkAsPaid", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestParseAmountCents(t *testing.T) {
	cases := map[string]int64{
		"37.00":  3700,
		"37.5":   3750,
		"37":     3700,
		" 18.50": 1850,
		"0.05":   5,
		"":       0,
		"junk":   0,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseAmountCents(in), "input %q", in)
	}
}
