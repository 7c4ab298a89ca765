package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"brewbar-be/internal/logger"

	"go.uber.org/zap"
)

const (
	yocoBaseURL = "https://payments.yoco.com/api"
	// Yoco webhook secrets are issued as whsec_<base64-key>.
	yocoSecretPrefix = "whsec_"
)

// VerifyYocoSignature checks the HMAC-SHA256 signature of a JSON webhook.
// The signed content is webhookId.webhookTimestamp.rawBody; the secret is
// base64-decoded after stripping the whsec_ prefix; the result is base64
// encoded and compared in constant time against every v1 signature in the
// header (the header may carry several, space-separated). Pure function.
func VerifyYocoSignature(webhookID, timestamp string, rawBody []byte, signatureHeader, secret string) bool {
	if webhookID == "" || timestamp == "" || signatureHeader == "" {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, yocoSecretPrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(webhookID + "." + timestamp + "."))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, part := range strings.Fields(signatureHeader) {
		sig, ok := strings.CutPrefix(part, "v1,")
		if !ok {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

// ----------------- Gateway -----------------

type yocoGateway struct {
	secretKey  string
	httpClient *http.Client
	baseURL    string
	successURL string
	cancelURL  string
	failureURL string
}

type yocoCheckoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
}

func NewYocoGateway(secretKey, publicBaseURL string) Gateway {
	if secretKey == "" {
		logger.L().Warn("Yoco secret key is empty")
	}

	return &yocoGateway{
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:    yocoBaseURL,
		successURL: publicBaseURL + "/payment/success",
		cancelURL:  publicBaseURL + "/payment/cancelled",
		failureURL: publicBaseURL + "/payment/failed",
	}
}

func (g *yocoGateway) CreateCheckout(ctx context.Context, orderExternalID string, amountCents int64, customerEmail string) (*CheckoutResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", orderExternalID),
		zap.Int64("amount_cents", amountCents),
	)

	body := map[string]interface{}{
		"amount":     amountCents,
		"currency":   "ZAR",
		"successUrl": g.successURL,
		"cancelUrl":  g.cancelURL,
		"failureUrl": g.failureURL,
		"metadata": map[string]interface{}{
			"order_external_id": orderExternalID,
			"customer_email":    customerEmail,
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/checkouts", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}

	req.Header.Add("Authorization", "Bearer "+g.secretKey)
	req.Header.Add("Content-Type", "application/json")
	// Retried creates must not produce a second checkout.
	req.Header.Add("Idempotency-Key", orderExternalID)

	log.Info("Sending checkout request to Yoco")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("Yoco request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read yoco response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("Yoco returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("yoco error: %s", string(bodyBytes))
	}

	var res yocoCheckoutResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding Yoco response", zap.Error(err))
		return nil, err
	}

	log.Info("Yoco checkout created",
		zap.String("checkout_id", res.ID),
		zap.String("status", res.Status),
	)

	return &CheckoutResponse{
		Provider:           ProviderYoco,
		ProviderCheckoutID: res.ID,
		RedirectURL:        res.RedirectURL,
		AmountCents:        res.Amount,
	}, nil
}
