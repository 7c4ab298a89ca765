package payment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"brewbar-be/internal/logger"

	"go.uber.org/zap"
)

const payfastProcessURL = "https://www.payfast.co.za/eng/process"

// encodePayFast applies the provider's exact encoding dialect: space becomes
// '+' and hex escapes are uppercase. url.QueryEscape matches both rules.
func encodePayFast(s string) string {
	return url.QueryEscape(s)
}

// payfastParamString builds the signable string: fields sorted alphabetically
// by key, values encoded, joined as key=value&..., with the encoded passphrase
// appended when one is configured. The signature field itself is excluded.
func payfastParamString(fields url.Values, passphrase string, skipEmpty bool) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		v := fields.Get(k)
		if skipEmpty && v == "" {
			continue
		}
		parts = append(parts, k+"="+encodePayFast(v))
	}

	s := strings.Join(parts, "&")
	if passphrase != "" {
		s += "&passphrase=" + encodePayFast(passphrase)
	}
	return s
}

func payfastSignature(fields url.Values, passphrase string, skipEmpty bool) string {
	sum := md5.Sum([]byte(payfastParamString(fields, passphrase, skipEmpty)))
	return hex.EncodeToString(sum[:])
}

// VerifyPayFastSignature checks the MD5 signature of a form-encoded
// notification. Provider variants disagree on whether empty-string fields
// belong in the param string, so both forms are computed and either match is
// accepted. The compare is case-sensitive. Pure function, no side effects.
func VerifyPayFastSignature(fields url.Values, received, passphrase string) bool {
	if received == "" {
		return false
	}
	if payfastSignature(fields, passphrase, true) == received {
		return true
	}
	return payfastSignature(fields, passphrase, false) == received
}

// ----------------- Gateway -----------------

type payfastGateway struct {
	merchantID  string
	merchantKey string
	passphrase  string
	baseURL     string
	returnURL   string
	cancelURL   string
	notifyURL   string
}

// NewPayFastGateway builds signed redirect URLs; PayFast checkouts are plain
// GET redirects to the process page, there is no server-side create call.
func NewPayFastGateway(merchantID, merchantKey, passphrase, publicBaseURL string) Gateway {
	if merchantID == "" || merchantKey == "" {
		logger.L().Warn("PayFast merchant credentials are empty")
	}

	return &payfastGateway{
		merchantID:  merchantID,
		merchantKey: merchantKey,
		passphrase:  passphrase,
		baseURL:     payfastProcessURL,
		returnURL:   publicBaseURL + "/payment/success",
		cancelURL:   publicBaseURL + "/payment/cancelled",
		notifyURL:   publicBaseURL + "/webhook/payfast",
	}
}

func (g *payfastGateway) CreateCheckout(ctx context.Context, orderExternalID string, amountCents int64, customerEmail string) (*CheckoutResponse, error) {
	fields := url.Values{}
	fields.Set("merchant_id", g.merchantID)
	fields.Set("merchant_key", g.merchantKey)
	fields.Set("return_url", g.returnURL)
	fields.Set("cancel_url", g.cancelURL)
	fields.Set("notify_url", g.notifyURL)
	fields.Set("m_payment_id", orderExternalID)
	fields.Set("amount", fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100))
	fields.Set("item_name", "Order "+orderExternalID)
	if customerEmail != "" {
		fields.Set("email_address", customerEmail)
	}

	fields.Set("signature", payfastSignature(fields, g.passphrase, true))

	logger.FromCtx(ctx).Info("PayFast checkout built",
		zap.String("order_id", orderExternalID),
		zap.Int64("amount_cents", amountCents),
	)

	return &CheckoutResponse{
		Provider:           ProviderPayFast,
		ProviderCheckoutID: orderExternalID,
		RedirectURL:        g.baseURL + "?" + fields.Encode(),
		AmountCents:        amountCents,
	}, nil
}
