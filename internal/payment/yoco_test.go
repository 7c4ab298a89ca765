package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func yocoSign(t *testing.T, key []byte, webhookID, timestamp string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(webhookID + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyYocoSignature(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	secret := yocoSecretPrefix + base64.StdEncoding.EncodeToString(key)

	webhookID := "evt_3q7dLbeThuYV4BNEnkbMpzkv"
	timestamp := "1721129651"
	body := []byte(`{"id":"evt_3q7dLbeThuYV4BNEnkbMpzkv","type":"payment.succeeded"}`)

	t.Run("Valid signature accepted", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		assert.True(t, VerifyYocoSignature(webhookID, timestamp, body, header, secret))
	})

	t.Run("Any valid signature in a multi-entry header accepted", func(t *testing.T) {
		header := "v1,bm90LXRoZS1yaWdodC1zaWduYXR1cmU= v1," + yocoSign(t, key, webhookID, timestamp, body)
		assert.True(t, VerifyYocoSignature(webhookID, timestamp, body, header, secret))
	})

	t.Run("Mutated body rejected", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-2] ^= 0x01
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, tampered, header, secret))
	})

	t.Run("Mutated timestamp rejected", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		assert.False(t, VerifyYocoSignature(webhookID, "1721129652", body, header, secret))
	})

	t.Run("Mutated signature rejected", func(t *testing.T) {
		sig := yocoSign(t, key, webhookID, timestamp, body)
		header := "v1,A" + sig[1:]
		if sig[0] == 'A' {
			header = "v1,B" + sig[1:]
		}
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, body, header, secret))
	})

	t.Run("Wrong secret rejected", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		other := yocoSecretPrefix + base64.StdEncoding.EncodeToString([]byte("another-webhook-secret-key-value"))
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, body, header, other))
	})

	t.Run("Missing headers rejected", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		assert.False(t, VerifyYocoSignature("", timestamp, body, header, secret))
		assert.False(t, VerifyYocoSignature(webhookID, "", body, header, secret))
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, body, "", secret))
	})

	t.Run("Unversioned header entries ignored", func(t *testing.T) {
		header := yocoSign(t, key, webhookID, timestamp, body) // no v1 prefix
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, body, header, secret))
	})

	t.Run("Garbage secret rejected", func(t *testing.T) {
		header := "v1," + yocoSign(t, key, webhookID, timestamp, body)
		assert.False(t, VerifyYocoSignature(webhookID, timestamp, body, header, "whsec_%%%not-base64%%%"))
	})
}
