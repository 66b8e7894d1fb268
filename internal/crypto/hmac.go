package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by signed webhook deliveries.
const (
	HeaderWebhookTimestamp = "X-Ledger-Timestamp"
	HeaderWebhookSignature = "X-Ledger-Signature"
)

// WebhookSigner authenticates outbound event deliveries. Receivers recompute
// HMAC-SHA256(secret, timestamp + "." + body) and compare.
type WebhookSigner struct {
	Secret string
}

// Headers returns the signature headers for body at the current time.
func (w *WebhookSigner) Headers(body []byte) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp.
func (w *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderWebhookTimestamp: ts,
		HeaderWebhookSignature: hmacSHA256Base64([]byte(w.Secret), ts+"."+string(body)),
	}
}

// VerifyWebhook checks a delivery's signature in constant time.
func VerifyWebhook(secret, timestamp, signature string, body []byte) bool {
	want := hmacSHA256Base64([]byte(secret), timestamp+"."+string(body))
	return hmac.Equal([]byte(want), []byte(signature))
}

// String returns a redacted representation suitable for logging.
func (w *WebhookSigner) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookSigner{secret=****}"
	}
	return fmt.Sprintf("WebhookSigner{secret=%s****}", w.Secret[:4])
}

func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
