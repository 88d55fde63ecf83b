package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignWebhookPayload computes the hex HMAC-SHA256 of the raw body. The
// gateway signs the bytes exactly as sent, so no canonicalization happens
// here.
func SignWebhookPayload(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the signature header against the raw request
// body in constant time.
func VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	expected := SignWebhookPayload(rawBody, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PaymentWebhookEvent is the payload the payment gateway posts on every
// transaction status change.
type PaymentWebhookEvent struct {
	EventID   string `json:"event_id"`
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}
