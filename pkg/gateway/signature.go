package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureVerifier checks the signature the gateway attaches to a payment
// confirmation.
type SignatureVerifier interface {
	VerifyPayment(orderID, paymentID, signature string) bool
}

// PaymentSignature is hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func PaymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type HMACVerifier struct {
	secret string
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// VerifyPayment compares in constant time. An empty secret or signature
// never verifies.
func (v *HMACVerifier) VerifyPayment(orderID, paymentID, signature string) bool {
	if v.secret == "" || signature == "" {
		return false
	}
	expected := PaymentSignature(v.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyPayment verifies with the key secret the client was built with.
func (r *Razorpay) VerifyPayment(orderID, paymentID, signature string) bool {
	return r.verifier.VerifyPayment(orderID, paymentID, signature)
}
