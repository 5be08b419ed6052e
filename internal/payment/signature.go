package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature returns hex(HMAC-SHA256(orderID + "|" + paymentID, secret)), the value the
// gateway sends back after a successful checkout.
func Signature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it byte for byte, in constant time,
// with the received value. Empty inputs never verify.
func Verify(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected := Signature(orderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
