package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Sign returns the lowercase hex SHA-512 of order_id + status_code + gross_amount + serverKey,
// the value Midtrans sends as signature_key.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a notification's signature_key against the server key.
// Missing fields never verify.
func VerifySignature(n Notification, serverKey string) bool {
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.SignatureKey == "" || serverKey == "" {
		return false
	}
	expected := Sign(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) == 1
}
