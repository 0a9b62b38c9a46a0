package alerts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMAC returns the X-Signature value sent with every alert delivery:
// lowercase hex HMAC-SHA256 of the JSON body keyed by ALERT_WEBHOOK_SECRET.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(sum(secret, body))
}

// VerifyHMAC is the receiver-side check for an alert delivery. A malformed
// header never verifies.
func VerifyHMAC(secret string, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(sum(secret, body), got)
}

func sum(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
