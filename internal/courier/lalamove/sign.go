package lalamove

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// signature computes the v3 request signature over
// "{ts}\r\n{METHOD}\r\n{path}\r\n\r\n{body}".
func signature(secret, ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "\r\n" + method + "\r\n" + path + "\r\n\r\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// authorization builds the Authorization header value for one request.
func authorization(key, secret, method, path string, body []byte, now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return fmt.Sprintf("hmac %s:%s:%s", key, signature(secret, ts, method, path, body), ts)
}
