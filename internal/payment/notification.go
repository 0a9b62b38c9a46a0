package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Notification is the Midtrans HTTP notification body (also the shape of the
// v2 status API response).
type Notification struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id,omitempty"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
	GrossAmount       string `json:"gross_amount"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message,omitempty"`
	SignatureKey      string `json:"signature_key"`
}

// UnmarshalJSON accepts gross_amount and status_code as either strings or numbers.
// Sandbox tools occasionally send numbers; the signature is computed over the
// textual form so the literal is preserved.
func (n *Notification) UnmarshalJSON(b []byte) error {
	type alias Notification
	var raw struct {
		alias
		GrossAmount json.RawMessage `json:"gross_amount"`
		StatusCode  json.RawMessage `json:"status_code"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*n = Notification(raw.alias)
	n.GrossAmount = literal(raw.GrossAmount)
	n.StatusCode = literal(raw.StatusCode)
	return nil
}

func literal(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(m, &out); err == nil {
			return out
		}
	}
	return s
}

// Amount parses gross_amount ("180000.00") as a decimal.
func (n Notification) Amount() (decimal.Decimal, error) {
	if n.GrossAmount == "" {
		return decimal.Zero, fmt.Errorf("gross_amount missing")
	}
	d, err := decimal.NewFromString(n.GrossAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gross_amount %q: %w", n.GrossAmount, err)
	}
	return d, nil
}
