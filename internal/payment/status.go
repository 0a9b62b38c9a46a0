package payment

import (
	"strings"

	"cookiebox/internal/model"
)

// Normalize maps Midtrans transaction/fraud status to a canonical payment status.
// ok is false when the transaction status is not part of the known vocabulary; the
// returned status is then the uppercased raw value.
//
// A challenged capture must be checked before plain capture: it is held for
// manual review and is not paid.
func Normalize(transactionStatus, fraudStatus string) (status model.PaymentStatus, ok bool) {
	tx := strings.ToLower(strings.TrimSpace(transactionStatus))
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch {
	case tx == "capture" && fraud == "challenge":
		return model.PaymentPending, true
	case tx == "capture" || tx == "settlement":
		return model.PaymentPaid, true
	case tx == "deny" || tx == "cancel" || tx == "expire" || tx == "failure":
		return model.PaymentFailed, true
	case tx == "pending":
		return model.PaymentPending, true
	case tx == "refund" || tx == "partial_refund":
		return model.PaymentRefunded, true
	}
	return model.PaymentStatus(strings.ToUpper(strings.TrimSpace(transactionStatus))), false
}
