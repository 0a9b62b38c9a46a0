package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"cookiebox/internal/fulfillment"
	"cookiebox/internal/payment"
)

const maxBodyBytes = 1 << 20

// MidtransWebhookHandler handles POST /v1/webhooks/midtrans. The provider
// retries on non-2xx, so every outcome that is recorded on the order is
// acknowledged with 200.
func (s *Server) MidtransWebhookHandler(w http.ResponseWriter, r *http.Request) {
	var n payment.Notification
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&n); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON: " + err.Error()})
		return
	}
	res, err := s.Orders.HandlePaymentNotification(r.Context(), n)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, fulfillment.ErrInvalidRequest):
			status = http.StatusBadRequest
		case errors.Is(err, fulfillment.ErrOrderNotFound):
			status = http.StatusNotFound
		default:
			s.Log.Error("payment webhook failed", "midtrans_order_id", n.OrderID, "err", err)
		}
		writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
