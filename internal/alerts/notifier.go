// Package alerts pushes operator alerts for orders that need a human, such as
// shipments parked in needs_attention or failed dispatches.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"cookiebox/internal/metrics"
)

// Alert event types.
const (
	TypeNeedsAttention = "shipment.needs_attention"
	TypeShipmentFailed = "shipment.failed"
	TypeAmountMismatch = "payment.amount_mismatch"
)

// Alert is the JSON body posted to the operator webhook.
type Alert struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OrderNumber    string    `json:"orderNumber"`
	PaymentOrderID string    `json:"midtransOrderId"`
	Message        string    `json:"message"`
	TS             time.Time `json:"ts"`
	Data           any       `json:"data,omitempty"`
}

// Notifier delivers alerts synchronously with a short bounded retry. A zero
// URL disables delivery. Delivery failures are logged and never returned to
// the order flow that raised the alert.
type Notifier struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	Log         *slog.Logger
	MaxAttempts int
	Backoff     time.Duration
}

func NewNotifier(url, secret string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Log:         log,
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
	}
}

func (n *Notifier) Enabled() bool { return n != nil && n.URL != "" }

// Notify posts the alert, filling in id and timestamp.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if !n.Enabled() {
		return nil
	}
	if a.ID == "" {
		a.ID = "alrt_" + ulid.Make().String()
	}
	if a.TS.IsZero() {
		a.TS = time.Now().UTC()
	}
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	attempts := n.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
retry:
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			case <-time.After(nextBackoff(n.Backoff, i-1)):
			}
		}
		lastErr = n.deliver(ctx, a.Type, body)
		if lastErr == nil {
			metrics.AlertDeliveries.WithLabelValues(a.Type, "delivered").Inc()
			return nil
		}
	}
	metrics.AlertDeliveries.WithLabelValues(a.Type, "failed").Inc()
	n.Log.Warn("alert delivery failed", "alert_id", a.ID, "type", a.Type, "order_number", a.OrderNumber, "err", lastErr)
	return lastErr
}

func (n *Notifier) deliver(ctx context.Context, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if n.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(n.Secret, body))
	}
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(base time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 5 {
		attempts = 5
	}
	d := base * time.Duration(1<<attempts)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
