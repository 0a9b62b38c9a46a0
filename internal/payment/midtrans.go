package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cookiebox/internal/config"
	"cookiebox/internal/metrics"
	"cookiebox/internal/model"
)

// Client talks to the Midtrans Snap and Core status APIs.
type Client struct {
	cfg  config.Midtrans
	http *http.Client
}

func NewClient(cfg config.Midtrans, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: hc}
}

// ServerKey is the secret used to verify notifications.
func (c *Client) ServerKey() string { return c.cfg.ServerKey }

// APIError carries a non-2xx Midtrans response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("midtrans %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type snapItem struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []snapItem `json:"item_details,omitempty"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
		Email     string `json:"email,omitempty"`
		Phone     string `json:"phone"`
	} `json:"customer_details"`
	Callbacks *struct {
		Finish string `json:"finish"`
	} `json:"callbacks,omitempty"`
}

// SnapTransaction is the Snap token pair returned to the storefront.
type SnapTransaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// CreateTransaction opens a Snap payment for the order. Item prices are sent in
// whole rupiah; Midtrans rejects the request when they do not sum to gross_amount.
func (c *Client) CreateTransaction(ctx context.Context, o *model.Order) (SnapTransaction, error) {
	var req snapRequest
	req.TransactionDetails.OrderID = o.PaymentOrderID
	req.TransactionDetails.GrossAmount = o.TotalIDR.Round(0).IntPart()
	for i, it := range o.Items {
		req.ItemDetails = append(req.ItemDetails, snapItem{
			ID:       strconv.Itoa(i + 1),
			Name:     truncate(it.Name, 50),
			Price:    it.Value.Round(0).IntPart(),
			Quantity: it.Quantity,
		})
	}
	req.CustomerDetails.FirstName = o.CustomerName
	req.CustomerDetails.Email = o.CustomerEmail
	req.CustomerDetails.Phone = o.CustomerPhone
	if c.cfg.FinishURL != "" {
		req.Callbacks = &struct {
			Finish string `json:"finish"`
		}{Finish: c.cfg.FinishURL}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return SnapTransaction{}, err
	}
	var out SnapTransaction
	if err := c.do(ctx, "create_transaction", http.MethodPost, strings.TrimRight(c.cfg.SnapURL, "/")+"/transactions", body, &out); err != nil {
		return SnapTransaction{}, err
	}
	if out.Token == "" {
		return SnapTransaction{}, &APIError{Op: "create_transaction", StatusCode: http.StatusOK, Body: "response without token"}
	}
	return out, nil
}

// Status fetches the current transaction state. The response has the same
// shape as a notification, signature included.
func (c *Client) Status(ctx context.Context, orderID string) (Notification, error) {
	u := strings.TrimRight(c.cfg.APIURL, "/") + "/v2/" + url.PathEscape(orderID) + "/status"
	var n Notification
	if err := c.do(ctx, "status", http.MethodGet, u, nil, &n); err != nil {
		return Notification{}, err
	}
	// The status API reports 404 inside a 200 envelope for unknown transactions.
	if n.StatusCode == "404" {
		return Notification{}, &APIError{Op: "status", StatusCode: http.StatusNotFound, Body: n.StatusMessage}
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, op, method, u string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.ServerKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderLatency.WithLabelValues("midtrans", op, "error").Observe(float64(time.Since(start).Milliseconds()))
		return fmt.Errorf("midtrans %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	metrics.ProviderLatency.WithLabelValues("midtrans", op, strconv.Itoa(resp.StatusCode)).Observe(float64(time.Since(start).Milliseconds()))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("midtrans %s: decode response: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
