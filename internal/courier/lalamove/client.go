// Package lalamove dispatches on-demand deliveries through the Lalamove v3 API.
// A shipment takes three signed calls: quote, place order, read the share link.
package lalamove

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cookiebox/internal/config"
	"cookiebox/internal/courier"
	"cookiebox/internal/metrics"
	"cookiebox/internal/model"
)

// maxRemarkLines bounds the item list written into the recipient remarks.
const maxRemarkLines = 12

type Client struct {
	cfg  config.Lalamove
	http *http.Client
	now  func() time.Time
}

func New(cfg config.Lalamove, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: hc, now: time.Now}
}

func (c *Client) Provider() courier.Provider { return courier.Lalamove }

type coordinates struct {
	Lat string `json:"lat"`
	Lng string `json:"lng"`
}

type stop struct {
	Coordinates coordinates `json:"coordinates"`
	Address     string      `json:"address"`
}

type quotationRequest struct {
	ServiceType string `json:"serviceType"`
	Language    string `json:"language"`
	Stops       []stop `json:"stops"`
}

type quotationResponse struct {
	QuotationID string `json:"quotationId"`
	Stops       []struct {
		StopID string `json:"stopId"`
	} `json:"stops"`
}

type contact struct {
	StopID  string `json:"stopId"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Remarks string `json:"remarks,omitempty"`
}

type placeOrderRequest struct {
	QuotationID  string            `json:"quotationId"`
	Sender       contact           `json:"sender"`
	Recipients   []contact         `json:"recipients"`
	IsPODEnabled bool              `json:"isPODEnabled"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type orderResponse struct {
	OrderID   string `json:"orderId"`
	ShareLink string `json:"shareLink"`
}

// CreateShipment quotes the route, places the order and fetches its share
// link. A failure at any step aborts the whole dispatch.
func (c *Client) CreateShipment(ctx context.Context, o *model.Order, sel courier.Selection) (courier.Result, error) {
	if !o.ShippingMeta.HasCoordinates() {
		return courier.Result{}, &courier.IncompleteError{Provider: courier.Lalamove, Missing: []string{"destination lat/lng"}}
	}
	serviceType := c.cfg.ServiceType
	if sel.Type != "" && sel.Type != string(courier.Lalamove) {
		serviceType = strings.ToUpper(sel.Type)
	}

	var quote quotationResponse
	err := c.call(ctx, "quotation", http.MethodPost, "/v3/quotations", quotationRequest{
		ServiceType: serviceType,
		Language:    c.cfg.Language,
		Stops: []stop{
			{Coordinates: coords(c.cfg.Pickup.Lat, c.cfg.Pickup.Lng), Address: c.cfg.Pickup.Address},
			{Coordinates: coords(*o.ShippingMeta.Lat, *o.ShippingMeta.Lng), Address: dropoffAddress(o)},
		},
	}, &quote)
	if err != nil {
		return courier.Result{}, err
	}
	if quote.QuotationID == "" || len(quote.Stops) < 2 {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Lalamove, Op: "quotation", Message: "quotation without id or stops"}
	}

	var placed orderResponse
	err = c.call(ctx, "place order", http.MethodPost, "/v3/orders", placeOrderRequest{
		QuotationID: quote.QuotationID,
		Sender:      contact{StopID: quote.Stops[0].StopID, Name: c.cfg.Pickup.Name, Phone: c.cfg.Pickup.Phone},
		Recipients: []contact{{
			StopID:  quote.Stops[1].StopID,
			Name:    o.CustomerName,
			Phone:   o.CustomerPhone,
			Remarks: Remarks(o),
		}},
		Metadata: map[string]string{"orderNumber": o.OrderNumber, "paymentOrderId": o.PaymentOrderID},
	}, &placed)
	if err != nil {
		return courier.Result{}, err
	}
	if placed.OrderID == "" {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Lalamove, Op: "place order", Message: "response without order id"}
	}

	var details orderResponse
	if err := c.call(ctx, "order details", http.MethodGet, "/v3/orders/"+placed.OrderID, nil, &details); err != nil {
		return courier.Result{}, err
	}
	return courier.Result{
		Provider:    courier.Lalamove,
		ExternalID:  placed.OrderID,
		TrackingURL: firstNonEmpty(details.ShareLink, placed.ShareLink),
	}, nil
}

// Remarks lists the ordered items for the driver, one line each.
func Remarks(o *model.Order) string {
	var lines []string
	if o.OrderNumber != "" {
		lines = append(lines, "Order "+o.OrderNumber)
	}
	for _, it := range o.Items {
		lines = append(lines, fmt.Sprintf("%dx %s", it.Quantity, it.Name))
	}
	if len(lines) > maxRemarkLines {
		lines = lines[:maxRemarkLines]
	}
	return strings.Join(lines, "\n")
}

func dropoffAddress(o *model.Order) string {
	addr := firstNonEmpty(o.ShippingMeta.FormattedAddress, o.ShippingAddress)
	if o.BuildingName != "" {
		addr = o.BuildingName + ", " + addr
	}
	return addr
}

func coords(lat, lng float64) coordinates {
	return coordinates{
		Lat: strconv.FormatFloat(lat, 'f', -1, 64),
		Lng: strconv.FormatFloat(lng, 'f', -1, 64),
	}
}

// call signs and sends one request, decoding the "data" member of the reply.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(map[string]any{"data": in})
		if err != nil {
			return &courier.ProviderError{Provider: courier.Lalamove, Op: op, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return &courier.ProviderError{Provider: courier.Lalamove, Op: op, Err: err}
	}
	req.Header.Set("Authorization", authorization(c.cfg.APIKey, c.cfg.APISecret, method, path, body, c.now()))
	req.Header.Set("Market", c.cfg.Market)
	req.Header.Set("Request-ID", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	label := strings.ReplaceAll(op, " ", "_")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderLatency.WithLabelValues(string(courier.Lalamove), label, "error").Observe(float64(time.Since(start).Milliseconds()))
		return &courier.ProviderError{Provider: courier.Lalamove, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	metrics.ProviderLatency.WithLabelValues(string(courier.Lalamove), label, strconv.Itoa(resp.StatusCode)).Observe(float64(time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &courier.ProviderError{Provider: courier.Lalamove, Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw), Body: string(raw)}
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Data) == 0 {
		return &courier.ProviderError{Provider: courier.Lalamove, Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Body: string(raw), Err: err}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &courier.ProviderError{Provider: courier.Lalamove, Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Body: string(raw), Err: err}
	}
	return nil
}

// errorMessage pulls the first message out of a v3 error body.
func errorMessage(raw []byte) string {
	var body struct {
		Errors []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	if len(body.Errors) > 0 {
		return firstNonEmpty(body.Errors[0].Message, body.Errors[0].ID)
	}
	return body.Message
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
