// Package biteship dispatches shipments through the Biteship courier aggregator.
package biteship

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

	"cookiebox/internal/config"
	"cookiebox/internal/courier"
	"cookiebox/internal/metrics"
	"cookiebox/internal/model"
)

type Client struct {
	cfg  config.Biteship
	http *http.Client
}

func New(cfg config.Biteship, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.DefaultWeightGrams <= 0 {
		cfg.DefaultWeightGrams = 100
	}
	return &Client{cfg: cfg, http: hc}
}

func (c *Client) Provider() courier.Provider { return courier.Biteship }

type item struct {
	Name     string `json:"name"`
	Value    int64  `json:"value"`
	Quantity int    `json:"quantity"`
	Weight   int    `json:"weight"`
}

type orderRequest struct {
	ShipperContactName  string `json:"shipper_contact_name"`
	ShipperContactPhone string `json:"shipper_contact_phone"`
	ShipperContactEmail string `json:"shipper_contact_email,omitempty"`
	ShipperOrganization string `json:"shipper_organization,omitempty"`

	OriginContactName  string `json:"origin_contact_name"`
	OriginContactPhone string `json:"origin_contact_phone"`
	OriginAddress      string `json:"origin_address"`
	OriginNote         string `json:"origin_note,omitempty"`
	OriginPostalCode   int    `json:"origin_postal_code"`
	OriginAreaID       string `json:"origin_area_id,omitempty"`

	DestinationContactName  string `json:"destination_contact_name"`
	DestinationContactPhone string `json:"destination_contact_phone"`
	DestinationContactEmail string `json:"destination_contact_email,omitempty"`
	DestinationAddress      string `json:"destination_address"`
	DestinationNote         string `json:"destination_note,omitempty"`
	DestinationPostalCode   int    `json:"destination_postal_code"`
	DestinationAreaID       string `json:"destination_area_id,omitempty"`

	CourierCompany string `json:"courier_company"`
	CourierType    string `json:"courier_type"`
	DeliveryType   string `json:"delivery_type"`
	OrderNote      string `json:"order_note,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Items          []item `json:"items"`
}

func (c *Client) buildRequest(o *model.Order, sel courier.Selection) (orderRequest, error) {
	originPostal, err := strconv.Atoi(strings.TrimSpace(c.cfg.Origin.PostalCode))
	if err != nil {
		return orderRequest{}, fmt.Errorf("origin postal code %q: %w", c.cfg.Origin.PostalCode, err)
	}
	destPostal, err := strconv.Atoi(strings.TrimSpace(o.Postal))
	if err != nil {
		return orderRequest{}, fmt.Errorf("destination postal code %q: %w", o.Postal, err)
	}
	req := orderRequest{
		ShipperContactName:  c.cfg.Shipper.Name,
		ShipperContactPhone: c.cfg.Shipper.Phone,
		ShipperContactEmail: c.cfg.Shipper.Email,
		ShipperOrganization: c.cfg.Shipper.Organization,

		OriginContactName:  c.cfg.Origin.ContactName,
		OriginContactPhone: c.cfg.Origin.ContactPhone,
		OriginAddress:      c.cfg.Origin.Address,
		OriginNote:         c.cfg.Origin.Note,
		OriginPostalCode:   originPostal,
		OriginAreaID:       c.cfg.Origin.AreaID,

		DestinationContactName:  o.CustomerName,
		DestinationContactPhone: o.CustomerPhone,
		DestinationContactEmail: o.CustomerEmail,
		DestinationAddress:      o.ShippingAddress,
		DestinationNote:         o.BuildingName,
		DestinationPostalCode:   destPostal,
		DestinationAreaID:       o.DestinationAreaID,

		CourierCompany: sel.Company,
		CourierType:    sel.Type,
		DeliveryType:   "now",
		OrderNote:      orderNote(o),
		ReferenceID:    o.PaymentOrderID,
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, item{
			Name:     it.Name,
			Value:    it.Value.Round(0).IntPart(),
			Quantity: it.Quantity,
			Weight:   c.cfg.DefaultWeightGrams,
		})
	}
	return req, nil
}

func orderNote(o *model.Order) string {
	note := "Order " + o.OrderNumber
	if o.BuildingName != "" {
		note += " - " + o.BuildingName
	}
	return note
}

// CreateShipment posts a delivery order and extracts the shipment id, waybill
// and tracking link from either response envelope.
func (c *Client) CreateShipment(ctx context.Context, o *model.Order, sel courier.Selection) (courier.Result, error) {
	const op = "create order"
	payload, err := c.buildRequest(o, sel)
	if err != nil {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderLatency.WithLabelValues(string(courier.Biteship), "create_order", "error").Observe(float64(time.Since(start).Milliseconds()))
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	metrics.ProviderLatency.WithLabelValues(string(courier.Biteship), "create_order", strconv.Itoa(resp.StatusCode)).Observe(float64(time.Since(start).Milliseconds()))

	env, perr := parseEnvelope(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if perr == nil {
			msg = env.str("error", "message")
		}
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, StatusCode: resp.StatusCode, Message: msg, Body: string(raw)}
	}
	if perr != nil {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Body: string(raw), Err: perr}
	}
	id := env.str("id", "order_id")
	if id == "" {
		return courier.Result{}, &courier.ProviderError{Provider: courier.Biteship, Op: op, StatusCode: resp.StatusCode, Message: "response without order id", Body: string(raw)}
	}
	return courier.Result{
		Provider:    courier.Biteship,
		ExternalID:  id,
		Waybill:     env.str("courier.waybill_id", "courier.waybill"),
		TrackingURL: env.str("courier.link", "courier.tracking_url"),
	}, nil
}
