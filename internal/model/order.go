package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a single customer purchase tracked through payment and shipment.
type Order struct {
	ID             string `json:"id"`
	OrderNumber    string `json:"orderNumber"`
	PaymentOrderID string `json:"midtransOrderId"`

	PaymentStatus     PaymentStatus `json:"paymentStatus"`
	TransactionStatus string        `json:"transactionStatus,omitempty"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
	PaymentToken      string        `json:"-"`

	ShipmentStatus  ShipmentStatus `json:"shipmentStatus"`
	ShipmentOrderID string         `json:"shipmentOrderId,omitempty"`
	TrackingURL     string         `json:"trackingUrl,omitempty"`
	Waybill         string         `json:"waybill,omitempty"`
	CourierCompany  string         `json:"courierCompany,omitempty"`
	CourierType     string         `json:"courierType,omitempty"`
	ShipmentError   string         `json:"shipmentError,omitempty"`

	ShippingAddress   string       `json:"shippingAddress"`
	BuildingName      string       `json:"buildingName,omitempty"`
	Postal            string       `json:"postal,omitempty"`
	DestinationAreaID string       `json:"destinationAreaId,omitempty"`
	ShippingMeta      ShippingMeta `json:"shippingMeta"`

	Items    []LineItem      `json:"items"`
	TotalIDR decimal.Decimal `json:"totalIdr"`

	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	CustomerEmail string `json:"customerEmail,omitempty"`

	ShipmentClaimedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ShippingMeta holds checkout-time destination data that has no column of its own.
type ShippingMeta struct {
	Lat              *float64 `json:"lat,omitempty"`
	Lng              *float64 `json:"lng,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	CourierCode      string   `json:"courier_code,omitempty"`
	CourierService   string   `json:"courier_service,omitempty"`
}

// HasCoordinates reports whether both lat and lng are present.
func (m ShippingMeta) HasCoordinates() bool { return m.Lat != nil && m.Lng != nil }

type LineItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// Subtotal is Value * Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Value.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ItemsTotal sums the line item subtotals.
func ItemsTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// HasShipment reports whether an external shipment already exists for the order.
func (o *Order) HasShipment() bool { return o.ShipmentOrderID != "" }

// PaymentUpdate is the payment facet written by webhook processing.
type PaymentUpdate struct {
	Status            PaymentStatus
	TransactionStatus string
	PaidAt            *time.Time
}

// ShipmentRecord is the outcome of a successful dispatch.
type ShipmentRecord struct {
	ShipmentOrderID string
	TrackingURL     string
	Waybill         string
	CourierCompany  string
	CourierType     string
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	PaymentStatus  PaymentStatus
	ShipmentStatus ShipmentStatus
	Cursor         string
	Limit          int
}
