package fulfillment

import (
	"errors"

	"cookiebox/internal/courier"
	"cookiebox/internal/model"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotPaid        = errors.New("order is not paid")
	// ErrInProgress means another request holds the dispatch claim.
	ErrInProgress = errors.New("shipment dispatch in progress")
)

// Shipment outcomes reported to webhook and admin callers.
const (
	ShipmentCreated        = "created"
	ShipmentAlreadyCreated = "already-created"
	ShipmentFailed         = "failed"
	ShipmentSkipped        = "skipped"
	ShipmentInProgress     = "in-progress"
)

// Override outcomes of the manual admin actions.
const (
	StatusPaid             = "paid"
	StatusAlreadyPaid      = "already-paid"
	StatusFulfilled        = "fulfilled"
	StatusAlreadyFulfilled = "already-fulfilled"
	StatusAlreadyProcessed = "already-processed"
)

// ShipmentResult is the body of a dispatch attempt.
type ShipmentResult struct {
	OK              bool                 `json:"ok"`
	Shipment        string               `json:"shipment"`
	Provider        courier.Provider     `json:"provider,omitempty"`
	ShipmentStatus  model.ShipmentStatus `json:"shipmentStatus,omitempty"`
	ShipmentOrderID string               `json:"shipmentOrderId,omitempty"`
	TrackingURL     string               `json:"trackingUrl,omitempty"`
	Waybill         string               `json:"waybill,omitempty"`
	Reason          string               `json:"reason,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// WebhookResult is the acknowledgement returned to the payment provider.
type WebhookResult struct {
	OK              bool                 `json:"ok"`
	Ignored         bool                 `json:"ignored,omitempty"`
	Reason          string               `json:"reason,omitempty"`
	Status          string               `json:"status,omitempty"`
	PaymentStatus   model.PaymentStatus  `json:"paymentStatus,omitempty"`
	Shipment        string               `json:"shipment,omitempty"`
	ShipmentStatus  model.ShipmentStatus `json:"shipmentStatus,omitempty"`
	ShipmentOrderID string               `json:"shipmentOrderId,omitempty"`
	TrackingURL     string               `json:"trackingUrl,omitempty"`
	Waybill         string               `json:"waybill,omitempty"`
	Error           string               `json:"error,omitempty"`
}

func (r *WebhookResult) withShipment(sr ShipmentResult) {
	r.Shipment = sr.Shipment
	r.ShipmentStatus = sr.ShipmentStatus
	r.ShipmentOrderID = sr.ShipmentOrderID
	r.TrackingURL = sr.TrackingURL
	r.Waybill = sr.Waybill
	r.Reason = sr.Reason
	r.Error = sr.Error
}

// StatusResult is the body of mark-paid and mark-fulfilled.
type StatusResult struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func alreadyCreated(o *model.Order) ShipmentResult {
	return ShipmentResult{
		OK:              true,
		Shipment:        ShipmentAlreadyCreated,
		ShipmentStatus:  o.ShipmentStatus,
		ShipmentOrderID: o.ShipmentOrderID,
		TrackingURL:     o.TrackingURL,
		Waybill:         o.Waybill,
	}
}
