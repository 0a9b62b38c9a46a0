package store

import (
	"context"
	"errors"
	"time"

	"cookiebox/internal/model"
)

// Store is the persistence interface used by the fulfillment service and API server.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	GetOrderByPaymentID(ctx context.Context, paymentOrderID string) (model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) (items []model.Order, nextCursor string, err error)

	// Payment facet
	UpdatePayment(ctx context.Context, id string, upd model.PaymentUpdate) error
	SetPaymentToken(ctx context.Context, id, token string) error

	// Shipment facet
	//
	// ClaimShipment reserves the right to dispatch. It succeeds only when no
	// shipment id is recorded, the order is not fulfilled and no other claim
	// younger than lease exists.
	ClaimShipment(ctx context.Context, id string, lease time.Duration) (bool, error)
	RecordShipment(ctx context.Context, id string, rec model.ShipmentRecord) error
	// MarkShipmentStatus writes a status and error text. Writing
	// needs_attention or failed releases any dispatch claim.
	MarkShipmentStatus(ctx context.Context, id string, status model.ShipmentStatus, shipmentErr string) error

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an order number or payment id is already taken.
var ErrConflict = errors.New("conflict")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}

func releasesClaim(s model.ShipmentStatus) bool {
	return s == model.ShipmentNeedsAttention || s == model.ShipmentFailed || s == model.ShipmentNotCreated
}
