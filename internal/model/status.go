package model

import (
	"fmt"
	"strings"
)

// PaymentStatus is the canonical payment state of an order. Values outside the
// declared constants can only come from unrecognised provider vocabulary and
// report false from Valid.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) String() string { return string(s) }

// ParsePaymentStatus converts a persisted value. Empty maps to UNPAID and
// "created" (checkout initiation) is accepted as UNPAID too. Unknown values are
// kept verbatim (uppercased) so pass-through provider states survive a round trip.
func ParsePaymentStatus(v string) PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "CREATED", string(PaymentUnpaid):
		return PaymentUnpaid
	case string(PaymentPending):
		return PaymentPending
	case string(PaymentPaid):
		return PaymentPaid
	case string(PaymentFailed):
		return PaymentFailed
	case string(PaymentRefunded):
		return PaymentRefunded
	}
	return PaymentStatus(strings.ToUpper(strings.TrimSpace(v)))
}

// ShipmentStatus is the state of the order fulfillment state machine.
type ShipmentStatus string

const (
	ShipmentNotCreated     ShipmentStatus = "not_created"
	ShipmentNeedsAttention ShipmentStatus = "needs_attention"
	ShipmentCreated        ShipmentStatus = "created"
	ShipmentFailed         ShipmentStatus = "failed"
	ShipmentFulfilled      ShipmentStatus = "fulfilled"
)

func (s ShipmentStatus) String() string { return string(s) }

// Retryable reports whether an admin retry may re-drive dispatch from this state.
func (s ShipmentStatus) Retryable() bool {
	switch s {
	case ShipmentNotCreated, ShipmentNeedsAttention, ShipmentFailed:
		return true
	case ShipmentCreated, ShipmentFulfilled:
		return false
	}
	return false
}

// ParseShipmentStatus converts a persisted value; empty means not_created.
func ParseShipmentStatus(v string) (ShipmentStatus, error) {
	switch ShipmentStatus(strings.ToLower(strings.TrimSpace(v))) {
	case "", ShipmentNotCreated:
		return ShipmentNotCreated, nil
	case ShipmentNeedsAttention:
		return ShipmentNeedsAttention, nil
	case ShipmentCreated:
		return ShipmentCreated, nil
	case ShipmentFailed:
		return ShipmentFailed, nil
	case ShipmentFulfilled:
		return ShipmentFulfilled, nil
	}
	return "", fmt.Errorf("unknown shipment status %q", v)
}
