// Package courier selects a shipment provider for an order and defines the
// contract the provider adapters implement.
package courier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cookiebox/internal/model"
)

type Provider string

const (
	Biteship Provider = "biteship"
	Lalamove Provider = "lalamove"
)

// Selection is the provider and service tier an order ships with.
type Selection struct {
	Provider Provider `json:"provider"`
	Company  string   `json:"company"`
	Type     string   `json:"type"`
}

// Result is the normalized outcome of a successful dispatch.
type Result struct {
	Provider    Provider `json:"provider"`
	ExternalID  string   `json:"shipmentOrderId"`
	TrackingURL string   `json:"trackingUrl,omitempty"`
	Waybill     string   `json:"waybill,omitempty"`
}

// Dispatcher creates a physical delivery order with one provider. It either
// returns a complete Result or an error; nothing partial is reported.
type Dispatcher interface {
	Provider() Provider
	CreateShipment(ctx context.Context, o *model.Order, sel Selection) (Result, error)
}

// ErrIncomplete marks orders whose destination or courier data cannot be dispatched.
var ErrIncomplete = errors.New("shipment data incomplete")

// IncompleteError lists the fields a selection was missing.
type IncompleteError struct {
	Provider Provider
	Missing  []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s shipment requires %s", e.Provider, strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

// ProviderError carries a failed provider call with its raw response for operators.
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Body != "" {
		b.WriteString(" body=" + e.Body)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }
