// Package events fans order lifecycle events out to admin stream subscribers.
package events

import (
	"sync"
	"time"
)

// TopicOrders carries every order lifecycle event.
const TopicOrders = "orders"

// Event types.
const (
	TypePaymentUpdated  = "payment.updated"
	TypeAmountMismatch  = "payment.amount_mismatch"
	TypeShipmentCreated = "shipment.created"
	TypeNeedsAttention  = "shipment.needs_attention"
	TypeShipmentFailed  = "shipment.failed"
	TypeOrderFulfilled  = "order.fulfilled"
	TypeOrderCreated    = "order.created"
)

// Event is one order lifecycle notification.
type Event struct {
	Type           string         `json:"type"`
	OrderNumber    string         `json:"orderNumber"`
	PaymentOrderID string         `json:"midtransOrderId"`
	PaymentStatus  string         `json:"paymentStatus,omitempty"`
	ShipmentStatus string         `json:"shipmentStatus,omitempty"`
	Message        string         `json:"message,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	TS             time.Time      `json:"ts"`
}

// Broker is implemented in memory and over Redis pub/sub.
type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Memory is the in-process broker. Slow subscribers drop events rather than
// block publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	b.mu.Lock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
