package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cookiebox/internal/model"
)

func newOrder(num, pay string) *model.Order {
	return &model.Order{
		OrderNumber:    num,
		PaymentOrderID: pay,
		CourierCompany: "jne",
		CourierType:    "reg",
		Postal:         "12150",
		Items:          []model.LineItem{{Name: "Choco Chip Box", Quantity: 1, Value: decimal.NewFromInt(60000)}},
		TotalIDR:       decimal.NewFromInt(60000),
	}
}

func TestMemoryCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := newOrder("KR-1", "cookie-1")
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID == "" || o.PaymentStatus != model.PaymentUnpaid || o.ShipmentStatus != model.ShipmentNotCreated {
		t.Fatalf("defaults not applied: %+v", o)
	}
	got, err := m.GetOrderByPaymentID(ctx, "cookie-1")
	if err != nil || got.ID != o.ID {
		t.Fatalf("GetOrderByPaymentID: %v %+v", err, got)
	}
	if _, err := m.GetOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := m.CreateOrder(ctx, newOrder("KR-2", "cookie-1")); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate payment id: want ErrConflict, got %v", err)
	}
	got.Items[0].Name = "mutated"
	again, _ := m.GetOrder(ctx, o.ID)
	if again.Items[0].Name != "Choco Chip Box" {
		t.Fatalf("store leaked internal slice")
	}
}

func TestMemoryPaidAtSetOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := newOrder("KR-1", "cookie-1")
	_ = m.CreateOrder(ctx, o)
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	second := first.Add(time.Hour)
	_ = m.UpdatePayment(ctx, o.ID, model.PaymentUpdate{Status: model.PaymentPaid, TransactionStatus: "settlement", PaidAt: &first})
	_ = m.UpdatePayment(ctx, o.ID, model.PaymentUpdate{Status: model.PaymentPaid, TransactionStatus: "settlement", PaidAt: &second})
	got, _ := m.GetOrder(ctx, o.ID)
	if got.PaidAt == nil || !got.PaidAt.Equal(first) {
		t.Fatalf("paid_at overwritten: %v", got.PaidAt)
	}
}

func TestMemoryClaimShipment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	o := newOrder("KR-1", "cookie-1")
	_ = m.CreateOrder(ctx, o)

	ok, err := m.ClaimShipment(ctx, o.ID, 2*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := m.ClaimShipment(ctx, o.ID, 2*time.Minute); ok {
		t.Fatalf("second claim inside lease must lose")
	}
	now = now.Add(3 * time.Minute)
	if ok, _ := m.ClaimShipment(ctx, o.ID, 2*time.Minute); !ok {
		t.Fatalf("expired lease must be reclaimable")
	}
	_ = m.MarkShipmentStatus(ctx, o.ID, model.ShipmentFailed, "boom")
	if ok, _ := m.ClaimShipment(ctx, o.ID, 2*time.Minute); !ok {
		t.Fatalf("failure must release the claim")
	}
	_ = m.RecordShipment(ctx, o.ID, model.ShipmentRecord{ShipmentOrderID: "bs-1", Waybill: "W1"})
	_ = m.MarkShipmentStatus(ctx, o.ID, model.ShipmentFailed, "")
	if ok, _ := m.ClaimShipment(ctx, o.ID, 2*time.Minute); ok {
		t.Fatalf("order with shipment id must never be claimed")
	}
	if _, err := m.ClaimShipment(ctx, "missing", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryRecordShipmentClearsError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := newOrder("KR-1", "cookie-1")
	_ = m.CreateOrder(ctx, o)
	_ = m.MarkShipmentStatus(ctx, o.ID, model.ShipmentNeedsAttention, "missing postal")
	_ = m.RecordShipment(ctx, o.ID, model.ShipmentRecord{ShipmentOrderID: "bs-1", TrackingURL: "https://t/1"})
	got, _ := m.GetOrder(ctx, o.ID)
	if got.ShipmentStatus != model.ShipmentCreated || got.ShipmentError != "" || got.ShipmentOrderID != "bs-1" {
		t.Fatalf("unexpected order after record: %+v", got)
	}
	if got.CourierCompany != "jne" {
		t.Fatalf("empty record courier must keep the stored one, got %q", got.CourierCompany)
	}
}

func TestMemoryListOrdersFilterAndCursor(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, pay := range []string{"a", "b", "c", "d"} {
		o := newOrder("KR-"+pay, "cookie-"+pay)
		_ = m.CreateOrder(ctx, o)
		if i%2 == 0 {
			_ = m.MarkShipmentStatus(ctx, o.ID, model.ShipmentNeedsAttention, "x")
		}
	}
	items, next, err := m.ListOrders(ctx, model.OrderFilter{ShipmentStatus: model.ShipmentNeedsAttention, Limit: 1})
	if err != nil || len(items) != 1 || next == "" {
		t.Fatalf("first page: %v %d %q", err, len(items), next)
	}
	rest, next2, _ := m.ListOrders(ctx, model.OrderFilter{ShipmentStatus: model.ShipmentNeedsAttention, Limit: 1, Cursor: next})
	if len(rest) != 1 || next2 != "" || rest[0].ID == items[0].ID {
		t.Fatalf("second page: %d %q", len(rest), next2)
	}
}
