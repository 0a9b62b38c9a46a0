//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"cookiebox/internal/model"
)

func TestPostgresOrderLifecycle(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	ctx := t.Context()
	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	suffix := uuid.NewString()[:8]
	o := newOrder("KR-"+suffix, "cookie-"+suffix)
	if err := p.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	ok, err := p.ClaimShipment(ctx, o.ID, 2*time.Minute)
	if err != nil || !ok {
		t.Fatalf("ClaimShipment: %v %v", ok, err)
	}
	if ok, _ := p.ClaimShipment(ctx, o.ID, 2*time.Minute); ok {
		t.Fatalf("second claim must lose")
	}
	if err := p.RecordShipment(ctx, o.ID, model.ShipmentRecord{ShipmentOrderID: "bs-" + suffix}); err != nil {
		t.Fatalf("RecordShipment: %v", err)
	}
	got, err := p.GetOrderByPaymentID(ctx, o.PaymentOrderID)
	if err != nil {
		t.Fatalf("GetOrderByPaymentID: %v", err)
	}
	if got.ShipmentStatus != model.ShipmentCreated || got.CourierCompany != "jne" || len(got.Items) != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}
}
