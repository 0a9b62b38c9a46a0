package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cookiebox/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	orders    map[string]*model.Order // id -> order
	byPayment map[string]string       // midtrans order id -> id
	byNumber  map[string]string       // order number -> id
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orders:    map[string]*model.Order{},
		byPayment: map[string]string{},
		byNumber:  map[string]string{},
		now:       time.Now,
	}
}

func (m *Memory) CreateOrder(ctx context.Context, o *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPayment[o.PaymentOrderID]; ok {
		return ErrConflict
	}
	if _, ok := m.byNumber[o.OrderNumber]; ok {
		return ErrConflict
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := m.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.PaymentStatus == "" {
		o.PaymentStatus = model.PaymentUnpaid
	}
	if o.ShipmentStatus == "" {
		o.ShipmentStatus = model.ShipmentNotCreated
	}
	cp := cloneOrder(o)
	m.orders[o.ID] = &cp
	m.byPayment[o.PaymentOrderID] = o.ID
	m.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) GetOrderByPaymentID(ctx context.Context, paymentOrderID string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPayment[paymentOrderID]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return cloneOrder(m.orders[id]), nil
}

// ListOrders pages by id; the cursor is the last id of the previous page.
func (m *Memory) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := pageSize(f.Limit)
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []model.Order{}
	for _, id := range ids {
		if f.Cursor != "" && id <= f.Cursor {
			continue
		}
		o := m.orders[id]
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		if f.ShipmentStatus != "" && o.ShipmentStatus != f.ShipmentStatus {
			continue
		}
		if len(out) == limit {
			return out, out[len(out)-1].ID, nil
		}
		out = append(out, cloneOrder(o))
	}
	return out, "", nil
}

func (m *Memory) UpdatePayment(ctx context.Context, id string, upd model.PaymentUpdate) error {
	return m.update(id, func(o *model.Order) {
		o.PaymentStatus = upd.Status
		o.TransactionStatus = upd.TransactionStatus
		if o.PaidAt == nil && upd.PaidAt != nil {
			t := *upd.PaidAt
			o.PaidAt = &t
		}
	})
}

func (m *Memory) SetPaymentToken(ctx context.Context, id, token string) error {
	return m.update(id, func(o *model.Order) { o.PaymentToken = token })
}

func (m *Memory) ClaimShipment(ctx context.Context, id string, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	now := m.now().UTC()
	if o.HasShipment() || o.ShipmentStatus == model.ShipmentFulfilled {
		return false, nil
	}
	if o.ShipmentClaimedAt != nil && o.ShipmentClaimedAt.After(now.Add(-lease)) {
		return false, nil
	}
	o.ShipmentClaimedAt = &now
	o.UpdatedAt = now
	return true, nil
}

func (m *Memory) RecordShipment(ctx context.Context, id string, rec model.ShipmentRecord) error {
	return m.update(id, func(o *model.Order) {
		o.ShipmentStatus = model.ShipmentCreated
		o.ShipmentOrderID = rec.ShipmentOrderID
		o.TrackingURL = rec.TrackingURL
		o.Waybill = rec.Waybill
		if rec.CourierCompany != "" {
			o.CourierCompany = rec.CourierCompany
		}
		if rec.CourierType != "" {
			o.CourierType = rec.CourierType
		}
		o.ShipmentError = ""
	})
}

func (m *Memory) MarkShipmentStatus(ctx context.Context, id string, status model.ShipmentStatus, shipmentErr string) error {
	return m.update(id, func(o *model.Order) {
		o.ShipmentStatus = status
		o.ShipmentError = shipmentErr
		if releasesClaim(status) {
			o.ShipmentClaimedAt = nil
		}
	})
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) update(id string, fn func(o *model.Order)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	fn(o)
	o.UpdatedAt = m.now().UTC()
	return nil
}

func cloneOrder(o *model.Order) model.Order {
	cp := *o
	cp.Items = append([]model.LineItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.ShipmentClaimedAt != nil {
		t := *o.ShipmentClaimedAt
		cp.ShipmentClaimedAt = &t
	}
	return cp
}
