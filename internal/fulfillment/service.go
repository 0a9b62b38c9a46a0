// Package fulfillment drives an order from payment confirmation to a booked
// courier shipment. Every path records its outcome on the order row before
// returning.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cookiebox/internal/alerts"
	"cookiebox/internal/courier"
	"cookiebox/internal/events"
	"cookiebox/internal/metrics"
	"cookiebox/internal/model"
	"cookiebox/internal/payment"
	"cookiebox/internal/store"
)

// StatusSource fetches the provider's current view of a transaction.
type StatusSource interface {
	Status(ctx context.Context, orderID string) (payment.Notification, error)
}

type Options struct {
	ServerKey  string
	ClaimLease time.Duration
	Log        *slog.Logger
	Broker     events.Broker
	Alerts     *alerts.Notifier
	Payments   StatusSource
	Now        func() time.Time
}

type Service struct {
	store       store.Store
	dispatchers map[courier.Provider]courier.Dispatcher
	serverKey   string
	lease       time.Duration
	log         *slog.Logger
	broker      events.Broker
	alerts      *alerts.Notifier
	payments    StatusSource
	now         func() time.Time
}

func New(st store.Store, dispatchers []courier.Dispatcher, opts Options) *Service {
	s := &Service{
		store:       st,
		dispatchers: map[courier.Provider]courier.Dispatcher{},
		serverKey:   opts.ServerKey,
		lease:       opts.ClaimLease,
		log:         opts.Log,
		broker:      opts.Broker,
		alerts:      opts.Alerts,
		payments:    opts.Payments,
		now:         opts.Now,
	}
	for _, d := range dispatchers {
		s.dispatchers[d.Provider()] = d
	}
	if s.lease <= 0 {
		s.lease = 2 * time.Minute
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HandlePaymentNotification processes one payment webhook delivery. Invalid
// signatures are acknowledged and ignored. Dispatch problems are recorded on
// the order and reported in the result; only a missing order id, an unknown
// order or a store failure produce an error.
func (s *Service) HandlePaymentNotification(ctx context.Context, n payment.Notification) (WebhookResult, error) {
	if n.OrderID == "" {
		metrics.PaymentWebhooks.WithLabelValues("invalid_request").Inc()
		return WebhookResult{}, fmt.Errorf("%w: order_id is required", ErrInvalidRequest)
	}
	if !payment.VerifySignature(n, s.serverKey) {
		metrics.PaymentWebhooks.WithLabelValues("invalid_signature").Inc()
		s.log.Warn("payment notification signature mismatch", "midtrans_order_id", n.OrderID, "transaction_status", n.TransactionStatus)
		return WebhookResult{OK: true, Ignored: true, Reason: "invalid signature"}, nil
	}
	return s.applyNotification(ctx, n, "webhook")
}

// Reconcile pulls the transaction status from the payment provider and applies
// it as if it had been delivered by webhook.
func (s *Service) Reconcile(ctx context.Context, paymentOrderID string) (WebhookResult, error) {
	if paymentOrderID == "" {
		return WebhookResult{}, fmt.Errorf("%w: midtrans_order_id is required", ErrInvalidRequest)
	}
	if s.payments == nil {
		return WebhookResult{}, errors.New("payment status source not configured")
	}
	if _, err := s.load(ctx, paymentOrderID); err != nil {
		return WebhookResult{}, err
	}
	n, err := s.payments.Status(ctx, paymentOrderID)
	if err != nil {
		var apiErr *payment.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return WebhookResult{}, fmt.Errorf("%w: no transaction at payment provider", ErrOrderNotFound)
		}
		return WebhookResult{}, fmt.Errorf("fetch payment status: %w", err)
	}
	if n.OrderID == "" {
		n.OrderID = paymentOrderID
	}
	return s.applyNotification(ctx, n, "reconcile")
}

func (s *Service) applyNotification(ctx context.Context, n payment.Notification, trigger string) (WebhookResult, error) {
	o, err := s.load(ctx, n.OrderID)
	if err != nil {
		return WebhookResult{}, err
	}
	normalized, known := payment.Normalize(n.TransactionStatus, n.FraudStatus)
	if !known {
		s.log.Warn("unrecognised transaction status", "midtrans_order_id", o.PaymentOrderID, "transaction_status", n.TransactionStatus)
	}
	prev := o.PaymentStatus
	next := normalized
	if prev == model.PaymentPaid && next != model.PaymentPaid && next != model.PaymentRefunded {
		next = model.PaymentPaid
	}
	upd := model.PaymentUpdate{Status: next, TransactionStatus: n.TransactionStatus}
	if next == model.PaymentPaid && o.PaidAt == nil {
		now := s.now().UTC()
		upd.PaidAt = &now
	}
	if err := s.store.UpdatePayment(ctx, o.ID, upd); err != nil {
		return WebhookResult{}, fmt.Errorf("update payment: %w", err)
	}
	o.PaymentStatus = next
	o.TransactionStatus = n.TransactionStatus
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}
	s.log.Info("payment status applied", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger,
		"transaction_status", n.TransactionStatus, "fraud_status", n.FraudStatus, "previous", prev, "payment_status", next)
	s.publish(events.TypePaymentUpdated, &o, "")

	res := WebhookResult{OK: true, PaymentStatus: next}
	if prev == model.PaymentPaid {
		metrics.PaymentWebhooks.WithLabelValues("already_processed").Inc()
		res.Status = StatusAlreadyProcessed
		return res, nil
	}
	if next != model.PaymentPaid {
		metrics.PaymentWebhooks.WithLabelValues("applied").Inc()
		return res, nil
	}
	s.checkAmount(ctx, &o, n)

	sr, err := s.dispatch(ctx, &o, trigger)
	if err != nil && sr.Shipment == "" {
		return WebhookResult{}, err
	}
	metrics.PaymentWebhooks.WithLabelValues("paid_" + sr.Shipment).Inc()
	// Dispatch problems are already recorded on the order; the provider
	// still gets an acknowledgement so it does not redeliver.
	res.withShipment(sr)
	return res, nil
}

// CreateShipment dispatches a paid order on operator request.
func (s *Service) CreateShipment(ctx context.Context, paymentOrderID string) (ShipmentResult, error) {
	return s.adminDispatch(ctx, paymentOrderID, "admin_create")
}

// RetryShipment re-drives an order parked in needs_attention or failed.
func (s *Service) RetryShipment(ctx context.Context, paymentOrderID string) (ShipmentResult, error) {
	return s.adminDispatch(ctx, paymentOrderID, "admin_retry")
}

func (s *Service) adminDispatch(ctx context.Context, paymentOrderID, trigger string) (ShipmentResult, error) {
	if paymentOrderID == "" {
		return ShipmentResult{}, fmt.Errorf("%w: midtrans_order_id is required", ErrInvalidRequest)
	}
	o, err := s.load(ctx, paymentOrderID)
	if err != nil {
		return ShipmentResult{}, err
	}
	if o.PaymentStatus != model.PaymentPaid {
		return ShipmentResult{}, fmt.Errorf("%w: payment status is %s", ErrNotPaid, o.PaymentStatus)
	}
	if o.HasShipment() {
		return alreadyCreated(&o), nil
	}
	if !o.ShipmentStatus.Retryable() {
		return ShipmentResult{}, fmt.Errorf("%w: shipment status is %s", ErrInvalidRequest, o.ShipmentStatus)
	}
	s.log.Info("admin shipment dispatch", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger, "shipment_status", o.ShipmentStatus)
	return s.dispatch(ctx, &o, trigger)
}

// MarkPaid forces PAID for offline payments. It never dispatches.
func (s *Service) MarkPaid(ctx context.Context, paymentOrderID string) (StatusResult, error) {
	if paymentOrderID == "" {
		return StatusResult{}, fmt.Errorf("%w: midtrans_order_id is required", ErrInvalidRequest)
	}
	o, err := s.load(ctx, paymentOrderID)
	if err != nil {
		return StatusResult{}, err
	}
	if o.PaymentStatus == model.PaymentPaid {
		return StatusResult{OK: true, Status: StatusAlreadyPaid}, nil
	}
	now := s.now().UTC()
	upd := model.PaymentUpdate{Status: model.PaymentPaid, TransactionStatus: o.TransactionStatus}
	if o.PaidAt == nil {
		upd.PaidAt = &now
	}
	if err := s.store.UpdatePayment(ctx, o.ID, upd); err != nil {
		return StatusResult{}, fmt.Errorf("mark paid: %w", err)
	}
	s.log.Info("order marked paid", "midtrans_order_id", o.PaymentOrderID, "previous", o.PaymentStatus)
	o.PaymentStatus = model.PaymentPaid
	s.publish(events.TypePaymentUpdated, &o, "marked paid by admin")
	return StatusResult{OK: true, Status: StatusPaid}, nil
}

// MarkFulfilled records delivery completion.
func (s *Service) MarkFulfilled(ctx context.Context, paymentOrderID string) (StatusResult, error) {
	if paymentOrderID == "" {
		return StatusResult{}, fmt.Errorf("%w: midtrans_order_id is required", ErrInvalidRequest)
	}
	o, err := s.load(ctx, paymentOrderID)
	if err != nil {
		return StatusResult{}, err
	}
	if o.ShipmentStatus == model.ShipmentFulfilled {
		return StatusResult{OK: true, Status: StatusAlreadyFulfilled}, nil
	}
	if err := s.store.MarkShipmentStatus(ctx, o.ID, model.ShipmentFulfilled, ""); err != nil {
		return StatusResult{}, fmt.Errorf("mark fulfilled: %w", err)
	}
	o.ShipmentStatus = model.ShipmentFulfilled
	s.log.Info("order marked fulfilled", "midtrans_order_id", o.PaymentOrderID)
	s.publish(events.TypeOrderFulfilled, &o, "")
	return StatusResult{OK: true, Status: StatusFulfilled}, nil
}

func (s *Service) load(ctx context.Context, paymentOrderID string) (model.Order, error) {
	o, err := s.store.GetOrderByPaymentID(ctx, paymentOrderID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, paymentOrderID)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("load order %s: %w", paymentOrderID, err)
	}
	return o, nil
}

// checkAmount flags a paid amount that differs from the order total. The
// payment still stands.
func (s *Service) checkAmount(ctx context.Context, o *model.Order, n payment.Notification) {
	amt, err := n.Amount()
	if err != nil || o.TotalIDR.IsZero() || amt.Equal(o.TotalIDR) {
		return
	}
	msg := fmt.Sprintf("paid %s, order total %s", amt.String(), o.TotalIDR.String())
	s.log.Warn("payment amount mismatch", "midtrans_order_id", o.PaymentOrderID, "gross_amount", amt.String(), "total_idr", o.TotalIDR.String())
	s.publish(events.TypeAmountMismatch, o, msg)
	s.alert(ctx, alerts.TypeAmountMismatch, o, msg)
}

func (s *Service) publish(typ string, o *model.Order, msg string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.TopicOrders, events.Event{
		Type:           typ,
		OrderNumber:    o.OrderNumber,
		PaymentOrderID: o.PaymentOrderID,
		PaymentStatus:  string(o.PaymentStatus),
		ShipmentStatus: string(o.ShipmentStatus),
		Message:        msg,
		TS:             s.now().UTC(),
	})
}

func (s *Service) alert(ctx context.Context, typ string, o *model.Order, msg string) {
	if !s.alerts.Enabled() {
		return
	}
	_ = s.alerts.Notify(ctx, alerts.Alert{
		Type:           typ,
		OrderNumber:    o.OrderNumber,
		PaymentOrderID: o.PaymentOrderID,
		Message:        msg,
	})
}
