package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cookiebox/internal/alerts"
	"cookiebox/internal/courier"
	"cookiebox/internal/events"
	"cookiebox/internal/metrics"
	"cookiebox/internal/model"
)

// recordTimeout bounds outcome writes made after the caller's context is gone.
const recordTimeout = 10 * time.Second

// recordContext detaches ctx from cancellation so the outcome of a provider
// call is persisted even when the request ends mid-dispatch.
func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

// dispatch runs selection, claim and provider call for a paid order.
//
// A returned error with a non-empty Shipment is an outcome already recorded
// on the order (skipped, failed, in-progress). An error with an empty
// Shipment is a store failure.
func (s *Service) dispatch(ctx context.Context, o *model.Order, trigger string) (ShipmentResult, error) {
	if o.HasShipment() {
		return alreadyCreated(o), nil
	}

	sel, err := courier.Select(o)
	if err != nil {
		return s.parkNeedsAttention(ctx, o, sel, trigger, err)
	}

	claimed, err := s.store.ClaimShipment(ctx, o.ID, s.lease)
	if err != nil {
		return ShipmentResult{}, fmt.Errorf("claim shipment: %w", err)
	}
	if !claimed {
		cur, err := s.store.GetOrder(ctx, o.ID)
		if err != nil {
			return ShipmentResult{}, fmt.Errorf("reload order: %w", err)
		}
		if cur.HasShipment() {
			return alreadyCreated(&cur), nil
		}
		metrics.ShipmentDispatches.WithLabelValues(string(sel.Provider), trigger, "in_progress").Inc()
		s.log.Info("shipment dispatch already claimed", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger)
		return ShipmentResult{Shipment: ShipmentInProgress, ShipmentStatus: cur.ShipmentStatus, Provider: sel.Provider}, ErrInProgress
	}

	d, ok := s.dispatchers[sel.Provider]
	if !ok {
		return s.recordFailure(ctx, o, sel, trigger, fmt.Errorf("no dispatcher configured for %s", sel.Provider))
	}
	res, err := d.CreateShipment(ctx, o, sel)
	if err != nil {
		if errors.Is(err, courier.ErrIncomplete) {
			return s.parkNeedsAttention(ctx, o, sel, trigger, err)
		}
		return s.recordFailure(ctx, o, sel, trigger, err)
	}

	rec := model.ShipmentRecord{
		ShipmentOrderID: res.ExternalID,
		TrackingURL:     res.TrackingURL,
		Waybill:         res.Waybill,
		CourierCompany:  sel.Company,
		CourierType:     sel.Type,
	}
	wctx, cancel := recordContext(ctx)
	defer cancel()
	if err := s.store.RecordShipment(wctx, o.ID, rec); err != nil {
		// The provider booked a delivery we could not persist. The claim
		// stays in place so nothing re-dispatches inside the lease.
		s.log.Error("shipment created but not recorded", "midtrans_order_id", o.PaymentOrderID,
			"provider", sel.Provider, "shipment_order_id", res.ExternalID, "err", err)
		return ShipmentResult{}, fmt.Errorf("record shipment %s: %w", res.ExternalID, err)
	}
	o.ShipmentStatus = model.ShipmentCreated
	o.ShipmentOrderID = res.ExternalID
	o.TrackingURL = res.TrackingURL
	o.Waybill = res.Waybill

	metrics.ShipmentDispatches.WithLabelValues(string(sel.Provider), trigger, "created").Inc()
	s.log.Info("shipment created", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger,
		"provider", sel.Provider, "shipment_order_id", res.ExternalID, "waybill", res.Waybill)
	s.publish(events.TypeShipmentCreated, o, "")
	return ShipmentResult{
		OK:              true,
		Shipment:        ShipmentCreated,
		Provider:        sel.Provider,
		ShipmentStatus:  model.ShipmentCreated,
		ShipmentOrderID: res.ExternalID,
		TrackingURL:     res.TrackingURL,
		Waybill:         res.Waybill,
	}, nil
}

func (s *Service) parkNeedsAttention(ctx context.Context, o *model.Order, sel courier.Selection, trigger string, cause error) (ShipmentResult, error) {
	ctx, cancel := recordContext(ctx)
	defer cancel()
	if err := s.store.MarkShipmentStatus(ctx, o.ID, model.ShipmentNeedsAttention, cause.Error()); err != nil {
		return ShipmentResult{}, fmt.Errorf("mark needs_attention: %w", errors.Join(err, cause))
	}
	o.ShipmentStatus = model.ShipmentNeedsAttention
	o.ShipmentError = cause.Error()
	metrics.ShipmentDispatches.WithLabelValues(providerLabel(sel), trigger, "needs_attention").Inc()
	s.log.Warn("shipment needs attention", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger, "reason", cause.Error())
	s.publish(events.TypeNeedsAttention, o, cause.Error())
	s.alert(ctx, alerts.TypeNeedsAttention, o, cause.Error())
	return ShipmentResult{
		Shipment:       ShipmentSkipped,
		Provider:       sel.Provider,
		ShipmentStatus: model.ShipmentNeedsAttention,
		Reason:         cause.Error(),
	}, cause
}

func (s *Service) recordFailure(ctx context.Context, o *model.Order, sel courier.Selection, trigger string, cause error) (ShipmentResult, error) {
	ctx, cancel := recordContext(ctx)
	defer cancel()
	if err := s.store.MarkShipmentStatus(ctx, o.ID, model.ShipmentFailed, cause.Error()); err != nil {
		return ShipmentResult{}, fmt.Errorf("mark failed: %w", errors.Join(err, cause))
	}
	o.ShipmentStatus = model.ShipmentFailed
	o.ShipmentError = cause.Error()
	metrics.ShipmentDispatches.WithLabelValues(providerLabel(sel), trigger, "failed").Inc()
	s.log.Error("shipment dispatch failed", "midtrans_order_id", o.PaymentOrderID, "trigger", trigger,
		"provider", sel.Provider, "err", cause)
	s.publish(events.TypeShipmentFailed, o, cause.Error())
	s.alert(ctx, alerts.TypeShipmentFailed, o, cause.Error())
	return ShipmentResult{
		Shipment:       ShipmentFailed,
		Provider:       sel.Provider,
		ShipmentStatus: model.ShipmentFailed,
		Error:          cause.Error(),
	}, cause
}

func providerLabel(sel courier.Selection) string {
	if sel.Provider == "" {
		return "unknown"
	}
	return string(sel.Provider)
}
