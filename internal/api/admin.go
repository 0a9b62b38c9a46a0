package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cookiebox/internal/courier"
	"cookiebox/internal/fulfillment"
	"cookiebox/internal/model"
	"cookiebox/internal/store"
)

type orderRef struct {
	MidtransOrderID string `json:"midtrans_order_id" validate:"required"`
}

// shipmentProblem is a problem body that also carries whatever dispatch
// outcome was recorded before the failure.
type shipmentProblem struct {
	Problem
	fulfillment.ShipmentResult
}

// decodeRef reads {midtrans_order_id}. It writes the 400 itself.
func (s *Server) decodeRef(w http.ResponseWriter, r *http.Request) (string, bool) {
	var ref orderRef
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&ref); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return "", false
	}
	if err := s.validator().Struct(ref); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "midtrans_order_id is required", r.URL.Path)
		return "", false
	}
	return ref.MidtransOrderID, true
}

// classify maps orchestrator errors onto HTTP statuses.
func classify(err error) (int, string) {
	var pe *courier.ProviderError
	switch {
	case errors.Is(err, fulfillment.ErrInvalidRequest),
		errors.Is(err, fulfillment.ErrNotPaid),
		errors.Is(err, courier.ErrIncomplete):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, fulfillment.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, fulfillment.ErrInProgress):
		return http.StatusConflict, "Shipment dispatch in progress"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, "Shipment provider error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func (s *Server) shipmentAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (fulfillment.ShipmentResult, error)) {
	id, ok := s.decodeRef(w, r)
	if !ok {
		return
	}
	res, err := action(r.Context(), id)
	if err != nil {
		status, title := classify(err)
		if status == http.StatusInternalServerError {
			s.Log.Error("admin shipment action failed", "path", r.URL.Path, "midtrans_order_id", id,
				"subject", principalFrom(r.Context()).Subject, "err", err)
		}
		res.OK = false
		if res.Error == "" && res.Reason == "" {
			res.Error = err.Error()
		}
		writeJSON(w, status, shipmentProblem{
			Problem:        Problem{Type: "about:blank", Title: title, Status: status, Detail: err.Error(), Instance: r.URL.Path},
			ShipmentResult: res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateShipmentHandler handles POST /v1/admin/shipments/create.
func (s *Server) CreateShipmentHandler(w http.ResponseWriter, r *http.Request) {
	s.shipmentAction(w, r, s.Orders.CreateShipment)
}

// RetryShipmentHandler handles POST /v1/admin/shipments/retry.
func (s *Server) RetryShipmentHandler(w http.ResponseWriter, r *http.Request) {
	s.shipmentAction(w, r, s.Orders.RetryShipment)
}

func (s *Server) statusAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (fulfillment.StatusResult, error)) {
	id, ok := s.decodeRef(w, r)
	if !ok {
		return
	}
	res, err := action(r.Context(), id)
	if err != nil {
		status, title := classify(err)
		if status == http.StatusInternalServerError {
			s.Log.Error("admin status action failed", "path", r.URL.Path, "midtrans_order_id", id, "err", err)
		}
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	s.Log.Info("admin status override", "path", r.URL.Path, "midtrans_order_id", id,
		"subject", principalFrom(r.Context()).Subject, "status", res.Status)
	writeJSON(w, http.StatusOK, res)
}

// MarkPaidHandler handles POST /v1/admin/orders/mark-paid.
func (s *Server) MarkPaidHandler(w http.ResponseWriter, r *http.Request) {
	s.statusAction(w, r, s.Orders.MarkPaid)
}

// MarkFulfilledHandler handles POST /v1/admin/orders/mark-fulfilled.
func (s *Server) MarkFulfilledHandler(w http.ResponseWriter, r *http.Request) {
	s.statusAction(w, r, s.Orders.MarkFulfilled)
}

// ReconcileHandler handles POST /v1/admin/orders/reconcile.
func (s *Server) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.decodeRef(w, r)
	if !ok {
		return
	}
	res, err := s.Orders.Reconcile(r.Context(), id)
	if err != nil {
		status, title := classify(err)
		if status == http.StatusInternalServerError {
			status, title = http.StatusBadGateway, "Reconcile failed"
			s.Log.Error("reconcile failed", "midtrans_order_id", id, "err", err)
		}
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListOrdersHandler handles GET /v1/admin/orders.
func (s *Server) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.OrderFilter{Cursor: q.Get("cursor")}
	if v := q.Get("payment_status"); v != "" {
		ps := model.ParsePaymentStatus(v)
		if !ps.Valid() {
			writeProblem(w, http.StatusBadRequest, "Invalid payment_status", "unknown payment status "+v, r.URL.Path)
			return
		}
		f.PaymentStatus = ps
	}
	if v := q.Get("shipment_status"); v != "" {
		ss, err := model.ParseShipmentStatus(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid shipment_status", err.Error(), r.URL.Path)
			return
		}
		f.ShipmentStatus = ss
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer", r.URL.Path)
			return
		}
		f.Limit = n
	}
	items, next, err := s.Store.ListOrders(r.Context(), f)
	if err != nil {
		s.Log.Error("list orders failed", "err", err)
		writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
		return
	}
	if items == nil {
		items = []model.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// GetOrderHandler handles GET /v1/admin/orders/{id} where id is the payment order id.
func (s *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, err := s.Store.GetOrderByPaymentID(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Order not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get order failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
