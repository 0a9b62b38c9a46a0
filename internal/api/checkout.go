package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"cookiebox/internal/courier"
	"cookiebox/internal/events"
	"cookiebox/internal/model"
	"cookiebox/internal/store"
)

type checkoutItem struct {
	Name     string          `json:"name" validate:"required,max=120"`
	Quantity int             `json:"quantity" validate:"min=1,max=999"`
	Price    decimal.Decimal `json:"price"`
}

type checkoutRequest struct {
	Customer struct {
		Name  string `json:"name" validate:"required,max=120"`
		Phone string `json:"phone" validate:"required,max=32"`
		Email string `json:"email" validate:"omitempty,email"`
	} `json:"customer"`
	Address struct {
		Line     string `json:"line" validate:"required,max=500"`
		Building string `json:"building" validate:"max=200"`
		Postal   string `json:"postal" validate:"omitempty,numeric,len=5"`
		AreaID   string `json:"areaId"`
	} `json:"address"`
	Geocode *struct {
		Lat              float64 `json:"lat" validate:"latitude"`
		Lng              float64 `json:"lng" validate:"longitude"`
		FormattedAddress string  `json:"formattedAddress"`
	} `json:"geocode"`
	Items    []checkoutItem `json:"items" validate:"required,min=1,max=50,dive"`
	Delivery struct {
		Preference string `json:"preference" validate:"omitempty,oneof=instant same_day regular"`
		Company    string `json:"company"`
		Service    string `json:"service"`
	} `json:"delivery"`
}

type checkoutResponse struct {
	OrderID         string `json:"order_id"`
	MidtransOrderID string `json:"midtrans_order_id"`
	OrderNumber     string `json:"order_number"`
	SnapToken       string `json:"snap_token"`
	RedirectURL     string `json:"redirect_url"`
}

// CheckoutHandler handles POST /v1/checkout: it stores an UNPAID order and
// opens a hosted payment page for it.
func (s *Server) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.validator().Struct(req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid checkout", err.Error(), r.URL.Path)
		return
	}
	o, err := s.newOrder(req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid checkout", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.CreateOrder(r.Context(), o); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrConflict) {
			status = http.StatusConflict
		}
		s.Log.Error("create order failed", "order_number", o.OrderNumber, "err", err)
		writeProblem(w, status, "Create order failed", err.Error(), r.URL.Path)
		return
	}

	snap, err := s.Payments.CreateTransaction(r.Context(), o)
	if err != nil {
		// The UNPAID row stays; no webhook will ever reference it.
		s.Log.Error("payment link failed", "midtrans_order_id", o.PaymentOrderID, "err", err)
		writeProblem(w, http.StatusBadGateway, "Payment provider error", err.Error(), r.URL.Path)
		return
	}
	if err := s.Store.SetPaymentToken(r.Context(), o.ID, snap.Token); err != nil {
		s.Log.Warn("payment token not stored", "midtrans_order_id", o.PaymentOrderID, "err", err)
	}

	s.Log.Info("order created", "order_number", o.OrderNumber, "midtrans_order_id", o.PaymentOrderID,
		"total_idr", o.TotalIDR.String(), "courier", o.CourierCompany)
	if s.Broker != nil {
		s.Broker.Publish(events.TopicOrders, events.Event{
			Type:           events.TypeOrderCreated,
			OrderNumber:    o.OrderNumber,
			PaymentOrderID: o.PaymentOrderID,
			PaymentStatus:  string(o.PaymentStatus),
			ShipmentStatus: string(o.ShipmentStatus),
			Data:           map[string]any{"totalIdr": o.TotalIDR.String(), "courier": o.CourierCompany},
		})
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:         o.ID,
		MidtransOrderID: o.PaymentOrderID,
		OrderNumber:     o.OrderNumber,
		SnapToken:       snap.Token,
		RedirectURL:     snap.RedirectURL,
	})
}

func (s *Server) newOrder(req checkoutRequest) (*model.Order, error) {
	items := make([]model.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		if !it.Price.IsPositive() {
			return nil, fmt.Errorf("item %q: price must be positive", it.Name)
		}
		items = append(items, model.LineItem{Name: strings.TrimSpace(it.Name), Quantity: it.Quantity, Value: it.Price})
	}

	now := s.clock().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	o := &model.Order{
		ID:                uuid.NewString(),
		OrderNumber:       orderNumber(id),
		PaymentOrderID:    "cookie-" + strings.ToLower(id.String()),
		PaymentStatus:     model.PaymentUnpaid,
		ShipmentStatus:    model.ShipmentNotCreated,
		ShippingAddress:   strings.TrimSpace(req.Address.Line),
		BuildingName:      strings.TrimSpace(req.Address.Building),
		Postal:            req.Address.Postal,
		DestinationAreaID: req.Address.AreaID,
		Items:             items,
		TotalIDR:          model.ItemsTotal(items),
		CustomerName:      strings.TrimSpace(req.Customer.Name),
		CustomerPhone:     strings.TrimSpace(req.Customer.Phone),
		CustomerEmail:     strings.TrimSpace(req.Customer.Email),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if g := req.Geocode; g != nil {
		lat, lng := g.Lat, g.Lng
		o.ShippingMeta.Lat = &lat
		o.ShippingMeta.Lng = &lng
		o.ShippingMeta.FormattedAddress = g.FormattedAddress
	}
	sel := courier.Suggest(req.Address.Postal, req.Delivery.Preference, req.Delivery.Company, req.Delivery.Service)
	o.CourierCompany = sel.Company
	o.CourierType = sel.Type
	o.ShippingMeta.CourierCode = strings.ToLower(strings.TrimSpace(req.Delivery.Company))
	o.ShippingMeta.CourierService = strings.ToLower(strings.TrimSpace(req.Delivery.Service))
	return o, nil
}

// orderNumber is the customer-facing reference: date plus the ULID's random tail.
func orderNumber(id ulid.ULID) string {
	s := id.String()
	return fmt.Sprintf("CB-%s-%s", ulid.Time(id.Time()).UTC().Format("20060102"), s[len(s)-6:])
}
