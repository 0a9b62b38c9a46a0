package biteship

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiebox/internal/config"
	"cookiebox/internal/courier"
	"cookiebox/internal/model"
)

func testConfig(base string) config.Biteship {
	return config.Biteship{
		APIKey:  "biteship_test_key",
		BaseURL: base,
		Shipper: config.Contact{Name: "Kue Rumah", Phone: "081200000000", Organization: "Kue Rumah"},
		Origin: config.Origin{
			ContactName:  "Kitchen",
			ContactPhone: "081200000001",
			Address:      "Jl. Kemang Raya 10",
			PostalCode:   "12730",
		},
	}
}

func testOrder() *model.Order {
	return &model.Order{
		OrderNumber:       "KR-0001",
		PaymentOrderID:    "cookie-01",
		CustomerName:      "Sari",
		CustomerPhone:     "081299990000",
		ShippingAddress:   "Jl. Senopati 5",
		BuildingName:      "Tower B",
		Postal:            "12150",
		DestinationAreaID: "IDNP6IDNC148IDND845IDZ12150",
		CourierCompany:    "jne",
		CourierType:       "reg",
		Items: []model.LineItem{
			{Name: "Choco Chip Box", Quantity: 2, Value: decimal.NewFromInt(60000)},
			{Name: "Matcha Box", Quantity: 1, Value: decimal.NewFromInt(60000)},
		},
	}
}

var sel = courier.Selection{Provider: courier.Biteship, Company: "jne", Type: "reg"}

func TestCreateShipmentFlatEnvelope(t *testing.T) {
	var got orderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "Bearer biteship_test_key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"id":"5dd599ebdefcd4158eb8470b","courier":{"waybill_id":"JNE123","link":"https://track.biteship.com/5dd5"}}`))
	}))
	defer srv.Close()

	res, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), testOrder(), sel)
	require.NoError(t, err)
	assert.Equal(t, courier.Result{Provider: courier.Biteship, ExternalID: "5dd599ebdefcd4158eb8470b", Waybill: "JNE123", TrackingURL: "https://track.biteship.com/5dd5"}, res)

	assert.Equal(t, 12150, got.DestinationPostalCode)
	assert.Equal(t, 12730, got.OriginPostalCode)
	assert.Equal(t, "jne", got.CourierCompany)
	assert.Equal(t, "reg", got.CourierType)
	assert.Equal(t, "Kue Rumah", got.ShipperContactName)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 100, got.Items[0].Weight)
	assert.EqualValues(t, 60000, got.Items[0].Value)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "Order KR-0001 - Tower B", got.OrderNote)
}

func TestCreateShipmentWrappedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"ord_2","courier":{"waybill":"WB2","tracking_url":"https://t/2"}}}`))
	}))
	defer srv.Close()

	res, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), testOrder(), sel)
	require.NoError(t, err)
	assert.Equal(t, "ord_2", res.ExternalID)
	assert.Equal(t, "WB2", res.Waybill)
	assert.Equal(t, "https://t/2", res.TrackingURL)
}

func TestCreateShipmentProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Courier not available for this area","code":40002001}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), testOrder(), sel)
	var pe *courier.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "Courier not available for this area", pe.Message)
	assert.Contains(t, err.Error(), `"code":40002001`)
}

func TestCreateShipmentMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"courier":{}}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), testOrder(), sel)
	var pe *courier.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "response without order id", pe.Message)
}

func TestEnvelopePrefersFlatShape(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"id":"flat","data":{"id":"wrapped","courier":{"waybill_id":"W"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "flat", env.str("id"))
	assert.Equal(t, "W", env.str("courier.waybill_id", "courier.waybill"))
	assert.Equal(t, "", env.str("courier.link"))
}
