package lalamove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiebox/internal/config"
	"cookiebox/internal/courier"
	"cookiebox/internal/model"
)

func fp(f float64) *float64 { return &f }

func testConfig(base string) config.Lalamove {
	return config.Lalamove{
		APIKey:      "pk_test_1",
		APISecret:   "sk_test_1",
		BaseURL:     base,
		Market:      "ID",
		Language:    "id_ID",
		ServiceType: "MOTORCYCLE",
		Pickup:      config.Pickup{Lat: -6.2615, Lng: 106.8106, Address: "Jl. Kemang Raya 10", Name: "Kitchen", Phone: "+6281200000001"},
	}
}

func testOrder() *model.Order {
	return &model.Order{
		OrderNumber:     "KR-0002",
		PaymentOrderID:  "cookie-02",
		CustomerName:    "Budi",
		CustomerPhone:   "+6281299990001",
		ShippingAddress: "Jl. Senopati 5",
		CourierCompany:  "lalamove",
		ShippingMeta:    model.ShippingMeta{Lat: fp(-6.2297), Lng: fp(106.8096)},
		Items: []model.LineItem{
			{Name: "Choco Chip Box", Quantity: 2, Value: decimal.NewFromInt(60000)},
		},
	}
}

var sel = courier.Selection{Provider: courier.Lalamove, Company: "lalamove"}

type recorded struct {
	method, path, auth, market, requestID string
	body                                  []byte
}

func fakeLalamove(t *testing.T, failPath string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, r.Header.Get("Authorization"), r.Header.Get("Market"), r.Header.Get("Request-ID"), b})
		mu.Unlock()
		if r.URL.Path == failPath {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"id":"ERR_OUT_OF_SERVICE_AREA","message":"Out of service area"}]}`))
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v3/quotations":
			_, _ = w.Write([]byte(`{"data":{"quotationId":"q-1","stops":[{"stopId":"s-0"},{"stopId":"s-1"}]}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v3/orders":
			_, _ = w.Write([]byte(`{"data":{"orderId":"ll-100"}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v3/orders/ll-100":
			_, _ = w.Write([]byte(`{"data":{"orderId":"ll-100","shareLink":"https://share.lalamove.com/ll-100"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCreateShipmentThreeSignedCalls(t *testing.T) {
	srv, calls := fakeLalamove(t, "")
	c := New(testConfig(srv.URL), srv.Client())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := c.CreateShipment(context.Background(), testOrder(), sel)
	require.NoError(t, err)
	assert.Equal(t, courier.Result{Provider: courier.Lalamove, ExternalID: "ll-100", TrackingURL: "https://share.lalamove.com/ll-100"}, res)

	require.Len(t, *calls, 3)
	ids := map[string]bool{}
	for _, call := range *calls {
		want := fmt.Sprintf("hmac pk_test_1:%s:1700000000000", signature("sk_test_1", "1700000000000", call.method, call.path, call.body))
		assert.Equal(t, want, call.auth, call.path)
		assert.Equal(t, "ID", call.market)
		assert.NotEmpty(t, call.requestID)
		ids[call.requestID] = true
	}
	assert.Len(t, ids, 3)

	var quote struct {
		Data quotationRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal((*calls)[0].body, &quote))
	assert.Equal(t, "MOTORCYCLE", quote.Data.ServiceType)
	require.Len(t, quote.Data.Stops, 2)
	assert.Equal(t, "-6.2297", quote.Data.Stops[1].Coordinates.Lat)

	var placed struct {
		Data placeOrderRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal((*calls)[1].body, &placed))
	assert.Equal(t, "q-1", placed.Data.QuotationID)
	assert.Equal(t, "s-0", placed.Data.Sender.StopID)
	assert.Equal(t, "s-1", placed.Data.Recipients[0].StopID)
	assert.Contains(t, placed.Data.Recipients[0].Remarks, "2x Choco Chip Box")
}

func TestCreateShipmentAbortsOnFailedStep(t *testing.T) {
	srv, calls := fakeLalamove(t, "/v3/orders")
	_, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), testOrder(), sel)
	var pe *courier.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "place order", pe.Op)
	assert.Equal(t, http.StatusUnprocessableEntity, pe.StatusCode)
	assert.Equal(t, "Out of service area", pe.Message)
	assert.Len(t, *calls, 2)
}

func TestCreateShipmentRequiresCoordinates(t *testing.T) {
	srv, calls := fakeLalamove(t, "")
	o := testOrder()
	o.ShippingMeta.Lat = nil
	_, err := New(testConfig(srv.URL), srv.Client()).CreateShipment(context.Background(), o, sel)
	require.ErrorIs(t, err, courier.ErrIncomplete)
	assert.Empty(t, *calls)
}

func TestRemarksCapped(t *testing.T) {
	o := &model.Order{OrderNumber: "KR-9"}
	for i := 0; i < 20; i++ {
		o.Items = append(o.Items, model.LineItem{Name: fmt.Sprintf("Box %d", i), Quantity: 1})
	}
	lines := strings.Split(Remarks(o), "\n")
	assert.Len(t, lines, maxRemarkLines)
	assert.Equal(t, "Order KR-9", lines[0])
}

func TestSignatureKnownInput(t *testing.T) {
	a := signature("secret", "1", "POST", "/v3/quotations", []byte(`{}`))
	b := signature("secret", "2", "POST", "/v3/quotations", []byte(`{}`))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
