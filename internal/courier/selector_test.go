package courier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiebox/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestSelectBiteship(t *testing.T) {
	o := &model.Order{CourierCompany: "JNE", CourierType: "REG", Postal: "12150"}
	sel, err := Select(o)
	require.NoError(t, err)
	assert.Equal(t, Selection{Provider: Biteship, Company: "jne", Type: "reg"}, sel)
}

func TestSelectFallsBackToMetaCodes(t *testing.T) {
	o := &model.Order{Postal: "40115", ShippingMeta: model.ShippingMeta{CourierCode: "SiCepat", CourierService: "BEST"}}
	sel, err := Select(o)
	require.NoError(t, err)
	assert.Equal(t, "sicepat", sel.Company)
	assert.Equal(t, "best", sel.Type)
}

func TestSelectMissingPostal(t *testing.T) {
	o := &model.Order{CourierCompany: "jne", CourierType: "reg"}
	_, err := Select(o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomplete))
	var ie *IncompleteError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"postal code"}, ie.Missing)
}

func TestSelectNonNumericPostalAndNoCourier(t *testing.T) {
	o := &model.Order{Postal: "12A50"}
	_, err := Select(o)
	var ie *IncompleteError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"postal code", "courier company", "courier type"}, ie.Missing)
}

func TestSelectLalamove(t *testing.T) {
	o := &model.Order{CourierCompany: "Lalamove", ShippingMeta: model.ShippingMeta{Lat: ptr(-6.2), Lng: ptr(106.8)}}
	sel, err := Select(o)
	require.NoError(t, err)
	assert.Equal(t, Lalamove, sel.Provider)

	o.ShippingMeta.Lng = nil
	_, err = Select(o)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestLalamoveIgnoresPostal(t *testing.T) {
	o := &model.Order{CourierCompany: "lalamove", ShippingMeta: model.ShippingMeta{Lat: ptr(-6.2), Lng: ptr(106.8)}}
	_, err := Select(o)
	require.NoError(t, err)
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, Lalamove, Suggest("12150", "instant", "", "").Provider)
	assert.Equal(t, Lalamove, Suggest("10110", "same_day", "jne", "reg").Provider)

	sel := Suggest("40115", "instant", "JNE", "REG")
	assert.Equal(t, Selection{Provider: Biteship, Company: "jne", Type: "reg"}, sel)

	sel = Suggest("12150", "regular", "sicepat", "best")
	assert.Equal(t, Biteship, sel.Provider)
}

func TestInJakarta(t *testing.T) {
	assert.True(t, InJakarta("14450"))
	assert.False(t, InJakarta("15116"))
	assert.False(t, InJakarta("1215"))
	assert.False(t, InJakarta(""))
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: Biteship, Op: "create order", StatusCode: 400, Message: "Invalid postal code", Body: `{"error":"Invalid postal code"}`}
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), `{"error":"Invalid postal code"}`)
}
