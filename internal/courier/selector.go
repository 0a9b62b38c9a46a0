package courier

import (
	"strings"

	"cookiebox/internal/model"
)

// Select reads the courier decided at checkout and validates that the order
// carries everything the matching provider needs. It never infers a courier.
func Select(o *model.Order) (Selection, error) {
	company := strings.ToLower(strings.TrimSpace(firstNonEmpty(o.CourierCompany, o.ShippingMeta.CourierCode)))
	typ := strings.ToLower(strings.TrimSpace(firstNonEmpty(o.CourierType, o.ShippingMeta.CourierService)))

	if company == string(Lalamove) {
		sel := Selection{Provider: Lalamove, Company: company, Type: typ}
		if !o.ShippingMeta.HasCoordinates() {
			return sel, &IncompleteError{Provider: Lalamove, Missing: []string{"destination lat/lng"}}
		}
		return sel, nil
	}

	sel := Selection{Provider: Biteship, Company: company, Type: typ}
	var missing []string
	if !isNumeric(strings.TrimSpace(o.Postal)) {
		missing = append(missing, "postal code")
	}
	if company == "" {
		missing = append(missing, "courier company")
	}
	if typ == "" {
		missing = append(missing, "courier type")
	}
	if len(missing) > 0 {
		return sel, &IncompleteError{Provider: Biteship, Missing: missing}
	}
	return sel, nil
}

// jakartaPostalPrefixes covers DKI Jakarta postal codes (10xxx-14xxx).
var jakartaPostalPrefixes = []string{"10", "11", "12", "13", "14"}

// InJakarta reports whether a postal code lies in DKI Jakarta.
func InJakarta(postal string) bool {
	p := strings.TrimSpace(postal)
	if len(p) != 5 || !isNumeric(p) {
		return false
	}
	for _, pre := range jakartaPostalPrefixes {
		if strings.HasPrefix(p, pre) {
			return true
		}
	}
	return false
}

// Suggest applies the checkout-time routing rule: instant or same-day delivery
// inside Jakarta goes to the on-demand courier, everything else ships through
// the aggregator with the customer's chosen company and service.
func Suggest(postal, preference, company, service string) Selection {
	pref := strings.ToLower(strings.TrimSpace(preference))
	if InJakarta(postal) && (pref == "instant" || pref == "same_day" || pref == string(Lalamove)) {
		return Selection{Provider: Lalamove, Company: string(Lalamove), Type: "motorcycle"}
	}
	return Selection{
		Provider: Biteship,
		Company:  strings.ToLower(strings.TrimSpace(company)),
		Type:     strings.ToLower(strings.TrimSpace(service)),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
