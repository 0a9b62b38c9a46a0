package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"cookiebox/internal/model"
)

func TestDecodeMetaAcceptsStringCoordinates(t *testing.T) {
	meta, err := decodeMeta([]byte(`{"lat":"-6.2297","lng":106.8096,"formatted_address":"Jl. Senopati 5","courier_code":"lalamove"}`))
	if err != nil {
		t.Fatalf("decodeMeta: %v", err)
	}
	if !meta.HasCoordinates() || *meta.Lat != -6.2297 || *meta.Lng != 106.8096 {
		t.Fatalf("coordinates: %+v", meta)
	}
	if meta.CourierCode != "lalamove" || meta.FormattedAddress != "Jl. Senopati 5" {
		t.Fatalf("fields: %+v", meta)
	}
}

func TestDecodeMetaBadCoordinate(t *testing.T) {
	meta, err := decodeMeta([]byte(`{"lat":"north","lng":null}`))
	if err != nil {
		t.Fatalf("decodeMeta: %v", err)
	}
	if meta.HasCoordinates() {
		t.Fatalf("unparseable coordinates must be absent")
	}
	if _, err := decodeMeta([]byte(`not json`)); err == nil {
		t.Fatalf("want error for malformed meta")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("23505 must be a unique violation")
	}
	if isUniqueViolation(errors.New("x")) || isUniqueViolation(nil) {
		t.Fatalf("plain errors are not unique violations")
	}
}

func TestHelpers(t *testing.T) {
	if nullIfEmpty("") != nil || nullIfEmpty("a") != "a" {
		t.Fatalf("nullIfEmpty")
	}
	if v := itemsOrEmpty(nil); v == nil || len(v) != 0 {
		t.Fatalf("itemsOrEmpty(nil) must be an empty slice")
	}
	if pageSize(0) != defaultPageSize || pageSize(10000) != defaultPageSize || pageSize(5) != 5 {
		t.Fatalf("pageSize")
	}
	if !releasesClaim(model.ShipmentFailed) || releasesClaim(model.ShipmentCreated) {
		t.Fatalf("releasesClaim")
	}
}
