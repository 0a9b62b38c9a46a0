package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cookiebox/internal/config"
)

func verifier() *Verifier {
	return NewVerifier(config.Admin{User: "ops", Password: "s3cret", JWTSecret: "jwt-secret"})
}

func TestBearerAdminToken(t *testing.T) {
	v := verifier()
	tok, err := v.IssueToken("ops@kuerumah", time.Hour)
	require.NoError(t, err)
	r := httptest.NewRequest("GET", "/v1/admin/orders", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	p, err := v.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "ops@kuerumah", p.Subject)
	assert.Equal(t, "jwt", p.Method)
	assert.True(t, p.IsAdmin())
}

func TestBearerNonAdminForbidden(t *testing.T) {
	v := verifier()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "viewer"}).SignedString(v.JWTSecret)
	require.NoError(t, err)
	_, err = v.VerifyToken(tok)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestBearerExpiredOrWrongKey(t *testing.T) {
	v := verifier()
	tok, err := v.IssueToken("ops", -time.Hour)
	require.NoError(t, err)
	_, err = v.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalid)

	other := NewVerifier(config.Admin{JWTSecret: "other"})
	tok, _ = other.IssueToken("ops", time.Hour)
	_, err = v.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestBasicCredentials(t *testing.T) {
	v := verifier()
	r := httptest.NewRequest("GET", "/", nil)
	r.SetBasicAuth("ops", "s3cret")
	p, err := v.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "basic", p.Method)

	r.SetBasicAuth("ops", "wrong")
	_, err = v.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNoCredentials(t *testing.T) {
	_, err := verifier().Authenticate(httptest.NewRequest("GET", "/", nil))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestUnconfiguredVerifierRejects(t *testing.T) {
	v := NewVerifier(config.Admin{})
	r := httptest.NewRequest("GET", "/", nil)
	r.SetBasicAuth("", "")
	_, err := v.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = v.VerifyToken("x.y.z")
	assert.ErrorIs(t, err, ErrInvalid)
}
