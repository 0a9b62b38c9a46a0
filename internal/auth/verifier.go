// Package auth gates the admin back-office with HS256 bearer tokens or HTTP
// Basic credentials.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cookiebox/internal/config"
)

var (
	ErrNoCredentials = errors.New("no credentials")
	ErrInvalid       = errors.New("invalid credentials")
	ErrForbidden     = errors.New("admin role required")
)

const RoleAdmin = "admin"

// Principal is the authenticated caller of an admin route.
type Principal struct {
	Subject string
	Role    string
	Method  string // "jwt" or "basic"
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Claims carries the admin role alongside the registered claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates admin credentials. A verifier with no secret and no
// basic credentials rejects every request.
type Verifier struct {
	JWTSecret []byte
	User      string
	Password  string
	Leeway    time.Duration
}

func NewVerifier(cfg config.Admin) *Verifier {
	return &Verifier{
		JWTSecret: []byte(cfg.JWTSecret),
		User:      cfg.User,
		Password:  cfg.Password,
		Leeway:    30 * time.Second,
	}
}

// Authenticate reads the Authorization header.
func (v *Verifier) Authenticate(r *http.Request) (Principal, error) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	switch {
	case authz == "":
		return Principal{}, ErrNoCredentials
	case strings.HasPrefix(strings.ToLower(authz), "bearer "):
		return v.VerifyToken(strings.TrimSpace(authz[len("Bearer "):]))
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return Principal{}, ErrInvalid
	}
	return v.verifyBasic(user, pass)
}

// VerifyToken accepts HS256 tokens whose role claim is admin.
func (v *Verifier) VerifyToken(token string) (Principal, error) {
	if len(v.JWTSecret) == 0 {
		return Principal{}, ErrInvalid
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.Leeway))
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p := Principal{Subject: claims.Subject, Role: claims.Role, Method: "jwt"}
	if !p.IsAdmin() {
		return p, ErrForbidden
	}
	return p, nil
}

func (v *Verifier) verifyBasic(user, pass string) (Principal, error) {
	if v.User == "" || v.Password == "" {
		return Principal{}, ErrInvalid
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(v.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(v.Password)) == 1
	if !userOK || !passOK {
		return Principal{}, ErrInvalid
	}
	return Principal{Subject: user, Role: RoleAdmin, Method: "basic"}, nil
}

// IssueToken signs an admin token; used by tooling and tests.
func (v *Verifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.JWTSecret)
}
