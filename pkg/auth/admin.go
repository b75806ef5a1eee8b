package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminTokenTTL is how long an issued admin token remains valid.
const AdminTokenTTL = 15 * time.Minute

// AdminIssuer mints and verifies short-lived HS256 admin tokens gating the
// destructive `/_config/*` endpoints when PAPER_TIGER_ADMIN_SECRET is set.
// When no secret is configured, admin endpoints are left open (local/dev
// default) — a missing secret means "feature disabled", not a startup
// error.
type AdminIssuer struct {
	secret []byte
}

// NewAdminIssuer returns nil if secret is empty, meaning admin auth is
// disabled.
func NewAdminIssuer(secret string) *AdminIssuer {
	if secret == "" {
		return nil
	}
	return &AdminIssuer{secret: []byte(secret)}
}

// Issue mints a signed admin token valid for AdminTokenTTL.
func (a *AdminIssuer) Issue() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "paper-tiger-admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(AdminTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify checks the bearer token in r's Authorization header against the
// issuer's secret and expiry.
func (a *AdminIssuer) Verify(r *http.Request) error {
	h := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(h, "Bearer ")
	if raw == "" || raw == h {
		return fmt.Errorf("auth: admin endpoint requires a bearer token")
	}

	_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("auth: admin token invalid: %w", err)
	}
	return nil
}
