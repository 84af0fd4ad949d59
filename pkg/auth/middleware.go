package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the front door expects from upstream callers:
// subject and expiry, per the spec's literal {sub, exp}.
type Claims struct {
	jwt.RegisteredClaims
}

// PublicKeyLookup resolves the PEM-encoded RSA public key registered for a
// tenant. Implemented by the egress security store.
type PublicKeyLookup interface {
	PublicKeyPEM(tenantID string) (string, bool)
}

// Validator verifies RS256 bearer tokens against per-tenant public keys.
type Validator struct {
	Keys PublicKeyLookup
}

// NewValidator wraps a PublicKeyLookup.
func NewValidator(keys PublicKeyLookup) *Validator {
	return &Validator{Keys: keys}
}

// Validate parses tokenStr as an RS256 JWT and verifies it against the
// public key registered for tenantID. It fails closed: a missing key, a
// malformed token, a wrong algorithm, or an expired/absent subject all
// return an error.
func (v *Validator) Validate(tenantID, tokenStr string) (*Claims, error) {
	pemStr, ok := v.Keys.PublicKeyPEM(tenantID)
	if !ok || pemStr == "" {
		return nil, fmt.Errorf("auth: no public key registered for tenant %q", tenantID)
	}
	pubKey, err := parseRSAPublicKey(pemStr)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid public key for tenant %q: %w", tenantID, err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pubKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("auth: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("auth: token subject is required")
	}
	return claims, nil
}

func parseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is not RSA")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}
