package middleware

import (
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceKeyHeader carries the internal service key that unlocks unlimited audits.
const ServiceKeyHeader = "X-API-Key"

// DefaultLeeway for exp/nbf validation.
const DefaultLeeway = 30 * time.Second

var ErrInvalidToken = errors.New("invalid token")

type AuthConfig struct {
	// HMACSecret verifies HS256 tokens (local development and tests).
	HMACSecret string
	// PublicKeyPEM verifies RS256 session tokens from the identity provider.
	PublicKeyPEM string
	Issuer       string
	Leeway       time.Duration
	ServiceKeys  []string
}

// Authenticator verifies bearer session tokens and service API keys.
// Both are optional: requests without them continue as anonymous.
type Authenticator struct {
	secret      []byte
	publicKey   *rsa.PublicKey
	issuer      string
	leeway      time.Duration
	serviceKeys [][]byte
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	a := &Authenticator{issuer: cfg.Issuer, leeway: cfg.Leeway}
	if a.leeway <= 0 {
		a.leeway = DefaultLeeway
	}
	if cfg.HMACSecret != "" {
		a.secret = []byte(cfg.HMACSecret)
	}
	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		a.publicKey = key
	}
	for _, k := range cfg.ServiceKeys {
		if k = strings.TrimSpace(k); k != "" {
			a.serviceKeys = append(a.serviceKeys, []byte(k))
		}
	}
	return a, nil
}

// ValidateToken returns the subject of a valid session token.
func (a *Authenticator) ValidateToken(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, a.keyFor, opts...)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (a *Authenticator) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		if a.secret != nil {
			return a.secret, nil
		}
	case jwt.SigningMethodRS256.Alg():
		if a.publicKey != nil {
			return a.publicKey, nil
		}
	}
	return nil, ErrInvalidToken
}

// IsServiceKey compares against every configured key in constant time.
func (a *Authenticator) IsServiceKey(key string) bool {
	if key == "" {
		return false
	}
	valid := false
	for _, k := range a.serviceKeys {
		if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
			valid = true
		}
	}
	return valid
}

// Middleware attaches the caller identity to the request context.
// A present but invalid bearer token or service key is rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if auth := r.Header.Get("Authorization"); auth != "" {
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				WriteError(w, r, http.StatusUnauthorized, ErrorDetail{Code: "unauthenticated", Message: "invalid Authorization header format"})
				return
			}
			sub, err := a.ValidateToken(strings.TrimSpace(raw))
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, ErrorDetail{Code: "unauthenticated", Message: "invalid or expired session token"})
				return
			}
			ctx = WithUserID(ctx, sub)
		}

		if key := r.Header.Get(ServiceKeyHeader); key != "" {
			if !a.IsServiceKey(key) {
				WriteError(w, r, http.StatusUnauthorized, ErrorDetail{Code: "unauthenticated", Message: "invalid API key"})
				return
			}
			ctx = WithServiceCaller(ctx)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
