// Package auth issues and verifies bearer tokens and carries the
// authenticated user id through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/smart-invoices/httpx"
	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const userIDCtxKey = ctxKey("userID")

// ErrInvalidToken is returned for malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// UserVerifier validates that a token's user still exists.
type UserVerifier func(ctx context.Context, uid uint) bool

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a user id.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// Manager signs and verifies HS256 tokens.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	verifier UserVerifier
}

// Option configures a Manager.
type Option func(*Manager)

// WithVerifier makes RequireAuth reject tokens whose user no longer exists.
func WithVerifier(v UserVerifier) Option { return func(m *Manager) { m.verifier = v } }

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(secret string, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue returns a signed token for the user and its expiry.
func (m *Manager) Issue(userID uint, email string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature and expiry of a token.
func (m *Manager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// WithUserID stores user id in context.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

// UserIDFromContext extracts user id.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDCtxKey).(uint)
	return id, ok && id != 0
}

// Middleware attaches the user id from a valid bearer token, if present.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearerToken(r); ok {
			if claims, err := m.Parse(raw); err == nil {
				if uid, err := claims.UserID(); err == nil {
					r = r.WithContext(WithUserID(r.Context(), uid))
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth answers 401 unless the request carries a live user.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := UserIDFromContext(r.Context())
		if !ok || (m.verifier != nil && !m.verifier(r.Context(), uid)) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
