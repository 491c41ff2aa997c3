package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// defaultClockSkew allows for small clock differences between issuer and
// server.
const defaultClockSkew = 2 * time.Minute

// AuthMiddleware provides HS256 bearer token authentication for routes.
type AuthMiddleware struct {
	signingKey []byte
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

// NewAuthMiddleware creates a new AuthMiddleware that accepts tokens signed
// with secret.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		signingKey: []byte(secret),
		timeFunc:   time.Now,
		clockSkew:  defaultClockSkew,
	}
}

// WithTimeFunc replaces the clock used to check expiry.
func (m *AuthMiddleware) WithTimeFunc(now func() time.Time) *AuthMiddleware {
	m.timeFunc = now
	return m
}

// Authenticate validates the bearer token from the Authorization header and
// adds its subject to the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.ValidateToken(r.Context(), parts[1])
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				message = "Token expired"
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, message, err, shared.WithElevatedLogLevel())
			return
		}

		ctx := context.WithValue(r.Context(), shared.SubjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateToken parses tokenString and checks its signature and time
// claims.
func (m *AuthMiddleware) ValidateToken(ctx context.Context, tokenString string) (*jwt.RegisteredClaims, error) {
	log := logger.FromContext(ctx)
	now := m.timeFunc()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			log.Debug("token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		}
		log.Debug("token validation failed", "error", err, "error_type", fmt.Sprintf("%T", err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
