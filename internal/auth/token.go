// Package auth verifies the bearer tokens issued by the platform's identity
// provider. The token subject is the user id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (c Claims) UserID() string {
	return c.Subject
}

type Verifier interface {
	Verify(token string) (Claims, error)
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(token string) (Claims, error) {
	return parse(token, func(*jwt.Token) (any, error) { return v.secret, nil }, "HS256")
}

// JWKSVerifier checks asymmetric tokens against the provider's published
// keys. keyfunc refreshes the key set in the background.
type JWKSVerifier struct {
	jwks keyfunc.Keyfunc
}

func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is empty")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("create jwks client: %w", err)
	}
	logger.Info("jwt verifier initialized", "component", "auth", "jwks_url", jwksURL)
	return &JWKSVerifier{jwks: jwks}, nil
}

func (v *JWKSVerifier) Verify(token string) (Claims, error) {
	return parse(token, v.jwks.Keyfunc, "RS256", "ES256")
}

func parse(raw string, keyFunc jwt.Keyfunc, methods ...string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, keyFunc,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	// Anonymous sessions carry a valid signature but no user.
	if claims.Role == "anon" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// IssueHS256 signs claims for a subject with the shared secret.
func IssueHS256(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "authenticated",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
