// Package identity resolves connection tokens to user identities. Token
// issuance is owned externally; the gateway only consumes resolution.
package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a supplied token cannot be resolved.
// Connections presenting an invalid token are refused; connections with
// no token at all are admitted as guests.
var ErrInvalidToken = errors.New("invalid identity token")

// Resolver resolves a bearer token to a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Claims are the token claims the gateway cares about.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens issued by the account service and
// extracts the user id from the subject (or user_id) claim.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// StaticResolver maps tokens to user ids from a fixed table. Used in
// tests and local development.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(_ context.Context, token string) (string, error) {
	userID, ok := r[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}
