package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail parsing, signature
// verification or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload issued by the identity service.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenParser verifies bearer tokens with a shared HMAC secret.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a token parser for the given secret.
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// Parse verifies the token and extracts the caller identity. The
// subject claim carries the user ID.
func (p *TokenParser) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:   userID,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}
