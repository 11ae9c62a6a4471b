package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal carried by a bearer token
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"` // "member" or "privileged"
}

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// TokenVerifier validates bearer credentials presented on handshake
type TokenVerifier struct {
	SecretKey []byte
}

// NewTokenVerifier creates a verifier with the shared signing secret
func NewTokenVerifier(secretKey string) (*TokenVerifier, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	return &TokenVerifier{SecretKey: []byte(secretKey)}, nil
}

// Claims represents the JWT token claims
type Claims struct {
	IdentityID string `json:"sub"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates a token, returning the identity it carries
func (v *TokenVerifier) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.SecretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.IdentityID == "" {
		return nil, errors.New("token missing subject")
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	role := claims.Role
	if role == "" {
		role = "member"
	}
	return &Identity{ID: claims.IdentityID, Role: role}, nil
}
