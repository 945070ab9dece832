package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"storefront-service/pkg/config"

	"github.com/golang-jwt/jwt/v4"
)

// UserClaims represents the JWT claims for user authentication.
// TenantSlug is the tenant claim consumed by the tenant resolution
// middleware; it is optional, and its absence means the token carries no
// tenant.
type UserClaims struct {
	Email      string `json:"email"`
	UserID     string `json:"user_id"`
	TenantSlug string `json:"tenant_slug,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var cfg *config.JWTConfig

// Initialize sets the JWT configuration for the package
func Initialize(jwtConfig *config.JWTConfig) {
	cfg = jwtConfig
}

// GenerateToken creates a JWT token with user information and no tenant claim
func GenerateToken(email, userID string) (string, error) {
	return GenerateTokenWithTenant(email, userID, "", "")
}

// GenerateTokenWithTenant creates a JWT token carrying the user's tenant slug
func GenerateTokenWithTenant(email, userID, tenantSlug, role string) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := UserClaims{
		Email:      email,
		UserID:     userID,
		TenantSlug: tenantSlug,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.SigningKey))
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	if cfg == nil {
		return nil, errors.New("JWT configuration not provided")
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&UserClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(cfg.SigningKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// IsExpired reports whether a validation error was caused by token expiry,
// as opposed to a malformed or badly signed token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
