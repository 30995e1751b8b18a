package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims holds the identity claims of a Google ID token
type IDTokenClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	HostedDomain  string `json:"hd"`
	Audience      string `json:"aud"`
	ExpiresAt     int64  `json:"exp"`
	IssuedAt      int64  `json:"iat"`
}

// ExtractUserInfo decodes the claims of a JWT without verifying its signature.
// The token came straight from the token endpoint over TLS.
func ExtractUserInfo(tokenString string) (*IDTokenClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	out := &IDTokenClaims{}
	out.Subject, _ = claims["sub"].(string)
	out.Email, _ = claims["email"].(string)
	out.Name, _ = claims["name"].(string)
	out.HostedDomain, _ = claims["hd"].(string)
	out.EmailVerified, _ = claims["email_verified"].(bool)

	switch aud := claims["aud"].(type) {
	case string:
		out.Audience = aud
	case []interface{}:
		if len(aud) > 0 {
			out.Audience, _ = aud[0].(string)
		}
	}

	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = int64(exp)
	}
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = int64(iat)
	}

	return out, nil
}

// ExtractIDToken decodes the ID token of a token result, if one was issued
func ExtractIDToken(result *TokenResult) (*IDTokenClaims, error) {
	if result == nil || result.IDToken == "" {
		return nil, fmt.Errorf("no id_token in token response")
	}
	return ExtractUserInfo(result.IDToken)
}

// DisplayName returns the best available label for the user
func (c *IDTokenClaims) DisplayName() string {
	if c.Email != "" {
		return c.Email
	}
	if c.Name != "" {
		return strings.TrimSpace(c.Name)
	}
	return c.Subject
}

// IsExpired checks if the token is expired
func (c *IDTokenClaims) IsExpired() bool {
	if c.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > c.ExpiresAt
}
