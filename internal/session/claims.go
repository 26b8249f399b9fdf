package session

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the display-only fields read out of a JWT-shaped token.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether the token's exp is in the past relative to now.
// Tokens without exp never expire client-side.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Claims decodes the current token as an unverified JWT. The signature is
// never checked and nothing is rejected: opaque tokens simply return false.
func (s *Session) Claims() (Claims, bool) {
	token, ok := s.CurrentToken()
	if !ok {
		return Claims{}, false
	}
	return ParseClaims(token)
}

// ParseClaims is the stateless form of Session.Claims.
func ParseClaims(token string) (Claims, bool) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, false
	}

	var c Claims
	if sub, ok := mc["sub"].(string); ok {
		c.Subject = sub
	}
	if email, ok := mc["email"].(string); ok {
		c.Email = email
	}
	if exp, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return c, true
}
