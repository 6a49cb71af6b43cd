package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the service cares about. Subject is the user
// id; Role must be "authenticated" (anonymous tokens are rejected).
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}
