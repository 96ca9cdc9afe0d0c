package security

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by API tokens; scope lists what the holder may read
type Claims struct {
	jwt.RegisteredClaims
	Scope []string `json:"scope,omitempty"`
}

// HasScope reports whether the token grants scope; an empty scope is always granted
func (c *Claims) HasScope(scope string) bool {
	if scope == "" {
		return true
	}
	return slices.Contains(c.Scope, scope)
}
