package security

// Signer issues API tokens for local development and tests

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"dexindexer/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type RS256Signer struct {
	Priv *rsa.PrivateKey
	Iss  string
	Aud  string
}

// NewRS256Signer loads a PEM encoded RSA private key, PKCS1 or PKCS8
func NewRS256Signer(cfg *config.JWTConfig) (*RS256Signer, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the jwt signer")
	}
	if cfg.PrivateKeyPath == "" {
		return nil, errors.New("private key path is empty")
	}

	b, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	priv, err := parseRSAPrivateKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &RS256Signer{
		Priv: priv,
		Iss:  cfg.Issuer,
		Aud:  cfg.Audience,
	}, nil
}

// Mint signs a token for sub valid for ttl; id becomes jti when set
func (s *RS256Signer) Mint(sub string, ttl time.Duration, id string, scope ...string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Iss,
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        id,
		},
		Scope: scope,
	}
	if s.Aud != "" {
		claims.Audience = jwt.ClaimStrings{s.Aud}
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.Priv)
}
