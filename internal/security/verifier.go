package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dexindexer/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoBearerToken = errors.New("authorization header must be: Bearer <token>")
	ErrMissingScope  = errors.New("token lacks required scope")
)

// Verifier authenticates an Authorization header
type Verifier interface {
	VerifyBearer(authHeader string) (*Claims, error)
}

// RS256Verifier checks RS256 tokens against audience, issuer and scope with clock skew Leeway
type RS256Verifier struct {
	PubKey *rsa.PublicKey
	Aud    string
	Iss    string
	Scope  string
	Leeway time.Duration
}

var _ Verifier = (*RS256Verifier)(nil)

// NewRS256Verifier loads the public key; empty audience, issuer or scope are not checked
func NewRS256Verifier(cfg *config.JWTConfig) (*RS256Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the jwt verifier")
	}

	b, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	pub, err := parseRSAPublicKeyFromPem(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &RS256Verifier{
		PubKey: pub,
		Aud:    cfg.Audience,
		Iss:    cfg.Issuer,
		Scope:  cfg.RequiredScope,
		Leeway: cfg.Leeway,
	}, nil
}

func (v *RS256Verifier) VerifyBearer(authHeader string) (*Claims, error) {
	tokenStr, err := extractBearer(authHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract bearer token: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.Aud != "" {
		opts = append(opts, jwt.WithAudience(v.Aud))
	}
	if v.Iss != "" {
		opts = append(opts, jwt.WithIssuer(v.Iss))
	}

	claims := &Claims{}
	if _, err = jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return v.PubKey, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !claims.HasScope(v.Scope) {
		return nil, fmt.Errorf("%w: %s", ErrMissingScope, v.Scope)
	}

	return claims, nil
}

func extractBearer(h string) (string, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		return "", ErrNoBearerToken
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrNoBearerToken
	}

	return strings.TrimSpace(parts[1]), nil
}
