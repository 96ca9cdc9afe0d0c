package mw

import (
	"context"
	"errors"
	"net/http"

	"dexindexer/internal/security"
	"dexindexer/pkg/httputil"
)

// Key for claims in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier security.Verifier
}

func NewJWTMiddleware(v security.Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	if m.verifier == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			status, code := http.StatusUnauthorized, httputil.CodeUnauthorized
			if errors.Is(err, security.ErrMissingScope) {
				status, code = http.StatusForbidden, httputil.CodeForbidden
			}
			_ = httputil.Error(w, r, status, code, err.Error(), nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the verified token claims, nil on unauthenticated routes
func ClaimsFromContext(ctx context.Context) *security.Claims {
	c, _ := ctx.Value(claimsCtxKey{}).(*security.Claims)
	return c
}

func subjectFromContext(r *http.Request) string {
	if c := ClaimsFromContext(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}
