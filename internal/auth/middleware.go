package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user/entity"
)

type principalKey struct{}

// WithPrincipal stores the acting principal in ctx.
func WithPrincipal(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// PrincipalFrom returns the principal set by Middleware.
func PrincipalFrom(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(principalKey{}).(*entity.User)
	return u, ok && u != nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[len("bearer "):])
	return tok, tok != ""
}

// Middleware resolves the bearer token of every request and rejects the
// request when no usable, active identity is found.
func (r *Resolver) Middleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			raw, ok := BearerToken(req)
			if !ok {
				httpx.WriteError(w, logger, apperr.Unauthenticated("missing bearer token"))
				return
			}
			u, err := r.ResolveIdentity(req.Context(), raw)
			if err != nil {
				httpx.WriteError(w, logger, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), u)))
		})
	}
}

// MustPrincipal is for handlers mounted behind Middleware.
func MustPrincipal(ctx context.Context) (*entity.User, error) {
	u, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, apperr.Unauthenticated("missing principal")
	}
	return u, nil
}
