package httpmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/identity"
	"github.com/cwrk-planet/music-room/pkg/httputil"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// AuthMiddleware verifies the bearer token and stores the caller's identity.
func AuthMiddleware(v identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || len(auth) <= 7 {
				httputil.Error(r.Context(), w, http.StatusUnauthorized, identity.ErrMissingToken.Error(), nil)
				return
			}

			id, err := v.Verify(r.Context(), strings.TrimSpace(auth[7:]))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, identity.ErrUpstream) {
					status = http.StatusBadGateway
				}
				httputil.L(r.Context()).Warn("auth: token rejected", "err", err)
				httputil.Error(r.Context(), w, status, err.Error(), nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id
}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}
