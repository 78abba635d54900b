package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/jredh-dev/foodloop/internal/auth"
	"github.com/jredh-dev/foodloop/pkg/models"
)

// Verifier resolves a bearer token to the caller.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*auth.Principal, error)
}

// OwnerStore mirrors caller profiles.
type OwnerStore interface {
	UpsertOwner(ctx context.Context, o *models.Owner) error
}

// AuthMiddleware requires a valid bearer token. The caller's profile is
// mirrored into the store so pincode joins see the provider's latest view.
func AuthMiddleware(v Verifier, owners OwnerStore, log logr.Logger, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				jsonError(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			p, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.V(1).Info("token rejected", "error", err.Error())
				msg := "invalid token"
				if errors.Is(err, auth.ErrMissingToken) {
					msg = "missing bearer token"
				}
				jsonError(w, msg, http.StatusUnauthorized)
				return
			}
			if owners != nil {
				if err := owners.UpsertOwner(r.Context(), p.Owner(now())); err != nil {
					log.Error(err, "mirror owner profile", "owner", p.ID)
					jsonError(w, "internal error", http.StatusInternalServerError)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole rejects callers without role. MUST be used after AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok || !p.HasRole(role) {
				jsonError(w, "forbidden: requires role "+role, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
