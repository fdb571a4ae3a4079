package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/thebtf/tracehook/internal/metrics"
	"github.com/thebtf/tracehook/pkg/api"
	"github.com/thebtf/tracehook/pkg/models"
)

type contextKey string

const grantKey contextKey = "grant"

// authenticate resolves the bearer token into an access grant. Unknown,
// revoked, and expired tokens all fail the same way.
func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			metrics.Get().AuthFailure(r.Context(), "missing_token")
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or missing token"})
			return
		}

		grant := s.registry.Verify(token)
		if grant == nil {
			metrics.Get().AuthFailure(r.Context(), "invalid_token")
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or missing token"})
			return
		}

		ctx := context.WithValue(r.Context(), grantKey, grant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope gates a route on one scope of the authenticated grant.
func (s *Service) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant := grantFrom(r.Context())
			if grant == nil || !grant.HasScope(scope) {
				metrics.Get().AuthFailure(r.Context(), "insufficient_scope")
				writeJSON(w, http.StatusForbidden, api.ErrorResponse{Error: "insufficient scope"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func grantFrom(ctx context.Context) *models.AccessGrant {
	grant, _ := ctx.Value(grantKey).(*models.AccessGrant)
	return grant
}
