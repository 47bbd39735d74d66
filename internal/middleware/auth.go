package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/hirestream/backend/internal/service/auth"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

type claimsKey struct{}

// TokenVerifier checks an access token.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token
// and stores the token claims in the request context.
func BearerAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by BearerAuth.
func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return claims, ok
}
