package middleware

import (
	"net/http"

	"brewbar-be/internal/auth"
	"brewbar-be/internal/utils"
)

// RequireAdmin guards admin-only routes: manual overrides and reconciliation
// triggers. The JWT is the trust boundary here; callers that pass it are the
// verified admins the order service expects.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := auth.ExtractAccessToken(r)
		if tokenStr == "" {
			utils.WriteJSONError(w, "missing credentials", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseJWT(tokenStr)
		if err != nil {
			utils.WriteJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		if claims.Role != auth.RoleAdmin {
			utils.WriteJSONError(w, "admin role required", http.StatusForbidden)
			return
		}

		ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Email, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
