package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oceanworks/deckhand/internal/auth"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// Authenticate validates the Bearer token and installs the verified tenant
// context on the request. The tenant context built here is the only source
// of tenant scoping downstream; nothing in a request body can widen it.
//
// Requests without a valid access token are rejected with 401.
func Authenticate(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, r, "Missing or malformed Authorization header")
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeAuthError(w, r, "Invalid or expired token")
				return
			}
			if claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "Token is not an access token")
				return
			}

			tc, err := tenant.New(claims.TenantID, claims.Subject, claims.ActorName, claims.Roles)
			if err != nil {
				slog.WarnContext(r.Context(), "token claims rejected",
					"actor_id", claims.Subject, "error", err)
				writeAuthError(w, r, "Token claims are incomplete")
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			ctx = SetActorID(ctx, tc.ActorID)
			ctx = SetTenantID(ctx, tc.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes a 401 JSON error and records the code for the
// request log.
func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	UpdateResponseContext(w, SetErrorCode(r.Context(), "auth_failed"))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	io.WriteString(w, `{"error":{"code":"auth_failed","message":"`+message+`"}}`)
}
