package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
)

type Authenticator interface {
	Authenticate(token string) (identity.Caller, error)
}

// RequireAuth accepts "Authorization: Bearer <token>" or the bare token.
// A missing token is 401, a bad one 403.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "access denied: no token")
				return
			}
			caller, err := a.Authenticate(token)
			if err != nil {
				writeError(w, http.StatusForbidden, "invalid_token", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}

func callerFrom(r *http.Request) identity.Caller {
	c, _ := identity.FromContext(r.Context())
	return c
}
