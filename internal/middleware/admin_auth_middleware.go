package middleware

import (
	"errors"
	"net/http"

	"aigate/internal/admin"
	"aigate/internal/utils"
)

// AdminAuthMiddleware gates a handler behind operator credentials passed
// as admin_username and admin_password query parameters. Every failure
// mode reads the same to the caller.
func AdminAuthMiddleware(auth *admin.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			username := q.Get("admin_username")
			password := q.Get("admin_password")

			if username == "" || password == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid admin credentials")
				return
			}

			if err := auth.VerifyCredentials(r.Context(), username, password); err != nil {
				if errors.Is(err, admin.ErrUnauthorized) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid admin credentials")
					return
				}
				utils.RespondWithError(w, http.StatusInternalServerError, "Error verifying admin credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
