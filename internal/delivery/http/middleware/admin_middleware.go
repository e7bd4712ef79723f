package middleware

import (
	"net/http"

	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/utils"
)

// AdminMiddleware ensures the authenticated user has the 'admin' role.
// MUST be used AFTER AuthMiddleware.
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		if !ok {
			utils.WriteAppError(r.Context(), w, apperror.New(apperror.CodeUnauthorized, i18n.Default().T(i18n.AuthRequired)))
			return
		}

		if !user.IsAdmin() {
			utils.WriteAppError(r.Context(), w, apperror.New(apperror.CodeForbidden, i18n.Default().T(i18n.AuthAdminOnly)))
			return
		}

		next.ServeHTTP(w, r)
	})
}
