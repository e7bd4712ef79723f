package v1

import (
	"net/http"

	"teahouse-backend/internal/delivery/http/middleware"
	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/utils"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// requireUser writes 401 and returns false when no caller is attached.
func requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		utils.WriteAppError(r.Context(), w, apperror.New(apperror.CodeUnauthorized, i18n.Default().T(i18n.AuthRequired)))
		return nil, false
	}
	return user, true
}
