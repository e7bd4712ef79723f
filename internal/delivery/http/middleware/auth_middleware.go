package middleware

import (
	"context"
	"net/http"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/utils"
)

// AuthMiddleware verifies the identity provider's access token and puts the caller in the context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Get Token from Header or Cookie
		tokenString := utils.TokenFromRequest(r)
		if tokenString == "" {
			utils.WriteAppError(r.Context(), w, apperror.New(apperror.CodeUnauthorized, i18n.Default().T(i18n.AuthMissingToken)))
			return
		}

		// 2. Validate Token
		mapClaims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			utils.WriteAppError(r.Context(), w, apperror.Wrap(apperror.CodeUnauthorized, err, i18n.Default().T(i18n.AuthInvalidToken)))
			return
		}
		claims := utils.ClaimsFromMap(mapClaims)
		if claims.UserID == "" {
			utils.WriteAppError(r.Context(), w, apperror.New(apperror.CodeUnauthorized, i18n.Default().T(i18n.AuthInvalidToken)))
			return
		}

		// 3. Set Context
		// The user is built from claims alone; no profile lookup per request.
		user := &domain.User{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  claims.Role,
		}

		ctx := context.WithValue(r.Context(), domain.UserContextKey, user)
		reqLogger := logger.WithUserID(*logger.WithContext(ctx), user.ID)
		ctx = logger.NewContext(ctx, &reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUser returns the caller set by AuthMiddleware.
func CurrentUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(domain.UserContextKey).(*domain.User)
	return user, ok && user != nil
}
