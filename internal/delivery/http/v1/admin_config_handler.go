package v1

import (
	"net/http"

	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/cache"
	"teahouse-backend/pkg/utils"
	"teahouse-backend/pkg/validator"
)

type AdminConfigHandler struct {
	cache    cache.CacheService
	settings *usecase.SettingsService
}

func NewAdminConfigHandler(cache cache.CacheService, settings *usecase.SettingsService) *AdminConfigHandler {
	return &AdminConfigHandler{cache: cache, settings: settings}
}

// GET /api/v1/admin/settings/shipping
func (h *AdminConfigHandler) GetShipping(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Shipping(r.Context())
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, settings)
}

// PUT /api/v1/admin/settings/shipping
func (h *AdminConfigHandler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	var req usecase.UpdateShippingRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	updated, err := h.settings.UpdateShipping(r.Context(), req)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	h.cache.Delete(enumsCacheKey)
	utils.WriteJSON(w, http.StatusOK, updated)
}
