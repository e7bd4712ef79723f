package v1

import (
	"net/http"
	"time"

	"teahouse-backend/internal/domain"
	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/cache"
	"teahouse-backend/pkg/utils"
)

const enumsCacheKey = "system:config:enums"

type ConfigHandler struct {
	cache    cache.CacheService
	settings *usecase.SettingsService
}

func NewConfigHandler(cache cache.CacheService, settings *usecase.SettingsService) *ConfigHandler {
	return &ConfigHandler{cache: cache, settings: settings}
}

// GET /api/v1/config/enums
func (h *ConfigHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if val, found := h.cache.Get(enumsCacheKey); found {
		utils.WriteJSON(w, http.StatusOK, val)
		return
	}

	shipping, err := h.settings.Shipping(r.Context())
	if err != nil {
		w.Header().Del("Cache-Control")
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	response := map[string]interface{}{
		"orderStatuses":   domain.OrderStatuses,
		"paymentStatuses": domain.PaymentStatuses,
		"paymentMethods":  domain.PaymentMethods,
		"shipping":        shipping,
	}

	h.cache.Set(enumsCacheKey, response, 1*time.Hour)
	utils.WriteJSON(w, http.StatusOK, response)
}
