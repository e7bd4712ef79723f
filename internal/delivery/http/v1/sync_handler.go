package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"teahouse-backend/internal/domain"
	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/utils"
	"teahouse-backend/pkg/validator"
)

// SyncHandler exposes the signed-in cart and wishlist as whole JSON arrays.
// The version travels only as ETag on responses and If-Match on writes.
type SyncHandler struct {
	syncUC *usecase.SyncUsecase
}

func NewSyncHandler(uc *usecase.SyncUsecase) *SyncHandler {
	return &SyncHandler{syncUC: uc}
}

// GET /api/v1/cart
func (h *SyncHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.syncUC.GetCart(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	writeVersioned(w, snap.Version, snap.Items)
}

// ReplaceCart stores the posted array as the whole cart.
// POST /api/v1/cart  body: [{"product_id": "...", "quantity": 2}]
func (h *SyncHandler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	entries, expected, ok := decodeSyncPush(w, r)
	if !ok {
		return
	}
	snap, err := h.syncUC.ReplaceCart(r.Context(), user.ID, entries, expected)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	writeVersioned(w, snap.Version, snap.Items)
}

// GET /api/v1/wishlist
func (h *SyncHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	snap, err := h.syncUC.GetWishlist(r.Context(), user.ID)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	writeVersioned(w, snap.Version, snap.Items)
}

// POST /api/v1/wishlist  body: [{"product_id": "..."}]
func (h *SyncHandler) ReplaceWishlist(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	entries, expected, ok := decodeSyncPush(w, r)
	if !ok {
		return
	}
	snap, err := h.syncUC.ReplaceWishlist(r.Context(), user.ID, entries, expected)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	writeVersioned(w, snap.Version, snap.Items)
}

func decodeSyncPush(w http.ResponseWriter, r *http.Request) ([]domain.CartEntry, int64, bool) {
	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, apperror.Wrap(apperror.CodeValidation, err, i18n.Default().T(i18n.SyncBadIfMatch)))
		return nil, 0, false
	}
	var entries []domain.CartEntry
	if err := validator.DecodeJSON(r, &entries); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return nil, 0, false
	}
	return entries, expected, true
}

// parseIfMatch returns -1 when the header is absent or "*", meaning no version check.
func parseIfMatch(header string) (int64, error) {
	v := strings.TrimSpace(header)
	if v == "" || v == "*" {
		return -1, nil
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid If-Match %q", header)
	}
	return n, nil
}

func writeVersioned(w http.ResponseWriter, version int64, body any) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, body)
}
