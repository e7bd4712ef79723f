package v1

import (
	"net/http"

	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/utils"
	"teahouse-backend/pkg/validator"
)

// AdminCouponHandler handles admin coupon management endpoints.
type AdminCouponHandler struct {
	couponUC *usecase.CouponUsecase
}

func NewAdminCouponHandler(uc *usecase.CouponUsecase) *AdminCouponHandler {
	return &AdminCouponHandler{couponUC: uc}
}

// ListCoupons returns paginated list of all coupons.
// GET /api/v1/admin/coupons?page=1&perPage=20
func (h *AdminCouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	page, perPage := utils.ParsePage(r.URL.Query(), defaultPerPage, maxPerPage)
	coupons, pagination, err := h.couponUC.ListCoupons(r.Context(), page, perPage)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"coupons":    coupons,
		"pagination": pagination,
	})
}

// POST /api/v1/admin/coupons
func (h *AdminCouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req usecase.CouponRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	coupon, err := h.couponUC.CreateCoupon(r.Context(), req)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, coupon)
}

// GET /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.couponUC.GetCoupon(r.Context(), r.PathValue("id"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

// PUT /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req usecase.CouponRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	coupon, err := h.couponUC.UpdateCoupon(r.Context(), r.PathValue("id"), req)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, coupon)
}

// DELETE /api/v1/admin/coupons/{id}
func (h *AdminCouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.couponUC.DeleteCoupon(r.Context(), r.PathValue("id")); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
