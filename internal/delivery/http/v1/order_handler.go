package v1

import (
	"net/http"

	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/utils"
	"teahouse-backend/pkg/validator"
)

// OrderHandler serves the customer's own orders and the coupon preview.
type OrderHandler struct {
	orderUC *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{orderUC: uc}
}

// CreateOrder places an order from the submitted lines.
// POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req usecase.CreateOrderRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	res, err := h.orderUC.PlaceOrder(r.Context(), user, req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// GetMyOrders lists the caller's orders, newest first.
// GET /api/v1/orders?page=1&perPage=20
func (h *OrderHandler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, perPage := utils.ParsePage(r.URL.Query(), defaultPerPage, maxPerPage)
	orders, pagination, err := h.orderUC.ListMyOrders(r.Context(), user.ID, page, perPage)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders":     orders,
		"pagination": pagination,
	})
}

// GET /api/v1/orders/{id}
func (h *OrderHandler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	order, err := h.orderUC.GetMyOrder(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

// ValidateCoupon previews a coupon against the submitted lines without reserving it.
// POST /api/v1/coupons/validate
func (h *OrderHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req usecase.CouponPreviewRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	preview, err := h.orderUC.PreviewCoupon(r.Context(), user, req)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, preview)
}
