package v1

import (
	"net/http"

	"teahouse-backend/internal/domain"
	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/utils"
	"teahouse-backend/pkg/validator"
)

type AdminOrderHandler struct {
	orderUC *usecase.OrderUsecase
}

func NewAdminOrderHandler(uc *usecase.OrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{orderUC: uc}
}

// ListOrders supports status, payment_status and a free-text search over number, name and email.
// GET /api/v1/admin/orders?status=paid&search=TH25&page=1&perPage=20
func (h *AdminOrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := utils.ParsePage(q, defaultPerPage, maxPerPage)

	filter := domain.OrderFilter{
		Page:          page,
		PerPage:       perPage,
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		Search:        q.Get("search"),
	}

	orders, pagination, err := h.orderUC.ListOrders(r.Context(), filter)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders":     orders,
		"pagination": pagination,
	})
}

func (h *AdminOrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderUC.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}

func (h *AdminOrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.orderUC.GetOrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// UpdateStatus moves an order along the status graph.
// PUT /api/v1/admin/orders/{id}/status
func (h *AdminOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	admin, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req usecase.UpdateOrderStatusRequest
	if err := validator.DecodeJSONBody(r, &req); err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}

	order, err := h.orderUC.UpdateOrderStatus(r.Context(), r.PathValue("id"), req, admin.ID)
	if err != nil {
		utils.WriteAppError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, order)
}
