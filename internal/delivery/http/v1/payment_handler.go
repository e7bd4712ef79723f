package v1

import (
	"net/http"
	"net/url"
	"strings"

	"teahouse-backend/internal/usecase"
	"teahouse-backend/pkg/logger"
)

// PaymentHandler receives the browser redirects coming back from LINE Pay
// and forwards the customer to the storefront result pages.
type PaymentHandler struct {
	paymentUC   *usecase.PaymentUsecase
	frontendURL string
}

func NewPaymentHandler(uc *usecase.PaymentUsecase, frontendURL string) *PaymentHandler {
	return &PaymentHandler{paymentUC: uc, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// GET /api/v1/payments/linepay/confirm?transactionId=...&orderId=TH...
func (h *PaymentHandler) LinePayConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderNumber := q.Get("orderId")
	transactionID := q.Get("transactionId")
	if orderNumber == "" || transactionID == "" {
		h.redirect(w, r, "/checkout/failed", orderNumber, "missing_parameters")
		return
	}

	if _, err := h.paymentUC.Confirm(r.Context(), transactionID, orderNumber); err != nil {
		logger.WithContext(r.Context()).Error().Err(err).
			Str("order_number", orderNumber).
			Str("transaction_id", transactionID).
			Msg("LINE Pay confirm failed")
		h.redirect(w, r, "/checkout/failed", orderNumber, "confirm_failed")
		return
	}
	h.redirect(w, r, "/checkout/success", orderNumber, "")
}

// LinePayCancel cancels the order only when the callback names its reserved transaction.
// GET /api/v1/payments/linepay/cancel?transactionId=...&orderId=TH...
func (h *PaymentHandler) LinePayCancel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderNumber := q.Get("orderId")
	transactionID := q.Get("transactionId")
	if orderNumber == "" || transactionID == "" {
		h.redirect(w, r, "/checkout/cancelled", orderNumber, "missing_parameters")
		return
	}

	if _, err := h.paymentUC.Cancel(r.Context(), transactionID, orderNumber); err != nil {
		logger.WithContext(r.Context()).Warn().Err(err).
			Str("order_number", orderNumber).
			Str("transaction_id", transactionID).
			Msg("LINE Pay cancel rejected")
		h.redirect(w, r, "/checkout/cancelled", orderNumber, "cancel_rejected")
		return
	}
	h.redirect(w, r, "/checkout/cancelled", orderNumber, "")
}

func (h *PaymentHandler) redirect(w http.ResponseWriter, r *http.Request, path, orderNumber, reason string) {
	q := url.Values{}
	if orderNumber != "" {
		q.Set("order", orderNumber)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	target := h.frontendURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
