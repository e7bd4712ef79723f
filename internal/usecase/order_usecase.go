package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
)

type CreateOrderRequest struct {
	CustomerName    string                 `json:"customer_name" validate:"required,max=100"`
	CustomerEmail   string                 `json:"customer_email" validate:"required,email,max=255"`
	CustomerPhone   string                 `json:"customer_phone" validate:"required,max=30"`
	ShippingAddress domain.ShippingAddress `json:"shipping_address" validate:"required"`
	PaymentMethod   string                 `json:"payment_method" validate:"required,oneof=line_pay bank_transfer cod"`
	Note            *string                `json:"note" validate:"omitempty,max=500"`
	Items           []LineRequest          `json:"items" validate:"required,min=1,dive"`
	CouponCode      *string                `json:"coupon_code" validate:"omitempty,max=50"`
	SaveAddress     bool                   `json:"save_address"`
}

type PlaceOrderResult struct {
	Order      *domain.Order `json:"order"`
	PaymentURL string        `json:"paymentUrl,omitempty"`
}

type CouponPreviewRequest struct {
	Code  string        `json:"code" validate:"required,max=50"`
	Items []LineRequest `json:"items" validate:"required,min=1,dive"`
}

type CouponPreview struct {
	CouponResult
	Breakdown PriceBreakdown `json:"breakdown"`
}

type OrderUsecaseParams struct {
	Orders         domain.OrderRepository
	Profiles       domain.ProfileRepository
	Tasks          domain.TaskRepository
	Stock          *StockValidator
	Coupons        *CouponValidator
	Settings       *SettingsService
	Writer         *OrderWriter
	Status         *OrderStatusService
	Payments       *PaymentUsecase
	Idempotency    domain.IdempotencyStore
	IdempotencyTTL time.Duration
	Translator     *i18n.Translator
	Metrics        *metrics.Storefront
}

type OrderUsecase struct {
	orders         domain.OrderRepository
	profiles       domain.ProfileRepository
	tasks          domain.TaskRepository
	stock          *StockValidator
	coupons        *CouponValidator
	settings       *SettingsService
	writer         *OrderWriter
	status         *OrderStatusService
	payments       *PaymentUsecase
	idempotency    domain.IdempotencyStore
	idempotencyTTL time.Duration
	tr             *i18n.Translator
	metrics        *metrics.Storefront
}

func NewOrderUsecase(p OrderUsecaseParams) *OrderUsecase {
	return &OrderUsecase{
		orders:         p.Orders,
		profiles:       p.Profiles,
		tasks:          p.Tasks,
		stock:          p.Stock,
		coupons:        p.Coupons,
		settings:       p.Settings,
		writer:         p.Writer,
		status:         p.Status,
		payments:       p.Payments,
		idempotency:    p.Idempotency,
		idempotencyTTL: p.IdempotencyTTL,
		tr:             p.Translator,
		metrics:        p.Metrics,
	}
}

// PlaceOrder validates stock, prices the cart, applies the coupon, writes the
// order and, for LINE Pay, reserves the payment. Steps run strictly in sequence.
func (u *OrderUsecase) PlaceOrder(ctx context.Context, user *domain.User, req CreateOrderRequest, idempotencyKey string) (res *PlaceOrderResult, err error) {
	log := logger.WithContext(ctx)

	if idempotencyKey != "" && u.idempotency != nil {
		key := "order:" + user.ID + ":" + idempotencyKey
		claimed, claimErr := u.idempotency.Claim(ctx, key, u.idempotencyTTL)
		if claimErr != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", claimErr)
		}
		if !claimed {
			return nil, apperror.New(apperror.CodeIdempotency, u.tr.T(i18n.OrderDuplicateSubmit))
		}
		defer func() {
			if err == nil {
				return
			}
			if forgetErr := u.idempotency.Forget(context.WithoutCancel(ctx), key); forgetErr != nil {
				log.Warn().Err(forgetErr).Msg("failed to release idempotency key")
			}
		}()
	}

	defer func() {
		if err != nil {
			u.metrics.OrderFailed(failureReason(err))
		}
	}()

	cart, pricing, couponRes, err := u.price(ctx, user.ID, req.Items, req.CouponCode)
	if err != nil {
		return nil, err
	}
	if couponRes != nil && !couponRes.Valid {
		return nil, couponRes.Err()
	}

	draft := OrderDraft{
		UserID:          user.ID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
		Cart:            cart,
		Pricing:         pricing,
	}
	if couponRes != nil {
		draft.Coupon = couponRes.Coupon
	}

	order, err := u.writer.Write(ctx, draft)
	if err != nil {
		return nil, err
	}
	u.metrics.OrderPlaced(order.PaymentMethod)
	log.Info().
		Str("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Float64("total", order.Total).
		Msg("order placed")

	if req.SaveAddress {
		u.saveCheckoutDetails(ctx, user, draft)
	}

	result := &PlaceOrderResult{Order: order}
	if order.PaymentMethod != domain.PaymentMethodLinePay {
		return result, nil
	}

	payment, err := u.payments.Reserve(ctx, order)
	if err != nil {
		u.compensateReservation(ctx, order)
		return nil, err
	}
	if payment.PaymentURL != nil {
		result.PaymentURL = *payment.PaymentURL
	}
	return result, nil
}

// price runs the read-only part of checkout. A rejected coupon comes back as a
// result with Valid=false, not as an error.
func (u *OrderUsecase) price(ctx context.Context, userID string, items []LineRequest, couponCode *string) (*ValidatedCart, PriceBreakdown, *CouponResult, error) {
	cart, err := u.stock.Validate(ctx, items)
	if err != nil {
		return nil, PriceBreakdown{}, nil, err
	}

	settings, err := u.settings.Shipping(ctx)
	if err != nil {
		return nil, PriceBreakdown{}, nil, err
	}
	fee := NewShippingCalculator(settings).Fee(cart.Subtotal)

	var couponRes *CouponResult
	if couponCode != nil && strings.TrimSpace(*couponCode) != "" {
		res, err := u.coupons.Validate(ctx, CouponCheck{
			Code:        *couponCode,
			UserID:      userID,
			Subtotal:    cart.Subtotal,
			ProductIDs:  cart.ProductIDs(),
			CategoryIDs: cart.CategoryIDs(),
		})
		if err != nil {
			return nil, PriceBreakdown{}, nil, err
		}
		couponRes = &res
	}

	return cart, NewPriceBreakdown(cart.Subtotal, fee, couponRes), couponRes, nil
}

// PreviewCoupon prices the items with the coupon without writing anything.
func (u *OrderUsecase) PreviewCoupon(ctx context.Context, user *domain.User, req CouponPreviewRequest) (*CouponPreview, error) {
	_, pricing, couponRes, err := u.price(ctx, user.ID, req.Items, &req.Code)
	if err != nil {
		return nil, err
	}
	if couponRes == nil {
		return nil, apperror.New(apperror.CodeValidation, u.tr.T(i18n.CouponNotFound))
	}
	return &CouponPreview{CouponResult: *couponRes, Breakdown: pricing}, nil
}

func (u *OrderUsecase) saveCheckoutDetails(ctx context.Context, user *domain.User, draft OrderDraft) {
	address := draft.ShippingAddress
	err := u.profiles.SaveCheckoutDetails(ctx, &domain.Profile{
		ID:             user.ID,
		Email:          user.Email,
		FullName:       draft.CustomerName,
		Phone:          draft.CustomerPhone,
		DefaultAddress: &address,
	})
	if err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("failed to save checkout details")
	}
}

// compensateReservation cancels an order whose payment could not be reserved.
// When that fails too, the cancellation is left to the follow-up worker.
func (u *OrderUsecase) compensateReservation(ctx context.Context, order *domain.Order) {
	ctx = context.WithoutCancel(ctx)
	log := logger.WithContext(ctx).With().Str("order_id", order.ID).Logger()

	_, err := u.status.Transition(ctx, order.ID, domain.OrderStatusCancelled, TransitionOptions{
		Note:        "payment reservation failed",
		RequireFrom: domain.OrderStatusPending,
	})
	if err == nil {
		log.Info().Msg("order cancelled after failed payment reservation")
		return
	}

	log.Error().Err(err).Msg("compensating cancel failed, deferring to worker")
	if enqErr := u.tasks.Enqueue(ctx, newTask(domain.TaskCancelUnreservedPay, order.ID, time.Now())); enqErr != nil {
		log.Error().Err(enqErr).Msg("failed to enqueue cancel task")
	}
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string, page, perPage int) ([]domain.Order, domain.Pagination, error) {
	return u.list(ctx, domain.OrderFilter{Page: page, PerPage: perPage, UserID: userID})
}

// GetMyOrder hides other customers' orders behind NOT_FOUND.
func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := u.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperror.New(apperror.CodeNotFound, u.tr.T(i18n.OrderNotFound))
	}
	return order, nil
}

// --- Admin Usecase ---

func (u *OrderUsecase) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, domain.Pagination, error) {
	return u.list(ctx, filter)
}

func (u *OrderUsecase) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, u.tr.T(i18n.OrderNotFound))
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

func (u *OrderUsecase) GetOrderHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	if _, err := u.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	history, err := u.orders.GetHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	return history, nil
}

type UpdateOrderStatusRequest struct {
	Status         string  `json:"status" validate:"required,oneof=pending paid processing shipped completed cancelled refunded"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=100"`
	Note           string  `json:"note" validate:"omitempty,max=500"`
}

func (u *OrderUsecase) UpdateOrderStatus(ctx context.Context, orderID string, req UpdateOrderStatusRequest, actorID string) (*domain.Order, error) {
	return u.status.Transition(ctx, orderID, req.Status, TransitionOptions{
		TrackingNumber: req.TrackingNumber,
		Note:           req.Note,
		ActorID:        actorID,
	})
}

func (u *OrderUsecase) list(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, domain.Pagination, error) {
	orders, total, err := u.orders.List(ctx, filter)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, domain.NewPagination(filter.Page, filter.PerPage, total), nil
}

func failureReason(err error) string {
	if appErr := apperror.As(err); appErr != nil {
		return strings.ToLower(string(appErr.Code()))
	}
	return "internal"
}
