package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
	"teahouse-backend/pkg/money"
)

// PaymentURLs are the gateway redirect targets. The gateway appends its own query parameters.
type PaymentURLs struct {
	Confirm string
	Cancel  string
}

// PaymentUsecase drives wallet payments: reservation at checkout and the
// confirm/cancel callbacks.
type PaymentUsecase struct {
	payments domain.PaymentRepository
	orders   domain.OrderRepository
	gateway  domain.PaymentGateway
	status   *OrderStatusService
	tr       *i18n.Translator
	metrics  *metrics.Storefront
	currency string
	urls     PaymentURLs
}

func NewPaymentUsecase(
	payments domain.PaymentRepository,
	orders domain.OrderRepository,
	gateway domain.PaymentGateway,
	status *OrderStatusService,
	tr *i18n.Translator,
	m *metrics.Storefront,
	currency string,
	urls PaymentURLs,
) *PaymentUsecase {
	return &PaymentUsecase{
		payments: payments,
		orders:   orders,
		gateway:  gateway,
		status:   status,
		tr:       tr,
		metrics:  m,
		currency: currency,
		urls:     urls,
	}
}

// Reserve records an initiated payment, asks the gateway for a payment URL, and
// stores the outcome on the payment row. The returned error is a PAYMENT_GATEWAY error
// when the gateway refused or could not be reached.
func (u *PaymentUsecase) Reserve(ctx context.Context, order *domain.Order) (*domain.Payment, error) {
	payment := &domain.Payment{
		ID:       uuid.NewString(),
		OrderID:  order.ID,
		Provider: domain.PaymentProviderLinePay,
		Amount:   order.Total,
		Currency: u.currency,
		Status:   domain.PaymentRecordInitiated,
	}
	if err := u.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	res, err := u.gateway.Reserve(ctx, u.reservation(order))
	u.metrics.PaymentOperation("reserve", err)
	if err != nil {
		payment.Status = domain.PaymentRecordFailed
		if updateErr := u.payments.Update(ctx, payment); updateErr != nil {
			logger.WithContext(ctx).Error().Err(updateErr).Str("payment_id", payment.ID).Msg("failed to mark payment failed")
		}
		return nil, u.gatewayError(i18n.PaymentReserveFailed, err)
	}

	payment.Status = domain.PaymentRecordReserved
	payment.TransactionID = &res.TransactionID
	payment.PaymentURL = &res.PaymentURL
	payment.Raw = res.Raw
	if err := u.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return payment, nil
}

// Confirm finishes a reservation the customer approved. The order must still be
// a pending LINE Pay order whose reserved payment carries transactionID; nothing
// is captured otherwise. Calling it again for a paid order returns the order unchanged.
func (u *PaymentUsecase) Confirm(ctx context.Context, transactionID, orderNumber string) (*domain.Order, error) {
	order, err := u.orderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return order, nil
	}

	payment, err := u.reservedPayment(ctx, order, transactionID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending || payment.Status == domain.PaymentRecordCancelled {
		return nil, apperror.New(apperror.CodeStateConflict, u.tr.T(i18n.PaymentNotPending, order.Status))
	}

	// A confirmed row means an earlier capture succeeded but the order was not updated.
	if payment.Status != domain.PaymentRecordConfirmed {
		res, err := u.gateway.Confirm(ctx, transactionID, money.WholeUnits(order.Total), payment.Currency)
		u.metrics.PaymentOperation("confirm", err)
		if err != nil {
			payment.Status = domain.PaymentRecordFailed
			if updateErr := u.payments.Update(ctx, payment); updateErr != nil {
				logger.WithContext(ctx).Error().Err(updateErr).Str("payment_id", payment.ID).Msg("failed to mark payment failed")
			}
			return nil, u.gatewayError(i18n.PaymentConfirmFailed, err)
		}

		payment.Status = domain.PaymentRecordConfirmed
		payment.Raw = res.Raw
		if err := u.payments.Update(ctx, payment); err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
	}

	paid, err := u.status.Transition(ctx, order.ID, domain.OrderStatusPaid, TransitionOptions{
		Note:        "LINE Pay transaction " + transactionID + " confirmed",
		RequireFrom: domain.OrderStatusPending,
	})
	if apperror.IsCode(err, apperror.CodeStateConflict) {
		// A concurrent callback may have won.
		current, getErr := u.orders.GetByID(ctx, order.ID)
		if getErr == nil && current.PaymentStatus == domain.PaymentStatusPaid {
			return current, nil
		}
		logger.WithContext(ctx).Error().Err(err).
			Str("order_id", order.ID).
			Str("transaction_id", transactionID).
			Msg("LINE Pay payment captured but order left its pending state, refund needed")
	}
	return paid, err
}

// Cancel handles the customer backing out on the gateway page. Only a pending
// LINE Pay order whose reserved payment carries transactionID is cancelled.
func (u *PaymentUsecase) Cancel(ctx context.Context, transactionID, orderNumber string) (*domain.Order, error) {
	order, err := u.orderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	payment, err := u.reservedPayment(ctx, order, transactionID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.OrderStatusCancelled && payment.Status == domain.PaymentRecordCancelled {
		return order, nil
	}
	if order.Status != domain.OrderStatusPending || payment.Status != domain.PaymentRecordReserved {
		return nil, apperror.New(apperror.CodeStateConflict, u.tr.T(i18n.PaymentNotPending, order.Status))
	}

	payment.Status = domain.PaymentRecordCancelled
	if err := u.payments.Update(ctx, payment); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	return u.status.Transition(ctx, order.ID, domain.OrderStatusCancelled, TransitionOptions{
		Note:        "payment cancelled by customer",
		RequireFrom: domain.OrderStatusPending,
	})
}

// reservedPayment returns the latest payment of a LINE Pay order after checking
// it belongs to transactionID.
func (u *PaymentUsecase) reservedPayment(ctx context.Context, order *domain.Order, transactionID string) (*domain.Payment, error) {
	if order.PaymentMethod != domain.PaymentMethodLinePay {
		return nil, apperror.New(apperror.CodeStateConflict, u.tr.T(i18n.PaymentNotLinePay))
	}
	payment, err := u.payments.GetLatestByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, u.tr.T(i18n.PaymentNotFound))
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if transactionID == "" || payment.TransactionID == nil || *payment.TransactionID != transactionID {
		return nil, apperror.New(apperror.CodeValidation, u.tr.T(i18n.PaymentTxMismatch))
	}
	switch payment.Status {
	case domain.PaymentRecordReserved, domain.PaymentRecordConfirmed, domain.PaymentRecordCancelled:
		return payment, nil
	}
	return nil, apperror.New(apperror.CodeStateConflict, u.tr.T(i18n.PaymentNotPending, order.Status))
}

func (u *PaymentUsecase) orderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := u.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, u.tr.T(i18n.OrderNotFound))
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

func (u *PaymentUsecase) gatewayError(key i18n.Key, err error) error {
	detail := err.Error()
	var gwErr *domain.PaymentGatewayError
	if errors.As(err, &gwErr) {
		detail = gwErr.Code
	}
	return apperror.Wrap(apperror.CodePaymentGateway, err, u.tr.T(key, detail))
}

// reservation lists the order items plus shipping and discount lines. The
// gateway rejects requests whose lines do not add up to the amount, so when
// whole-unit rounding breaks the sum a single summary line is sent instead.
func (u *PaymentUsecase) reservation(order *domain.Order) domain.PaymentReservation {
	amount := money.WholeUnits(order.Total)
	items := make([]domain.ReservationItem, 0, len(order.Items)+2)
	var sum int64
	for _, it := range order.Items {
		price := money.WholeUnits(it.UnitPrice)
		items = append(items, domain.ReservationItem{Name: it.Title, Quantity: it.Quantity, Price: price})
		sum += price * int64(it.Quantity)
	}
	if fee := money.WholeUnits(order.ShippingFee); fee > 0 {
		items = append(items, domain.ReservationItem{Name: "Shipping", Quantity: 1, Price: fee})
		sum += fee
	}
	if discount := money.WholeUnits(order.DiscountAmount); discount > 0 {
		items = append(items, domain.ReservationItem{Name: "Discount", Quantity: 1, Price: -discount})
		sum -= discount
	}
	if sum != amount {
		items = []domain.ReservationItem{{
			Name:     "Order " + order.OrderNumber + " (" + strconv.Itoa(len(order.Items)) + " items)",
			Quantity: 1,
			Price:    amount,
		}}
	}

	return domain.PaymentReservation{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      amount,
		Currency:    u.currency,
		Items:       items,
		ConfirmURL:  u.urls.Confirm,
		CancelURL:   u.urls.Cancel,
	}
}
