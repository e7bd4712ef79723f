package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/money"
)

const (
	orderNumberPrefix      = "TH"
	orderNumberAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	orderNumberSuffixLen   = 6
	maxOrderNumberAttempts = 3
)

// NewOrderNumber returns "TH" + YYMMDD + 6 random characters.
func NewOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, orderNumberSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	suffix := make([]byte, orderNumberSuffixLen)
	for i, b := range buf {
		suffix[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return orderNumberPrefix + now.Format("060102") + string(suffix), nil
}

// OrderDraft is everything the writer needs; all amounts are already computed.
type OrderDraft struct {
	UserID          string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	Note            *string
	Cart            *ValidatedCart
	Pricing         PriceBreakdown
	Coupon          *domain.Coupon
}

// OrderWriter persists an order, its items, the stock decrements, the coupon
// claim and the confirmation email task in one transaction.
type OrderWriter struct {
	tx       domain.TransactionManager
	orders   domain.OrderRepository
	products domain.ProductRepository
	tasks    domain.TaskRepository
	recorder *CouponRecorder
	stock    *StockValidator
	now      func() time.Time
}

func NewOrderWriter(
	tx domain.TransactionManager,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	tasks domain.TaskRepository,
	recorder *CouponRecorder,
	stock *StockValidator,
) *OrderWriter {
	return &OrderWriter{
		tx:       tx,
		orders:   orders,
		products: products,
		tasks:    tasks,
		recorder: recorder,
		stock:    stock,
		now:      time.Now,
	}
}

// Write commits the draft or nothing. A clashing order number aborts the
// transaction, so the whole write is retried with a fresh number.
func (w *OrderWriter) Write(ctx context.Context, draft OrderDraft) (*domain.Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := w.buildOrder(draft)
		if err != nil {
			return nil, err
		}

		err = w.tx.Do(ctx, func(txCtx context.Context) error {
			return w.write(txCtx, order, draft)
		})
		if err == nil {
			return order, nil
		}
		if errors.Is(err, domain.ErrDuplicateOrderNo) && attempt < maxOrderNumberAttempts {
			logger.WithContext(ctx).Warn().Str("order_number", order.OrderNumber).Msg("order number taken, retrying")
			continue
		}
		return nil, err
	}
}

func (w *OrderWriter) write(ctx context.Context, order *domain.Order, draft OrderDraft) error {
	if err := w.orders.Create(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for i, line := range draft.Cart.Lines {
		if err := w.products.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				return w.stock.insufficientStockError(i, line)
			}
			return fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
		}
	}

	if draft.Coupon != nil {
		if err := w.recorder.Record(ctx, draft.Coupon.ID, draft.UserID, order.ID, order.DiscountAmount); err != nil {
			return err
		}
	}

	createdBy := draft.UserID
	if err := w.orders.CreateHistory(ctx, &domain.OrderHistory{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		NewStatus: order.Status,
		CreatedBy: &createdBy,
		CreatedAt: order.CreatedAt,
	}); err != nil {
		return fmt.Errorf("record order history: %w", err)
	}

	if err := w.tasks.Enqueue(ctx, newTask(domain.TaskOrderPlacedEmail, order.ID, order.CreatedAt)); err != nil {
		return fmt.Errorf("enqueue confirmation email: %w", err)
	}
	return nil
}

func (w *OrderWriter) buildOrder(draft OrderDraft) (*domain.Order, error) {
	now := w.now()
	number, err := NewOrderNumber(now)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     number,
		UserID:          draft.UserID,
		CustomerName:    draft.CustomerName,
		CustomerEmail:   draft.CustomerEmail,
		CustomerPhone:   draft.CustomerPhone,
		ShippingAddress: draft.ShippingAddress,
		PaymentMethod:   draft.PaymentMethod,
		ShippingMethod:  domain.ShippingMethodHomeDelivery,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Subtotal:        draft.Pricing.Subtotal,
		DiscountAmount:  draft.Pricing.DiscountAmount,
		ShippingFee:     draft.Pricing.ShippingFee,
		Total:           money.Total(draft.Pricing.Subtotal, draft.Pricing.DiscountAmount, draft.Pricing.ShippingFee),
		Note:            draft.Note,
		Items:           make([]domain.OrderItem, 0, len(draft.Cart.Lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if draft.Coupon != nil {
		id, code := draft.Coupon.ID, draft.Coupon.Code
		order.CouponID = &id
		order.CouponCode = &code
	}
	for _, line := range draft.Cart.Lines {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
	}
	return order, nil
}

func newTask(kind, orderID string, now time.Time) *domain.FollowUpTask {
	return &domain.FollowUpTask{
		ID:            uuid.NewString(),
		Kind:          kind,
		OrderID:       orderID,
		Payload:       domain.RawJSON(`{}`),
		Status:        domain.TaskStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}
