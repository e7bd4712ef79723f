package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
)

// TransitionOptions carries the optional inputs of a status change.
type TransitionOptions struct {
	TrackingNumber *string
	Note           string
	// RequireFrom, when set, rejects the change unless the order is currently in that status.
	RequireFrom string
	// ActorID is empty for system-driven changes such as payment callbacks.
	ActorID string
}

// OrderStatusService moves orders along the state machine. Admin actions,
// payment callbacks and the follow-up worker all go through it.
type OrderStatusService struct {
	tx       domain.TransactionManager
	orders   domain.OrderRepository
	products domain.ProductRepository
	tasks    domain.TaskRepository
	recorder *CouponRecorder
	tr       *i18n.Translator
	metrics  *metrics.Storefront
	now      func() time.Time
}

func NewOrderStatusService(
	tx domain.TransactionManager,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	tasks domain.TaskRepository,
	recorder *CouponRecorder,
	tr *i18n.Translator,
	m *metrics.Storefront,
) *OrderStatusService {
	return &OrderStatusService{
		tx:       tx,
		orders:   orders,
		products: products,
		tasks:    tasks,
		recorder: recorder,
		tr:       tr,
		metrics:  m,
		now:      time.Now,
	}
}

// Transition locks the order, checks the edge, and writes the new status with
// its side effects and a history row atomically.
func (s *OrderStatusService) Transition(ctx context.Context, orderID, to string, opts TransitionOptions) (*domain.Order, error) {
	var (
		order *domain.Order
		from  string
	)
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.GetByIDForUpdate(txCtx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return apperror.New(apperror.CodeNotFound, s.tr.T(i18n.OrderNotFound))
			}
			return fmt.Errorf("lock order: %w", err)
		}
		from = order.Status
		return s.apply(txCtx, order, to, opts)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(from, to)
	logger.WithContext(ctx).Info().
		Str("order_id", order.ID).
		Str("from", from).
		Str("to", to).
		Msg("order status changed")
	return order, nil
}

func (s *OrderStatusService) apply(ctx context.Context, order *domain.Order, to string, opts TransitionOptions) error {
	if !domain.CanTransition(order.Status, to) || (opts.RequireFrom != "" && order.Status != opts.RequireFrom) {
		return apperror.New(apperror.CodeStateConflict, s.tr.T(i18n.OrderInvalidTransition, order.Status, to)).
			WithDetails(map[string]any{"from": order.Status, "to": to})
	}

	now := s.now()
	change := domain.PlanTransition(order, to, opts.TrackingNumber, now)
	if err := s.orders.ApplyStatus(ctx, order.ID, change); err != nil {
		return fmt.Errorf("apply status: %w", err)
	}

	if change.RestoreInventory {
		for _, item := range order.Items {
			if err := s.products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
			}
		}
		if order.CouponID != nil {
			if err := s.recorder.Release(ctx, order.ID); err != nil {
				return err
			}
		}
	}

	history := &domain.OrderHistory{
		ID:             uuid.NewString(),
		OrderID:        order.ID,
		PreviousStatus: &change.From,
		NewStatus:      to,
		CreatedAt:      now,
	}
	if opts.Note != "" {
		note := opts.Note
		history.Note = &note
	}
	if opts.ActorID != "" {
		actor := opts.ActorID
		history.CreatedBy = &actor
	}
	if err := s.orders.CreateHistory(ctx, history); err != nil {
		return fmt.Errorf("record order history: %w", err)
	}

	if to == domain.OrderStatusShipped {
		if err := s.tasks.Enqueue(ctx, newTask(domain.TaskOrderShippedEmail, order.ID, now)); err != nil {
			return fmt.Errorf("enqueue shipment email: %w", err)
		}
	}

	applyChange(order, change, now)
	return nil
}

// CancelUnreserved runs the order.cancel_unreserved task: an order whose payment
// reservation failed is cancelled unless something already moved it on.
func (s *OrderStatusService) CancelUnreserved(ctx context.Context, task domain.FollowUpTask) error {
	_, err := s.Transition(ctx, task.OrderID, domain.OrderStatusCancelled, TransitionOptions{
		Note:        "payment reservation failed",
		RequireFrom: domain.OrderStatusPending,
	})
	if apperror.IsCode(err, apperror.CodeStateConflict) || apperror.IsCode(err, apperror.CodeNotFound) {
		logger.WithContext(ctx).Info().Str("order_id", task.OrderID).Msg("unreserved order no longer pending")
		return nil
	}
	return err
}

func applyChange(order *domain.Order, change domain.StatusChange, now time.Time) {
	order.Status = change.To
	order.PaymentStatus = change.PaymentStatus
	if change.TrackingNumber != nil {
		order.TrackingNumber = change.TrackingNumber
	}
	if change.PaidAt != nil {
		order.PaidAt = change.PaidAt
	}
	if change.ShippedAt != nil {
		order.ShippedAt = change.ShippedAt
	}
	if change.CompletedAt != nil {
		order.CompletedAt = change.CompletedAt
	}
	if change.CancelledAt != nil {
		order.CancelledAt = change.CancelledAt
	}
	order.UpdatedAt = now
}
