package usecase

import (
	"context"
	"fmt"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
)

// NotificationUsecase renders and sends the customer emails behind follow-up tasks.
type NotificationUsecase struct {
	orders domain.OrderRepository
	mailer domain.Mailer
	tr     *i18n.Translator
}

func NewNotificationUsecase(orders domain.OrderRepository, mailer domain.Mailer, tr *i18n.Translator) *NotificationUsecase {
	return &NotificationUsecase{orders: orders, mailer: mailer, tr: tr}
}

// OrderPlaced sends the confirmation email. Orders cancelled before the task
// runs, such as a LINE Pay order whose reservation failed, get no email.
func (n *NotificationUsecase) OrderPlaced(ctx context.Context, task domain.FollowUpTask) error {
	order, err := n.orders.GetByID(ctx, task.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order.Status == domain.OrderStatusCancelled {
		logger.WithContext(ctx).Info().Str("order_id", order.ID).Msg("order cancelled, confirmation email skipped")
		return nil
	}
	return n.mailer.Send(ctx, domain.Mail{
		To:      order.CustomerEmail,
		Subject: n.tr.T(i18n.MailOrderPlacedSubject, order.OrderNumber),
		Text:    n.tr.T(i18n.MailOrderPlacedBody, order.CustomerName, order.OrderNumber, formatAmount(order.Total)),
	})
}

func (n *NotificationUsecase) OrderShipped(ctx context.Context, task domain.FollowUpTask) error {
	order, err := n.orders.GetByID(ctx, task.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	tracking := "-"
	if order.TrackingNumber != nil && *order.TrackingNumber != "" {
		tracking = *order.TrackingNumber
	}
	return n.mailer.Send(ctx, domain.Mail{
		To:      order.CustomerEmail,
		Subject: n.tr.T(i18n.MailOrderShippedSubject, order.OrderNumber),
		Text:    n.tr.T(i18n.MailOrderShippedBody, order.CustomerName, order.OrderNumber, tracking),
	})
}
