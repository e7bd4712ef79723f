package domain

import "time"

// orderTransitions lists every permitted status edge. Anything else is rejected.
var orderTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusCompleted},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	return len(orderTransitions[status]) == 0
}

// StatusChange is the full set of columns a transition writes.
type StatusChange struct {
	From           string
	To             string
	PaymentStatus  string
	TrackingNumber *string
	PaidAt         *time.Time
	ShippedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	// RestoreInventory is set when stock and coupon usage must be given back.
	RestoreInventory bool
}

// PlanTransition computes the secondary fields for moving order to status `to`.
// The caller must have checked CanTransition.
func PlanTransition(order *Order, to string, trackingNumber *string, now time.Time) StatusChange {
	change := StatusChange{
		From:          order.Status,
		To:            to,
		PaymentStatus: order.PaymentStatus,
	}
	switch to {
	case OrderStatusPaid:
		change.PaidAt = &now
		change.PaymentStatus = PaymentStatusPaid
	case OrderStatusShipped:
		change.ShippedAt = &now
		change.TrackingNumber = trackingNumber
	case OrderStatusCompleted:
		change.CompletedAt = &now
		if order.PaymentMethod == PaymentMethodCOD {
			change.PaymentStatus = PaymentStatusPaid
			if order.PaidAt == nil {
				change.PaidAt = &now
			}
		}
	case OrderStatusCancelled:
		change.CancelledAt = &now
		change.RestoreInventory = true
		if order.PaymentStatus != PaymentStatusPaid {
			change.PaymentStatus = PaymentStatusCancelled
		}
	case OrderStatusRefunded:
		change.PaymentStatus = PaymentStatusRefunded
	}
	return change
}
