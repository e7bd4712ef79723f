package domain

import (
	"context"
	"time"
)

// Follow-up task kinds. Each kind runs at most once per order.
const (
	TaskOrderPlacedEmail    = "order.placed_email"
	TaskOrderShippedEmail   = "order.shipped_email"
	TaskCancelUnreservedPay = "order.cancel_unreserved"
)

const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
	TaskStatusDead    = "dead"
)

// FollowUpTask is a durable side effect enqueued in the same transaction as the order change.
type FollowUpTask struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	OrderID       string     `json:"order_id"`
	Payload       RawJSON    `json:"payload"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

type TaskRepository interface {
	// Enqueue is a no-op when a task of the same kind already exists for the order.
	Enqueue(ctx context.Context, task *FollowUpTask) error
	// ClaimDue leases up to limit pending tasks due at now, skipping rows other workers hold.
	// Claimed tasks have Attempts incremented and are hidden from other claimers until now+lease.
	ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]FollowUpTask, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	MarkRetry(ctx context.Context, id string, lastErr string, next time.Time) error
	MarkDead(ctx context.Context, id string, lastErr string) error
}
