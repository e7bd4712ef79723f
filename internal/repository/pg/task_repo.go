package pgrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

type taskRepository struct {
	db *pgxpool.Pool
}

func NewTaskRepository(db *pgxpool.Pool) domain.TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Enqueue(ctx context.Context, t *domain.FollowUpTask) error {
	payload := []byte(t.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO follow_up_tasks (id, kind, order_id, payload, status, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, order_id) DO NOTHING`,
		t.ID, t.Kind, t.OrderID, payload, domain.TaskStatusPending, t.NextAttemptAt)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Kind, err)
	}
	return nil
}

// ClaimDue runs as a single statement, so the lease holds without an outer transaction.
func (r *taskRepository) ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]domain.FollowUpTask, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		UPDATE follow_up_tasks t
		SET attempts = t.attempts + 1, next_attempt_at = $3
		WHERE t.id IN (
			SELECT id FROM follow_up_tasks
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING t.id::text, t.kind, t.order_id::text, t.payload, t.status, t.attempts, t.last_error,
			t.next_attempt_at, t.created_at, t.completed_at`,
		now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.FollowUpTask{}
	for rows.Next() {
		var (
			t       domain.FollowUpTask
			payload []byte
		)
		if err := rows.Scan(&t.ID, &t.Kind, &t.OrderID, &payload, &t.Status, &t.Attempts, &t.LastError,
			&t.NextAttemptAt, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, err
		}
		t.Payload = payload
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE follow_up_tasks SET status = 'done', completed_at = $2, last_error = NULL
		WHERE id = $1`, id, at)
	return err
}

func (r *taskRepository) MarkRetry(ctx context.Context, id string, lastErr string, next time.Time) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE follow_up_tasks SET last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND status = 'pending'`, id, lastErr, next)
	return err
}

func (r *taskRepository) MarkDead(ctx context.Context, id string, lastErr string) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE follow_up_tasks SET status = 'dead', last_error = $2
		WHERE id = $1`, id, lastErr)
	return err
}
