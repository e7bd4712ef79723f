package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/internal/domain"
)

type stubTaskRepo struct {
	mu       sync.Mutex
	due      []domain.FollowUpTask
	claimErr error
	done     []string
	retried  map[string]time.Time
	dead     map[string]string
}

func (s *stubTaskRepo) Enqueue(context.Context, *domain.FollowUpTask) error { return nil }

func (s *stubTaskRepo) ClaimDue(_ context.Context, limit int, _ time.Time, _ time.Duration) ([]domain.FollowUpTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	n := limit
	if n > len(s.due) {
		n = len(s.due)
	}
	out := s.due[:n]
	s.due = s.due[n:]
	return out, nil
}

func (s *stubTaskRepo) MarkDone(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, id)
	return nil
}

func (s *stubTaskRepo) MarkRetry(_ context.Context, id, _ string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retried == nil {
		s.retried = map[string]time.Time{}
	}
	s.retried[id] = next
	return nil
}

func (s *stubTaskRepo) MarkDead(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead == nil {
		s.dead = map[string]string{}
	}
	s.dead[id] = reason
	return nil
}

func TestRunOnceOutcomes(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := &stubTaskRepo{due: []domain.FollowUpTask{
		{ID: "t-ok", Kind: domain.TaskOrderPlacedEmail, Attempts: 1},
		{ID: "t-retry", Kind: domain.TaskOrderShippedEmail, Attempts: 2},
		{ID: "t-dead", Kind: domain.TaskOrderShippedEmail, Attempts: 3},
		{ID: "t-unknown", Kind: "order.mystery", Attempts: 1},
		{ID: "t-panic", Kind: domain.TaskCancelUnreservedPay, Attempts: 1},
	}}

	r, err := New(Params{
		Tasks:       repo,
		MaxAttempts: 3,
		Handlers: map[string]Handler{
			domain.TaskOrderPlacedEmail:    func(context.Context, domain.FollowUpTask) error { return nil },
			domain.TaskOrderShippedEmail:   func(context.Context, domain.FollowUpTask) error { return errors.New("smtp down") },
			domain.TaskCancelUnreservedPay: func(context.Context, domain.FollowUpTask) error { panic("boom") },
		},
	})
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []string{"t-ok"}, repo.done)
	require.Contains(t, repo.retried, "t-retry")
	assert.True(t, repo.retried["t-retry"].After(now.Add(RetryDelay(2)-time.Millisecond)))
	assert.Contains(t, repo.retried, "t-panic")
	assert.Equal(t, "smtp down", repo.dead["t-dead"])
	assert.Contains(t, repo.dead["t-unknown"], "no handler")
}

func TestRunOnceClaimError(t *testing.T) {
	r, err := New(Params{
		Tasks:    &stubTaskRepo{claimErr: errors.New("db gone")},
		Handlers: map[string]Handler{"x": func(context.Context, domain.FollowUpTask) error { return nil }},
	})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, RetryDelay(1))
	assert.Equal(t, 60*time.Second, RetryDelay(2))
	assert.Equal(t, 4*time.Minute, RetryDelay(4))
	assert.Equal(t, 30*time.Minute, RetryDelay(20))
}

func TestRunStopsOnCancel(t *testing.T) {
	r, err := New(Params{
		Tasks:        &stubTaskRepo{},
		PollInterval: 10 * time.Millisecond,
		Handlers:     map[string]Handler{"x": func(context.Context, domain.FollowUpTask) error { return nil }},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)
	_, err = New(Params{Tasks: &stubTaskRepo{}})
	assert.Error(t, err)
}
