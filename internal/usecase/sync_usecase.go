package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/logger"
	"teahouse-backend/pkg/metrics"
)

const (
	syncLockTTL       = 5 * time.Second
	syncLockAttempts  = 3
	syncLockRetryWait = 50 * time.Millisecond
)

// CartSnapshot is the server cart with its version token.
type CartSnapshot struct {
	Items   []domain.CartLine
	Version int64
}

type WishlistSnapshot struct {
	Items   []domain.WishlistLine
	Version int64
}

// SyncUsecase serves the server copy of the signed-in cart and wishlist.
// Writes for one user are serialised by a lock and guarded by a version token.
type SyncUsecase struct {
	repo     domain.SyncRepository
	products domain.ProductRepository
	locker   domain.Locker
	maxQty   int
	tr       *i18n.Translator
	metrics  *metrics.Storefront
}

func NewSyncUsecase(repo domain.SyncRepository, products domain.ProductRepository, locker domain.Locker, maxQty int, tr *i18n.Translator, m *metrics.Storefront) *SyncUsecase {
	return &SyncUsecase{repo: repo, products: products, locker: locker, maxQty: maxQty, tr: tr, metrics: m}
}

func (u *SyncUsecase) GetCart(ctx context.Context, userID string) (*CartSnapshot, error) {
	items, version, err := u.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if items == nil {
		items = []domain.CartLine{}
	}
	return &CartSnapshot{Items: items, Version: version}, nil
}

// ReplaceCart stores entries as the whole cart. expectedVersion < 0 skips the
// version check; a stale version yields PRECONDITION_FAILED.
func (u *SyncUsecase) ReplaceCart(ctx context.Context, userID string, entries []domain.CartEntry, expectedVersion int64) (*CartSnapshot, error) {
	err := u.withUserLock(ctx, "cart", userID, func() error {
		normalized, err := u.normalizeCart(ctx, entries)
		if err != nil {
			return err
		}
		_, err = u.repo.ReplaceCart(ctx, userID, normalized, expectedVersion)
		return err
	})
	if err != nil {
		return nil, u.syncError(ctx, err, "cart")
	}
	return u.GetCart(ctx, userID)
}

func (u *SyncUsecase) GetWishlist(ctx context.Context, userID string) (*WishlistSnapshot, error) {
	items, version, err := u.repo.GetWishlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	if items == nil {
		items = []domain.WishlistLine{}
	}
	return &WishlistSnapshot{Items: items, Version: version}, nil
}

func (u *SyncUsecase) ReplaceWishlist(ctx context.Context, userID string, entries []domain.CartEntry, expectedVersion int64) (*WishlistSnapshot, error) {
	err := u.withUserLock(ctx, "wishlist", userID, func() error {
		ids, err := u.normalizeWishlist(ctx, entries)
		if err != nil {
			return err
		}
		_, err = u.repo.ReplaceWishlist(ctx, userID, ids, expectedVersion)
		return err
	})
	if err != nil {
		return nil, u.syncError(ctx, err, "wishlist")
	}
	return u.GetWishlist(ctx, userID)
}

func (u *SyncUsecase) withUserLock(ctx context.Context, kind, userID string, fn func() error) error {
	key := "sync:" + kind + ":" + userID
	for attempt := 1; ; attempt++ {
		release, err := u.locker.Acquire(ctx, key, syncLockTTL)
		if err == nil {
			defer func() {
				if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
					logger.WithContext(ctx).Warn().Err(relErr).Str("key", key).Msg("failed to release sync lock")
				}
			}()
			return fn()
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("acquire sync lock: %w", err)
		}
		if attempt == syncLockAttempts {
			return apperror.New(apperror.CodeConflict, u.tr.T(i18n.SyncBusy))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(syncLockRetryWait):
		}
	}
}

func (u *SyncUsecase) syncError(ctx context.Context, err error, kind string) error {
	if !errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	u.metrics.StaleSyncPush()
	logger.WithContext(ctx).Info().Str("list", kind).Msg("stale sync push rejected")
	key := i18n.SyncCartStale
	if kind == "wishlist" {
		key = i18n.SyncWishlistStale
	}
	return apperror.New(apperror.CodePreconditionFailed, u.tr.T(key))
}

// normalizeCart keeps one entry per product with the larger quantity, clamps
// quantities and drops products that cannot be bought.
func (u *SyncUsecase) normalizeCart(ctx context.Context, entries []domain.CartEntry) ([]domain.CartEntry, error) {
	byID := make(map[string]int, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ProductID == "" || e.Quantity <= 0 {
			continue
		}
		qty := e.Quantity
		if u.maxQty > 0 && qty > u.maxQty {
			qty = u.maxQty
		}
		prev, seen := byID[e.ProductID]
		if !seen {
			order = append(order, e.ProductID)
		}
		if qty > prev {
			byID[e.ProductID] = qty
		}
	}

	live, err := u.liveProducts(ctx, order)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CartEntry, 0, len(order))
	for _, id := range order {
		if live[id] {
			out = append(out, domain.CartEntry{ProductID: id, Quantity: byID[id]})
		}
	}
	return out, nil
}

func (u *SyncUsecase) normalizeWishlist(ctx context.Context, entries []domain.CartEntry) ([]string, error) {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ProductID == "" {
			continue
		}
		if _, ok := seen[e.ProductID]; ok {
			continue
		}
		seen[e.ProductID] = struct{}{}
		ids = append(ids, e.ProductID)
	}

	live, err := u.liveProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if live[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (u *SyncUsecase) liveProducts(ctx context.Context, ids []string) (map[string]bool, error) {
	live := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return live, nil
	}
	products, err := u.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for id, p := range products {
		live[id] = p.IsActive
	}
	return live, nil
}
