package domain

import (
	"context"
	"errors"
)

// Sentinel errors returned by repositories.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCouponExhausted   = errors.New("coupon usage limit reached")
	ErrVersionConflict   = errors.New("version conflict")
	ErrDuplicateOrderNo  = errors.New("duplicate order number")
	ErrAlreadyExists     = errors.New("already exists")
)

type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pagination
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{Page: page, PerPage: perPage, TotalItems: total, TotalPages: pages}
}
