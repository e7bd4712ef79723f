package usecase

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
	"teahouse-backend/pkg/money"
)

// LineRequest is one requested order line. Prices are never taken from the client.
type LineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type ValidatedLine struct {
	ProductID  string
	Title      string
	CategoryID *string
	UnitPrice  float64
	Quantity   int
	LineTotal  float64
}

type ValidatedCart struct {
	Lines    []ValidatedLine
	Subtotal float64
}

func (c *ValidatedCart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (c *ValidatedCart) CategoryIDs() []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.CategoryID == nil {
			continue
		}
		if _, ok := seen[*l.CategoryID]; ok {
			continue
		}
		seen[*l.CategoryID] = struct{}{}
		ids = append(ids, *l.CategoryID)
	}
	return ids
}

// Stock line failure reasons.
const (
	LineReasonNotFound        = "not_found"
	LineReasonInactive        = "inactive"
	LineReasonInsufficient    = "insufficient_stock"
	LineReasonInvalidQuantity = "invalid_quantity"
)

// LineError describes why one requested line cannot be bought.
type LineError struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s): %s", e.Index, e.ProductID, e.Reason)
}

// StockValidator checks requested lines against live products and prices them.
type StockValidator struct {
	products domain.ProductRepository
	tr       *i18n.Translator
}

func NewStockValidator(products domain.ProductRepository, tr *i18n.Translator) *StockValidator {
	return &StockValidator{products: products, tr: tr}
}

type mergedLine struct {
	index     int
	productID string
	quantity  int
}

// Validate returns the priced cart, or a VALIDATION_ERROR listing every failing line.
// Repeated product ids are merged into the first line with the summed quantity.
func (v *StockValidator) Validate(ctx context.Context, lines []LineRequest) (*ValidatedCart, error) {
	if len(lines) == 0 {
		return nil, apperror.New(apperror.CodeValidation, v.tr.T(i18n.StockEmptyCart))
	}

	merged := make([]*mergedLine, 0, len(lines))
	byProduct := make(map[string]*mergedLine, len(lines))
	var errs error
	for i, l := range lines {
		if l.Quantity <= 0 {
			errs = multierr.Append(errs, &LineError{
				Index:     i,
				ProductID: l.ProductID,
				Reason:    LineReasonInvalidQuantity,
				Message:   v.tr.T(i18n.StockInvalidQuantity),
			})
			continue
		}
		if m, ok := byProduct[l.ProductID]; ok {
			m.quantity += l.Quantity
			continue
		}
		m := &mergedLine{index: i, productID: l.ProductID, quantity: l.Quantity}
		byProduct[l.ProductID] = m
		merged = append(merged, m)
	}

	ids := make([]string, 0, len(merged))
	for _, m := range merged {
		ids = append(ids, m.productID)
	}
	products, err := v.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	cart := &ValidatedCart{Lines: make([]ValidatedLine, 0, len(merged))}
	totals := make([]float64, 0, len(merged))
	for _, m := range merged {
		p, ok := products[m.productID]
		switch {
		case !ok:
			errs = multierr.Append(errs, &LineError{
				Index:     m.index,
				ProductID: m.productID,
				Reason:    LineReasonNotFound,
				Message:   v.tr.T(i18n.StockProductNotFound),
			})
			continue
		case !p.IsActive:
			errs = multierr.Append(errs, &LineError{
				Index:     m.index,
				ProductID: m.productID,
				Reason:    LineReasonInactive,
				Message:   v.tr.T(i18n.StockProductInactive, p.Title),
			})
			continue
		case m.quantity > p.Stock:
			available := p.Stock
			errs = multierr.Append(errs, &LineError{
				Index:     m.index,
				ProductID: m.productID,
				Reason:    LineReasonInsufficient,
				Message:   v.tr.T(i18n.StockInsufficient, p.Title, p.Stock),
				Available: &available,
			})
			continue
		}

		price := money.Round(p.EffectivePrice())
		line := ValidatedLine{
			ProductID:  p.ID,
			Title:      p.Title,
			CategoryID: p.CategoryID,
			UnitPrice:  price,
			Quantity:   m.quantity,
			LineTotal:  money.LineTotal(price, m.quantity),
		}
		cart.Lines = append(cart.Lines, line)
		totals = append(totals, line.LineTotal)
	}

	if errs != nil {
		return nil, v.lineErrors(multierr.Errors(errs))
	}

	cart.Subtotal = money.Sum(totals...)
	return cart, nil
}

func (v *StockValidator) lineErrors(errs []error) error {
	details := make([]*LineError, 0, len(errs))
	for _, err := range errs {
		if le, ok := err.(*LineError); ok {
			details = append(details, le)
		}
	}
	return apperror.New(apperror.CodeValidation, v.tr.T(i18n.StockValidationFailed)).
		WithDetails(map[string]any{"lines": details})
}

// insufficientStockError is raised when a guarded decrement loses a race after validation.
func (v *StockValidator) insufficientStockError(index int, line ValidatedLine) error {
	return v.lineErrors([]error{&LineError{
		Index:     index,
		ProductID: line.ProductID,
		Reason:    LineReasonInsufficient,
		Message:   v.tr.T(i18n.StockInsufficient, line.Title, 0),
	}})
}
