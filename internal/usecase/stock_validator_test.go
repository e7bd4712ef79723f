package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
	"teahouse-backend/pkg/i18n"
)

func TestStockValidatorCollectsEveryFailingLine(t *testing.T) {
	s := newMemStore()
	s.addProduct(domain.Product{ID: "p-low", Title: "Pu'er", Price: 900, Stock: 1, IsActive: true})
	s.addProduct(domain.Product{ID: "p-off", Title: "Jasmine", Price: 300, Stock: 9, IsActive: false})

	_, err := NewStockValidator(memProducts{s}, i18n.New("en")).Validate(context.Background(), []LineRequest{
		{ProductID: "p-missing", Quantity: 1},
		{ProductID: "p-off", Quantity: 1},
		{ProductID: "p-low", Quantity: 3},
		{ProductID: "p-low", Quantity: 0},
	})

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeValidation, appErr.Code())

	details := appErr.Details().(map[string]any)
	lines := details["lines"].([]*LineError)
	require.Len(t, lines, 4)

	reasons := map[int]string{}
	for _, l := range lines {
		reasons[l.Index] = l.Reason
	}
	assert.Equal(t, map[int]string{
		0: LineReasonNotFound,
		1: LineReasonInactive,
		2: LineReasonInsufficient,
		3: LineReasonInvalidQuantity,
	}, reasons)
}

func TestStockValidatorPricesAndMergesDuplicates(t *testing.T) {
	s := newMemStore()
	cat := teaCategory
	s.addProduct(domain.Product{ID: "p-1", CategoryID: &cat, Title: "Sencha", Price: 400, DiscountPrice: floatPtr(350), Stock: 5, IsActive: true})
	s.addProduct(domain.Product{ID: "p-2", CategoryID: &cat, Title: "Hojicha", Price: 199.99, Stock: 5, IsActive: true})

	cart, err := NewStockValidator(memProducts{s}, i18n.New("en")).Validate(context.Background(), []LineRequest{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
		{ProductID: "p-1", Quantity: 1},
	})

	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, 350.0, cart.Lines[0].UnitPrice)
	assert.Equal(t, 1050.0, cart.Lines[0].LineTotal)
	assert.Equal(t, 599.97, cart.Lines[1].LineTotal)
	assert.Equal(t, 1649.97, cart.Subtotal)
	assert.Equal(t, []string{teaCategory}, cart.CategoryIDs())
}

func TestStockValidatorMergedQuantityExceedsStock(t *testing.T) {
	s := newMemStore()
	s.addProduct(domain.Product{ID: "p-1", Title: "Sencha", Price: 400, Stock: 3, IsActive: true})

	_, err := NewStockValidator(memProducts{s}, i18n.New("en")).Validate(context.Background(), []LineRequest{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-1", Quantity: 2},
	})

	lines := apperror.As(err).Details().(map[string]any)["lines"].([]*LineError)
	require.Len(t, lines, 1)
	assert.Equal(t, LineReasonInsufficient, lines[0].Reason)
	assert.Equal(t, 3, *lines[0].Available)
}

func TestStockValidatorEmptyCart(t *testing.T) {
	_, err := NewStockValidator(memProducts{newMemStore()}, i18n.New("en")).Validate(context.Background(), nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
