package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
)

const reservedTx = "2025010100000000001"

func placeLinePay(t *testing.T, env *testEnv) *domain.Order {
	t.Helper()
	res, err := env.orders.PlaceOrder(context.Background(), customer,
		checkoutRequest(domain.PaymentMethodLinePay, LineRequest{ProductID: oolongID, Quantity: 1}), "")
	require.NoError(t, err)
	return res.Order
}

func TestConfirmMarksOrderPaidOnce(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()

	paid, err := env.payments.Confirm(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, paid.Status)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)

	again, err := env.payments.Confirm(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, again.Status)
	assert.Len(t, env.gateway.confirmed, 1)

	payment, err := memPayments{env.store}.GetLatestByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordConfirmed, payment.Status)
}

func TestConfirmRejectsForeignTransaction(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)

	_, err := env.payments.Confirm(context.Background(), "999", order.OrderNumber)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Empty(t, env.gateway.confirmed)
}

func TestConfirmGatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	env.gateway.confirmErr = errors.New("connection reset")

	_, err := env.payments.Confirm(context.Background(), reservedTx, order.OrderNumber)
	assert.True(t, apperror.IsCode(err, apperror.CodePaymentGateway))

	got, _ := env.orders.GetOrder(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestCancelCallbackCancelsPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)

	cancelled, err := env.payments.Cancel(context.Background(), reservedTx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, env.store.product(oolongID).Stock)

	payment, _ := memPayments{env.store}.GetLatestByOrder(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentRecordCancelled, payment.Status)
}

func TestConfirmSkipsGatewayWhenOrderIsNoLongerPending(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()
	_, err := env.status.Transition(ctx, order.ID, domain.OrderStatusCancelled, TransitionOptions{ActorID: "admin-1"})
	require.NoError(t, err)

	_, err = env.payments.Confirm(ctx, reservedTx, order.OrderNumber)

	assert.True(t, apperror.IsCode(err, apperror.CodeStateConflict))
	assert.Empty(t, env.gateway.confirmed)
	payment, _ := memPayments{env.store}.GetLatestByOrder(ctx, order.ID)
	assert.Equal(t, domain.PaymentRecordReserved, payment.Status)
	got, _ := env.orders.GetOrder(ctx, order.ID)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.Equal(t, 5, env.store.product(oolongID).Stock)
}

func TestConfirmRejectsOrdersNotPaidWithLinePay(t *testing.T) {
	env := newTestEnv(t)
	order := placeCOD(t, env)

	_, err := env.payments.Confirm(context.Background(), reservedTx, order.OrderNumber)

	assert.True(t, apperror.IsCode(err, apperror.CodeStateConflict))
	assert.Empty(t, env.gateway.confirmed)
	got, _ := env.orders.GetOrder(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestConfirmAfterCustomerCancelled(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()
	_, err := env.payments.Cancel(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)

	_, err = env.payments.Confirm(ctx, reservedTx, order.OrderNumber)
	assert.True(t, apperror.IsCode(err, apperror.CodeStateConflict))
	assert.Empty(t, env.gateway.confirmed)
}

func TestCancelCallbackLeavesOtherPaymentMethodsAlone(t *testing.T) {
	env := newTestEnv(t)
	order := placeCOD(t, env)

	_, err := env.payments.Cancel(context.Background(), reservedTx, order.OrderNumber)

	assert.True(t, apperror.IsCode(err, apperror.CodeStateConflict))
	got, _ := env.orders.GetOrder(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, 7, env.store.product(greenTeaID).Stock)
}

func TestCancelCallbackRequiresMatchingTransaction(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()

	for _, tx := range []string{"", "999"} {
		_, err := env.payments.Cancel(ctx, tx, order.OrderNumber)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "tx %q", tx)
	}
	got, _ := env.orders.GetOrder(ctx, order.ID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestCancelCallbackRepeatsQuietly(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()

	_, err := env.payments.Cancel(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)
	again, err := env.payments.Cancel(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, again.Status)
	assert.Equal(t, 5, env.store.product(oolongID).Stock)
}

func TestCancelCallbackDoesNotUndoPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	order := placeLinePay(t, env)
	ctx := context.Background()
	_, err := env.payments.Confirm(ctx, reservedTx, order.OrderNumber)
	require.NoError(t, err)

	_, err = env.payments.Cancel(ctx, reservedTx, order.OrderNumber)
	assert.True(t, apperror.IsCode(err, apperror.CodeStateConflict))
	got, _ := env.orders.GetOrder(ctx, order.ID)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
}

func TestCancelCallbackUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payments.Cancel(context.Background(), reservedTx, "TH000000XXXXXX")
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))
}

func TestReservationFallsBackToSummaryLine(t *testing.T) {
	u := &PaymentUsecase{currency: "TWD"}
	order := &domain.Order{
		OrderNumber: "TH250101ABCDEF",
		Total:       401.2,
		ShippingFee: 100,
		Items: []domain.OrderItem{
			{Title: "Sample", UnitPrice: 100.4, Quantity: 3},
		},
	}

	r := u.reservation(order)

	assert.Equal(t, int64(401), r.Amount)
	require.Len(t, r.Items, 1)
	assert.Equal(t, int64(401), r.Items[0].Price)
	assert.Contains(t, r.Items[0].Name, "TH250101ABCDEF")
}

func TestReservationIncludesDiscountLine(t *testing.T) {
	u := &PaymentUsecase{currency: "TWD"}
	order := &domain.Order{
		Total:          1020,
		ShippingFee:    100,
		DiscountAmount: 80,
		Items:          []domain.OrderItem{{Title: "Green Tea", UnitPrice: 500, Quantity: 2}},
	}

	r := u.reservation(order)

	assert.Equal(t, []domain.ReservationItem{
		{Name: "Green Tea", Quantity: 2, Price: 500},
		{Name: "Shipping", Quantity: 1, Price: 100},
		{Name: "Discount", Quantity: 1, Price: -80},
	}, r.Items)
}
