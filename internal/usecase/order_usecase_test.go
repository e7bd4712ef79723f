package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/internal/domain"
	"teahouse-backend/pkg/apperror"
)

var customer = &domain.User{ID: "11111111-1111-4111-8111-111111111111", Email: "mei@example.com", Role: domain.RoleCustomer}

func TestPlaceOrderCOD(t *testing.T) {
	env := newTestEnv(t)
	req := checkoutRequest(domain.PaymentMethodCOD,
		LineRequest{ProductID: greenTeaID, Quantity: 2},
		LineRequest{ProductID: oolongID, Quantity: 1},
	)
	req.SaveAddress = true

	res, err := env.orders.PlaceOrder(context.Background(), customer, req, "")
	require.NoError(t, err)

	order := res.Order
	assert.Empty(t, res.PaymentURL)
	assert.Regexp(t, regexp.MustCompile(`^TH\d{6}[A-HJ-NP-Z2-9]{6}$`), order.OrderNumber)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 1800.0, order.Subtotal)
	assert.Equal(t, 0.0, order.ShippingFee)
	assert.Equal(t, 1800.0, order.Total)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Green Tea", order.Items[0].Title)

	assert.Equal(t, 8, env.store.product(greenTeaID).Stock)
	assert.Equal(t, 4, env.store.product(oolongID).Stock)
	assert.Equal(t, []string{domain.TaskOrderPlacedEmail}, env.store.taskKinds(order.ID))

	history, err := env.orders.GetOrderHistory(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].PreviousStatus)

	profile := env.store.profiles[customer.ID]
	assert.Equal(t, "Taipei", profile.DefaultAddress.City)
}

func TestPlaceOrderCouponExample(t *testing.T) {
	env := newTestEnv(t)
	env.store.addCoupon(domain.Coupon{
		ID: "c-10", Code: "TEA10", DiscountType: domain.CouponTypePercentage,
		DiscountValue: 10, MaxDiscount: floatPtr(80), IsActive: true,
	})
	req := checkoutRequest(domain.PaymentMethodBankTransfer, LineRequest{ProductID: greenTeaID, Quantity: 2})
	req.CouponCode = strPtr("tea10")

	res, err := env.orders.PlaceOrder(context.Background(), customer, req, "")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, res.Order.Subtotal)
	assert.Equal(t, 80.0, res.Order.DiscountAmount)
	assert.Equal(t, 100.0, res.Order.ShippingFee)
	assert.Equal(t, 1020.0, res.Order.Total)
	assert.Equal(t, "TEA10", *res.Order.CouponCode)
	assert.Equal(t, 1, env.store.coupon("c-10").UsedCount)
}

func TestPlaceOrderRejectedCouponWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.store.addCoupon(domain.Coupon{ID: "c-min", Code: "BIG", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 100, MinOrderAmount: 3000, IsActive: true})
	req := checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: greenTeaID, Quantity: 1})
	req.CouponCode = strPtr("BIG")

	_, err := env.orders.PlaceOrder(context.Background(), customer, req, "")

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodeValidation, appErr.Code())
	assert.Equal(t, CouponReasonMinOrder, appErr.Details().(map[string]any)["reason"])
	assert.Zero(t, env.store.orderCount())
	assert.Equal(t, 10, env.store.product(greenTeaID).Stock)
}

func TestConcurrentOrdersRespectUsageLimit(t *testing.T) {
	const limit = 3
	env := newTestEnv(t)
	env.store.addProduct(domain.Product{ID: greenTeaID, Title: "Green Tea", Price: 500, Stock: 100, IsActive: true})
	env.store.addCoupon(domain.Coupon{
		ID: "c-lim", Code: "LIMITED", DiscountType: domain.CouponTypeFixedAmount,
		DiscountValue: 50, UsageLimit: intPtr(limit), IsActive: true,
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < limit+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := &domain.User{ID: fmt.Sprintf("user-%d", i)}
			req := checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: greenTeaID, Quantity: 1})
			req.CouponCode = strPtr("LIMITED")
			_, err := env.orders.PlaceOrder(context.Background(), user, req, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperror.IsCode(err, apperror.CodeValidation) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, limit, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, limit, env.store.coupon("c-lim").UsedCount)
	assert.Equal(t, limit, env.store.orderCount())
	assert.Equal(t, 100-limit, env.store.product(greenTeaID).Stock)
}

func TestPerUserLimitBlocksSecondOrder(t *testing.T) {
	env := newTestEnv(t)
	env.store.addCoupon(domain.Coupon{
		ID: "c-once", Code: "WELCOME", DiscountType: domain.CouponTypeFixedAmount,
		DiscountValue: 50, PerUserLimit: intPtr(1), IsActive: true,
	})
	req := checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: greenTeaID, Quantity: 1})
	req.CouponCode = strPtr("WELCOME")

	_, err := env.orders.PlaceOrder(context.Background(), customer, req, "")
	require.NoError(t, err)

	_, err = env.orders.PlaceOrder(context.Background(), customer, req, "")
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, CouponReasonPerUserLimit, appErr.Details().(map[string]any)["reason"])

	_, err = env.orders.PlaceOrder(context.Background(), &domain.User{ID: "someone-else"}, req, "")
	assert.NoError(t, err)
}

func TestPlaceOrderRetriesDuplicateOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	env.store.createOrderErrs = []error{domain.ErrDuplicateOrderNo, nil}

	res, err := env.orders.PlaceOrder(context.Background(), customer,
		checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: oolongID, Quantity: 1}), "")

	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.OrderNumber)
	assert.Equal(t, 1, env.store.orderCount())
	assert.Equal(t, 4, env.store.product(oolongID).Stock)
}

func TestOrderWriterStockRaceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	order, err := env.orders.writer.Write(context.Background(), OrderDraft{
		UserID: customer.ID,
		Cart: &ValidatedCart{Lines: []ValidatedLine{
			{ProductID: greenTeaID, Title: "Green Tea", UnitPrice: 500, Quantity: 1, LineTotal: 500},
			{ProductID: oolongID, Title: "Oolong", UnitPrice: 800, Quantity: 99, LineTotal: 79200},
		}},
		Pricing: PriceBreakdown{Subtotal: 79700},
	})

	assert.Nil(t, order)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Zero(t, env.store.orderCount())
	assert.Equal(t, 10, env.store.product(greenTeaID).Stock)
}

func TestPlaceOrderLinePay(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.orders.PlaceOrder(context.Background(), customer,
		checkoutRequest(domain.PaymentMethodLinePay, LineRequest{ProductID: oolongID, Quantity: 1}), "")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/"+res.Order.OrderNumber, res.PaymentURL)

	require.Len(t, env.gateway.reserved, 1)
	reservation := env.gateway.reserved[0]
	assert.Equal(t, int64(900), reservation.Amount)
	assert.Equal(t, "TWD", reservation.Currency)
	assert.Equal(t, []domain.ReservationItem{
		{Name: "Oolong", Quantity: 1, Price: 800},
		{Name: "Shipping", Quantity: 1, Price: 100},
	}, reservation.Items)

	payment, err := memPayments{env.store}.GetLatestByOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRecordReserved, payment.Status)
}

func TestPlaceOrderLinePayFailureCancelsOrder(t *testing.T) {
	env := newTestEnv(t)
	env.store.addCoupon(domain.Coupon{ID: "c-5", Code: "FIVE", DiscountType: domain.CouponTypeFixedAmount, DiscountValue: 5, IsActive: true})
	env.gateway.reserveErr = &domain.PaymentGatewayError{Provider: "line_pay", Code: "1104", Message: "merchant not found"}
	req := checkoutRequest(domain.PaymentMethodLinePay, LineRequest{ProductID: oolongID, Quantity: 2})
	req.CouponCode = strPtr("FIVE")

	_, err := env.orders.PlaceOrder(context.Background(), customer, req, "retry-key")

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.CodePaymentGateway, appErr.Code())
	assert.Contains(t, appErr.Message(), "1104")

	orders, _, err := env.orders.ListMyOrders(context.Background(), customer.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderStatusCancelled, orders[0].Status)
	assert.Equal(t, domain.PaymentStatusCancelled, orders[0].PaymentStatus)
	assert.Equal(t, 5, env.store.product(oolongID).Stock)
	assert.Equal(t, 0, env.store.coupon("c-5").UsedCount)

	claimed, err := env.idem.Claim(context.Background(), "order:"+customer.ID+":retry-key", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed, "failed placement must release the idempotency key")
}

func TestPlaceOrderIdempotencyKeyReuse(t *testing.T) {
	env := newTestEnv(t)
	req := checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: greenTeaID, Quantity: 1})

	_, err := env.orders.PlaceOrder(context.Background(), customer, req, "k-1")
	require.NoError(t, err)

	_, err = env.orders.PlaceOrder(context.Background(), customer, req, "k-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeIdempotency))
	assert.Equal(t, 1, env.store.orderCount())
}

func TestGetMyOrderHidesOtherCustomers(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orders.PlaceOrder(context.Background(), customer,
		checkoutRequest(domain.PaymentMethodCOD, LineRequest{ProductID: greenTeaID, Quantity: 1}), "")
	require.NoError(t, err)

	_, err = env.orders.GetMyOrder(context.Background(), "intruder", res.Order.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeNotFound))

	got, err := env.orders.GetMyOrder(context.Background(), customer.ID, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.OrderNumber, got.OrderNumber)
}

func TestPreviewCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.store.addCoupon(domain.Coupon{ID: "c-ship", Code: "SHIPFREE", DiscountType: domain.CouponTypeFreeShipping, IsActive: true})

	preview, err := env.orders.PreviewCoupon(context.Background(), customer, CouponPreviewRequest{
		Code:  "shipfree",
		Items: []LineRequest{{ProductID: greenTeaID, Quantity: 1}},
	})

	require.NoError(t, err)
	assert.True(t, preview.Valid)
	assert.True(t, preview.FreeShipping)
	assert.Equal(t, 0.0, preview.Breakdown.ShippingFee)
	assert.Equal(t, 500.0, preview.Breakdown.Total)
	assert.Zero(t, env.store.coupon("c-ship").UsedCount)
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := NewOrderNumber(now)
		require.NoError(t, err)
		assert.Regexp(t, `^TH250704[A-HJ-NP-Z2-9]{6}$`, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "validation_error", failureReason(apperror.New(apperror.CodeValidation, "x")))
	assert.Equal(t, "internal", failureReason(errors.New("boom")))
}
