package domain

// Order Statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Payment Statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusRefunded  = "refunded"
)

// Payment Methods
const (
	PaymentMethodLinePay      = "line_pay"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCOD          = "cod"
)

// Shipping Methods
const (
	ShippingMethodHomeDelivery = "home_delivery"
)

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// List Exports for API
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

var PaymentStatuses = []string{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusRefunded,
}

var PaymentMethods = []string{
	PaymentMethodLinePay,
	PaymentMethodBankTransfer,
	PaymentMethodCOD,
}

var CouponTypes = []string{
	CouponTypePercentage,
	CouponTypeFixedAmount,
	CouponTypeFreeShipping,
}
