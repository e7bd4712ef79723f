// Package i18n renders the short user-facing strings the API returns, in the
// storefront's deployment locale.
package i18n

import (
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type Key string

const (
	CouponApplied           Key = "coupon.applied"
	CouponNotFound          Key = "coupon.not_found"
	CouponInactive          Key = "coupon.inactive"
	CouponNotStarted        Key = "coupon.not_started"
	CouponExpired           Key = "coupon.expired"
	CouponMinOrder          Key = "coupon.min_order"
	CouponUsageLimit        Key = "coupon.usage_limit"
	CouponPerUserLimit      Key = "coupon.per_user_limit"
	CouponProductMismatch   Key = "coupon.product_mismatch"
	CouponCategoryMismatch  Key = "coupon.category_mismatch"
	StockProductNotFound    Key = "stock.product_not_found"
	StockProductInactive    Key = "stock.product_inactive"
	StockInsufficient       Key = "stock.insufficient"
	StockInvalidQuantity    Key = "stock.invalid_quantity"
	StockEmptyCart          Key = "stock.empty_cart"
	StockValidationFailed   Key = "stock.validation_failed"
	OrderInvalidTransition  Key = "order.invalid_transition"
	OrderNotFound           Key = "order.not_found"
	OrderDuplicateSubmit    Key = "order.duplicate_submit"
	PaymentReserveFailed    Key = "payment.reserve_failed"
	PaymentConfirmFailed    Key = "payment.confirm_failed"
	PaymentNotFound         Key = "payment.not_found"
	PaymentTxMismatch       Key = "payment.transaction_mismatch"
	PaymentNotLinePay       Key = "payment.not_line_pay"
	PaymentNotPending       Key = "payment.not_pending"
	AuthRequired            Key = "auth.required"
	AuthMissingToken        Key = "auth.missing_token"
	AuthInvalidToken        Key = "auth.invalid_token"
	AuthAdminOnly           Key = "auth.admin_only"
	RequestInvalidBody      Key = "request.invalid_body"
	RequestValidationFailed Key = "request.validation_failed"
	SyncBusy                Key = "sync.busy"
	SyncCartStale           Key = "sync.cart_stale"
	SyncWishlistStale       Key = "sync.wishlist_stale"
	SyncBadIfMatch          Key = "sync.bad_if_match"
	CouponInvalidID         Key = "coupon.invalid_id"
	CouponCodeTaken         Key = "coupon.code_taken"
	CouponCodeRequired      Key = "coupon.code_required"
	CouponPercentRange      Key = "coupon.percent_range"
	CouponValueRequired     Key = "coupon.value_required"
	CouponUnknownType       Key = "coupon.unknown_type"
	CouponInvalidDate       Key = "coupon.invalid_date"
	CouponExpiryBeforeStart Key = "coupon.expiry_before_start"
	CouponLimitBelowUsed    Key = "coupon.limit_below_used"
	ShippingNegative        Key = "shipping.negative"
	MailOrderPlacedSubject  Key = "mail.order_placed.subject"
	MailOrderPlacedBody     Key = "mail.order_placed.body"
	MailOrderShippedSubject Key = "mail.order_shipped.subject"
	MailOrderShippedBody    Key = "mail.order_shipped.body"
)

var supported = []language.Tag{
	language.MustParse("zh-TW"),
	language.English,
}

var matcher = language.NewMatcher(supported)

var translations = map[Key][2]string{
	CouponApplied:           {"優惠碼已套用", "Coupon applied"},
	CouponNotFound:          {"優惠碼不存在", "Coupon code does not exist"},
	CouponInactive:          {"優惠碼已停用", "Coupon is no longer active"},
	CouponNotStarted:        {"優惠活動尚未開始", "Coupon is not yet valid"},
	CouponExpired:           {"優惠碼已過期", "Coupon has expired"},
	CouponMinOrder:          {"訂單金額需滿 %s 元才能使用此優惠碼", "Order subtotal must be at least %s to use this coupon"},
	CouponUsageLimit:        {"優惠碼已達使用上限", "Coupon usage limit has been reached"},
	CouponPerUserLimit:      {"您已使用過此優惠碼", "You have already used this coupon"},
	CouponProductMismatch:   {"購物車中沒有適用此優惠碼的商品", "No items in your cart are eligible for this coupon"},
	CouponCategoryMismatch:  {"購物車中沒有適用此優惠碼的商品分類", "No item categories in your cart are eligible for this coupon"},
	StockProductNotFound:    {"商品不存在", "Product does not exist"},
	StockProductInactive:    {"商品「%s」已下架", "Product \"%s\" is no longer available"},
	StockInsufficient:       {"商品「%s」庫存不足，剩餘 %d 件", "Not enough stock for \"%s\", %d left"},
	StockInvalidQuantity:    {"商品數量必須大於 0", "Quantity must be greater than 0"},
	StockEmptyCart:          {"購物車是空的", "Your cart is empty"},
	StockValidationFailed:   {"部分商品無法購買", "Some items cannot be purchased"},
	OrderInvalidTransition:  {"訂單狀態無法從 %s 變更為 %s", "Invalid transition: cannot move order from %s to %s"},
	OrderNotFound:           {"找不到訂單", "Order not found"},
	OrderDuplicateSubmit:    {"訂單已送出，請勿重複提交", "This order was already submitted"},
	PaymentReserveFailed:    {"建立付款失敗：%s", "Could not start payment: %s"},
	PaymentConfirmFailed:    {"付款確認失敗：%s", "Could not confirm payment: %s"},
	PaymentNotFound:         {"找不到此訂單的付款紀錄", "No payment found for this order"},
	PaymentTxMismatch:       {"付款交易與訂單不符", "Transaction does not match this order"},
	PaymentNotLinePay:       {"此訂單未使用 LINE Pay 付款", "This order is not paid with LINE Pay"},
	PaymentNotPending:       {"訂單目前無法付款（狀態：%s）", "Order can no longer be paid (status: %s)"},
	AuthRequired:            {"請先登入", "Authentication required"},
	AuthMissingToken:        {"缺少登入憑證", "No token provided"},
	AuthInvalidToken:        {"登入憑證無效", "Invalid token"},
	AuthAdminOnly:           {"僅限管理員", "Admins only"},
	RequestInvalidBody:      {"請求內容格式錯誤", "Invalid request body"},
	RequestValidationFailed: {"欄位驗證失敗", "Validation failed"},
	SyncBusy:                {"資料更新中，請稍後再試", "Another update is in progress, retry shortly"},
	SyncCartStale:           {"購物車已在其他裝置變更，請重新整理後再儲存", "Cart was changed elsewhere, fetch and merge before saving"},
	SyncWishlistStale:       {"收藏清單已在其他裝置變更，請重新整理後再儲存", "Wishlist was changed elsewhere, fetch and merge before saving"},
	SyncBadIfMatch:          {"If-Match 必須是版本號碼", "If-Match must carry a version number"},
	CouponInvalidID:         {"優惠碼編號格式錯誤", "Invalid coupon id"},
	CouponCodeTaken:         {"優惠碼 %s 已存在", "Coupon code %s already exists"},
	CouponCodeRequired:      {"請輸入優惠碼", "Coupon code is required"},
	CouponPercentRange:      {"折扣百分比必須介於 0 到 100 之間", "Percentage discount must be between 0 and 100"},
	CouponValueRequired:     {"折扣金額必須大於 0", "Coupon value must be greater than 0"},
	CouponUnknownType:       {"未知的折扣類型", "Unknown discount type"},
	CouponInvalidDate:       {"日期格式錯誤", "Invalid date format"},
	CouponExpiryBeforeStart: {"結束時間必須晚於開始時間", "Must be after starts_at"},
	CouponLimitBelowUsed:    {"使用上限不可低於已使用次數 %d", "Usage limit cannot be lower than the %d uses already recorded"},
	ShippingNegative:        {"運費與免運門檻不可為負數", "Shipping fee and threshold must not be negative"},
	MailOrderPlacedSubject:  {"訂單 %s 已成立", "Order %s received"},
	MailOrderPlacedBody:     {"%s 您好，感謝您的訂購。訂單編號 %s，應付金額 %s 元。", "Hi %s, thanks for your order. Order number %s, total %s."},
	MailOrderShippedSubject: {"您的訂單 %s 已出貨", "Your order %s has shipped"},
	MailOrderShippedBody:    {"%s 您好，您的訂單 %s 已出貨。物流單號：%s", "Hi %s, your order %s has shipped. Tracking number: %s"},
}

var cat = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(supported[0]))
	for key, msgs := range translations {
		for i, tag := range supported {
			_ = b.SetString(tag, string(key), msgs[i])
		}
	}
	return b
}

// Translator formats messages for one language.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a translator for the closest supported match of locale.
// Unknown or empty locales fall back to Traditional Chinese.
func New(locale string) *Translator {
	tag := supported[0]
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := matcher.Match(parsed)
			if conf != language.No {
				tag = supported[idx]
			}
		}
	}
	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(cat)),
	}
}

func (t *Translator) Language() language.Tag {
	return t.tag
}

// T renders key with args.
func (t *Translator) T(key Key, args ...any) string {
	return t.printer.Sprintf(string(key), args...)
}

var std atomic.Pointer[Translator]

func init() {
	std.Store(New(""))
}

// SetDefault replaces the translator used by packages that have no translator of their own,
// such as middleware and request decoding.
func SetDefault(t *Translator) {
	std.Store(t)
}

// Default returns the process-wide translator.
func Default() *Translator {
	return std.Load()
}
