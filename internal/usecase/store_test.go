package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"teahouse-backend/internal/domain"
	cacheinfra "teahouse-backend/internal/infrastructure/cache"
	"teahouse-backend/pkg/i18n"
)

// memStore backs the stub repositories. memTx serialises transactions and
// restores a snapshot when fn fails, which is enough to observe rollbacks.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	history  []domain.OrderHistory
	coupons  map[string]domain.Coupon
	usages   map[string]domain.CouponUsage
	tasks    []domain.FollowUpTask
	payments map[string]domain.Payment

	createOrderErrs []error
	settings        *domain.ShippingSettings
	profiles        map[string]domain.Profile
}

type memSnapshot struct {
	products map[string]domain.Product
	orders   map[string]domain.Order
	history  []domain.OrderHistory
	coupons  map[string]domain.Coupon
	usages   map[string]domain.CouponUsage
	tasks    []domain.FollowUpTask
	payments map[string]domain.Payment
}

func newMemStore() *memStore {
	return &memStore{
		products: map[string]domain.Product{},
		orders:   map[string]domain.Order{},
		coupons:  map[string]domain.Coupon{},
		usages:   map[string]domain.CouponUsage{},
		payments: map[string]domain.Payment{},
		profiles: map[string]domain.Profile{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		products: copyMap(s.products),
		orders:   copyMap(s.orders),
		history:  append([]domain.OrderHistory(nil), s.history...),
		coupons:  copyMap(s.coupons),
		usages:   copyMap(s.usages),
		tasks:    append([]domain.FollowUpTask(nil), s.tasks...),
		payments: copyMap(s.payments),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.orders = snap.orders
	s.history = snap.history
	s.coupons = snap.coupons
	s.usages = snap.usages
	s.tasks = snap.tasks
	s.payments = snap.payments
}

func (s *memStore) addProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *memStore) product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) addCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.ID] = c
}

func (s *memStore) coupon(id string) domain.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[id]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) taskKinds(orderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []string
	for _, t := range s.tasks {
		if t.OrderID == orderID {
			kinds = append(kinds, t.Kind)
		}
	}
	sort.Strings(kinds)
	return kinds
}

type memTx struct{ s *memStore }

func (tx memTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.s.txMu.Lock()
	defer tx.s.txMu.Unlock()
	snap := tx.s.snapshot()
	if err := fn(ctx); err != nil {
		tx.s.restore(snap)
		return err
	}
	return nil
}

// --- products ---

type memProducts struct{ s *memStore }

func (r memProducts) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			p := p
			out[id] = &p
		}
	}
	return out, nil
}

func (r memProducts) DecrementStock(_ context.Context, id string, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || !p.IsActive || p.Stock < qty {
		return domain.ErrInsufficientStock
	}
	p.Stock -= qty
	r.s.products[id] = p
	return nil
}

func (r memProducts) RestoreStock(_ context.Context, id string, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.products[id]
	p.Stock += qty
	r.s.products[id] = p
	return nil
}

// --- orders ---

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.createOrderErrs) > 0 {
		err := r.s.createOrderErrs[0]
		r.s.createOrderErrs = r.s.createOrderErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range r.s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return domain.ErrDuplicateOrderNo
		}
	}
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrders) get(pred func(domain.Order) bool) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if pred(o) {
			o := o
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	return r.get(func(o domain.Order) bool { return o.ID == id })
}

func (r memOrders) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	return r.get(func(o domain.Order) bool { return o.OrderNumber == number })
}

func (r memOrders) GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) List(_ context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Order
	for _, o := range r.s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out, int64(len(out)), nil
}

func (r memOrders) ApplyStatus(_ context.Context, id string, c domain.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	applyChange(&o, c, time.Now())
	r.s.orders[id] = o
	return nil
}

func (r memOrders) CreateHistory(_ context.Context, h *domain.OrderHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.history = append(r.s.history, *h)
	return nil
}

func (r memOrders) GetHistory(_ context.Context, orderID string) ([]domain.OrderHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.OrderHistory
	for _, h := range r.s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// --- coupons ---

type memCoupons struct{ s *memStore }

func (r memCoupons) Create(_ context.Context, c *domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.coupons {
		if existing.Code == c.Code {
			return domain.ErrAlreadyExists
		}
	}
	r.s.coupons[c.ID] = *c
	return nil
}

func (r memCoupons) Update(_ context.Context, c *domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.coupons[c.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.coupons[c.ID] = *c
	return nil
}

func (r memCoupons) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.coupons, id)
	return nil
}

func (r memCoupons) GetByID(_ context.Context, id string) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r memCoupons) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.coupons {
		if c.Code == code {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memCoupons) List(_ context.Context, limit, offset int) ([]domain.Coupon, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Coupon
	for _, c := range r.s.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r memCoupons) CountUsagesByUser(_ context.Context, couponID, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, u := range r.s.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r memCoupons) LockByID(ctx context.Context, id string) (*domain.Coupon, error) {
	return r.GetByID(ctx, id)
}

func (r memCoupons) IncrementUsage(_ context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.coupons[id]
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return c.UsedCount, domain.ErrCouponExhausted
	}
	c.UsedCount++
	r.s.coupons[id] = c
	return c.UsedCount, nil
}

func (r memCoupons) InsertUsage(_ context.Context, u *domain.CouponUsage) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.usages[u.OrderID]; ok {
		return false, nil
	}
	r.s.usages[u.OrderID] = *u
	return true, nil
}

func (r memCoupons) DeleteUsageByOrder(_ context.Context, orderID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.usages[orderID]
	if !ok {
		return false, nil
	}
	delete(r.s.usages, orderID)
	c := r.s.coupons[u.CouponID]
	c.UsedCount--
	r.s.coupons[u.CouponID] = c
	return true, nil
}

// --- tasks ---

type memTasks struct{ s *memStore }

func (r memTasks) Enqueue(_ context.Context, t *domain.FollowUpTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tasks {
		if existing.Kind == t.Kind && existing.OrderID == t.OrderID {
			return nil
		}
	}
	r.s.tasks = append(r.s.tasks, *t)
	return nil
}

func (r memTasks) ClaimDue(context.Context, int, time.Time, time.Duration) ([]domain.FollowUpTask, error) {
	return nil, nil
}

func (r memTasks) MarkDone(context.Context, string, time.Time) error          { return nil }
func (r memTasks) MarkRetry(context.Context, string, string, time.Time) error { return nil }
func (r memTasks) MarkDead(context.Context, string, string) error             { return nil }

// --- payments ---

type memPayments struct{ s *memStore }

func (r memPayments) Create(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.CreatedAt = time.Now()
	r.s.payments[p.ID] = *p
	return nil
}

func (r memPayments) Update(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[p.ID] = *p
	return nil
}

func (r memPayments) GetLatestByOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.Payment
	for _, p := range r.s.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			p := p
			latest = &p
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// --- settings and profiles ---

type memSettings struct{ s *memStore }

func (r memSettings) GetShipping(context.Context) (*domain.ShippingSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.settings == nil {
		return nil, domain.ErrNotFound
	}
	s := *r.s.settings
	return &s, nil
}

func (r memSettings) SaveShipping(_ context.Context, s *domain.ShippingSettings) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	saved := *s
	r.s.settings = &saved
	return nil
}

type memProfiles struct{ s *memStore }

func (r memProfiles) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r memProfiles) SaveCheckoutDetails(_ context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.profiles[p.ID] = *p
	return nil
}

// --- gateway and idempotency ---

type stubGateway struct {
	mu         sync.Mutex
	reserveErr error
	confirmErr error
	reserved   []domain.PaymentReservation
	confirmed  []string
}

func (g *stubGateway) Reserve(_ context.Context, req domain.PaymentReservation) (*domain.ReservationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserved = append(g.reserved, req)
	if g.reserveErr != nil {
		return nil, g.reserveErr
	}
	return &domain.ReservationResult{
		TransactionID: "2025010100000000001",
		PaymentURL:    "https://pay.example/" + req.OrderNumber,
		Raw:           domain.RawJSON(`{"returnCode":"0000"}`),
	}, nil
}

func (g *stubGateway) Confirm(_ context.Context, txID string, _ int64, _ string) (*domain.ConfirmationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	g.confirmed = append(g.confirmed, txID)
	return &domain.ConfirmationResult{TransactionID: txID}, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdempotency) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotency) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// --- wiring ---

type testEnv struct {
	store    *memStore
	gateway  *stubGateway
	idem     *memIdempotency
	orders   *OrderUsecase
	status   *OrderStatusService
	payments *PaymentUsecase
	tr       *i18n.Translator
}

const (
	greenTeaID  = "0b4f5b1e-8a53-4c55-9d33-6f5b7e0c0001"
	oolongID    = "0b4f5b1e-8a53-4c55-9d33-6f5b7e0c0002"
	teaCategory = "7d1f0000-0000-4000-8000-000000000001"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := newMemStore()
	cat := teaCategory
	s.addProduct(domain.Product{ID: greenTeaID, CategoryID: &cat, Title: "Green Tea", Price: 500, Stock: 10, IsActive: true})
	s.addProduct(domain.Product{ID: oolongID, CategoryID: &cat, Title: "Oolong", Price: 800, Stock: 5, IsActive: true})

	tr := i18n.New("en")
	gw := &stubGateway{}
	idem := &memIdempotency{}
	tx := memTx{s}
	orders, products, coupons, tasks := memOrders{s}, memProducts{s}, memCoupons{s}, memTasks{s}

	stock := NewStockValidator(products, tr)
	recorder := NewCouponRecorder(coupons, tr)
	status := NewOrderStatusService(tx, orders, products, tasks, recorder, tr, nil)
	payments := NewPaymentUsecase(memPayments{s}, orders, gw, status, tr, nil, "TWD", PaymentURLs{
		Confirm: "https://api.example/api/v1/payments/linepay/confirm",
		Cancel:  "https://api.example/api/v1/payments/linepay/cancel",
	})
	settings := NewSettingsService(memSettings{s}, cacheinfra.NewMemoryCache(time.Minute, time.Minute), time.Minute,
		domain.ShippingSettings{FlatFee: 100, FreeThreshold: 1500})

	uc := NewOrderUsecase(OrderUsecaseParams{
		Orders:         orders,
		Profiles:       memProfiles{s},
		Tasks:          tasks,
		Stock:          stock,
		Coupons:        NewCouponValidator(coupons, tr, nil),
		Settings:       settings,
		Writer:         NewOrderWriter(tx, orders, products, tasks, recorder, stock),
		Status:         status,
		Payments:       payments,
		Idempotency:    idem,
		IdempotencyTTL: time.Hour,
		Translator:     tr,
	})
	return &testEnv{store: s, gateway: gw, idem: idem, orders: uc, status: status, payments: payments, tr: tr}
}

func checkoutRequest(method string, items ...LineRequest) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerName:  "Lin Mei",
		CustomerEmail: "mei@example.com",
		CustomerPhone: "0912345678",
		ShippingAddress: domain.ShippingAddress{
			City:         "Taipei",
			District:     "Da'an",
			AddressLine1: "No. 1, Section 1, Roosevelt Rd",
		},
		PaymentMethod: method,
		Items:         items,
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
