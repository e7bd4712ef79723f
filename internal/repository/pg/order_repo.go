package pgrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"teahouse-backend/internal/domain"
)

const orderNumberConstraint = "orders_order_number_key"

const orderColumns = `id::text, order_number, user_id::text, customer_name, customer_email, customer_phone,
	shipping_address, payment_method, shipping_method, status, payment_status,
	subtotal, discount_amount, shipping_fee, total, coupon_id::text, coupon_code, note, tracking_number,
	paid_at, shipped_at, completed_at, cancelled_at, created_at, updated_at`

type orderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) domain.OrderRepository {
	return &orderRepository{db: db}
}

// --- Mappers ---

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                      domain.Order
		address                                []byte
		subtotal, discount, shippingFee, total pgtype.Numeric
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&address, &o.PaymentMethod, &o.ShippingMethod, &o.Status, &o.PaymentStatus,
		&subtotal, &discount, &shippingFee, &total, &o.CouponID, &o.CouponCode, &o.Note, &o.TrackingNumber,
		&o.PaidAt, &o.ShippedAt, &o.CompletedAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("decode shipping address of %s: %w", o.OrderNumber, err)
		}
	}
	o.Subtotal = numericToFloat64(subtotal)
	o.DiscountAmount = numericToFloat64(discount)
	o.ShippingFee = numericToFloat64(shippingFee)
	o.Total = numericToFloat64(total)
	o.Items = []domain.OrderItem{}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	db := conn(ctx, r.db)
	err = db.QueryRow(ctx, `
		INSERT INTO orders (id, order_number, user_id, customer_name, customer_email, customer_phone,
			shipping_address, payment_method, shipping_method, status, payment_status,
			subtotal, discount_amount, shipping_fee, total, coupon_id, coupon_code, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`,
		order.ID, order.OrderNumber, order.UserID, order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		address, order.PaymentMethod, order.ShippingMethod, order.Status, order.PaymentStatus,
		float64ToNumeric(order.Subtotal), float64ToNumeric(order.DiscountAmount),
		float64ToNumeric(order.ShippingFee), float64ToNumeric(order.Total),
		order.CouponID, order.CouponCode, order.Note,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return domain.ErrDuplicateOrderNo
		}
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (id, order_id, product_id, title, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, order.ID, item.ProductID, item.Title,
			float64ToNumeric(item.UnitPrice), item.Quantity, float64ToNumeric(item.LineTotal))
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if !isValidUUID(id) {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	if !isValidUUID(id) {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFound(err)
	}
	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// attachItems loads the items of all orders with one query.
func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, order_id::text, product_id::text, title, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY title, id`, ids)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      domain.OrderItem
			unitPrice pgtype.Numeric
			lineTotal pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Title, &unitPrice, &item.Quantity, &lineTotal); err != nil {
			return err
		}
		item.UnitPrice = numericToFloat64(unitPrice)
		item.LineTotal = numericToFloat64(lineTotal)
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// --- Listing ---

// orderListWhere builds the WHERE clause shared by List and its count.
func orderListWhere(filter domain.OrderFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(order_number ILIKE $%[1]d OR customer_name ILIKE $%[1]d OR customer_email ILIKE $%[1]d)",
			"%"+escapeLike(s)+"%")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.PerPage
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	if filter.UserID != "" && !isValidUUID(filter.UserID) {
		return []domain.Order{}, 0, nil
	}

	where, args := orderListWhere(filter)
	db := conn(ctx, r.db)

	var count int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	rows, err := db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	ptrs := make([]*domain.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	result := make([]domain.Order, len(ptrs))
	for i, o := range ptrs {
		result[i] = *o
	}
	return result, count, nil
}

// --- Status ---

// ApplyStatus writes a planned transition. The current status must still equal change.From.
func (r *orderRepository) ApplyStatus(ctx context.Context, orderID string, change domain.StatusChange) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE orders SET
			status = $2,
			payment_status = $3,
			tracking_number = COALESCE($4, tracking_number),
			paid_at = COALESCE($5, paid_at),
			shipped_at = COALESCE($6, shipped_at),
			completed_at = COALESCE($7, completed_at),
			cancelled_at = COALESCE($8, cancelled_at),
			updated_at = now()
		WHERE id = $1 AND status = $9`,
		orderID, change.To, change.PaymentStatus, change.TrackingNumber,
		change.PaidAt, change.ShippedAt, change.CompletedAt, change.CancelledAt, change.From)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *orderRepository) CreateHistory(ctx context.Context, history *domain.OrderHistory) error {
	return conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO order_status_history (id, order_id, previous_status, new_status, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		history.ID, history.OrderID, history.PreviousStatus, history.NewStatus, history.Note, history.CreatedBy,
	).Scan(&history.CreatedAt)
}

func (r *orderRepository) GetHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	if !isValidUUID(orderID) {
		return []domain.OrderHistory{}, nil
	}
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id::text, order_id::text, previous_status, new_status, note, created_by::text, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.OrderHistory{}
	for rows.Next() {
		var h domain.OrderHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.PreviousStatus, &h.NewStatus, &h.Note, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}
