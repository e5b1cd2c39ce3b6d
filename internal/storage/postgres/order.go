package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (order_reference, user_id, address_id, payment_option_id, payment_method,
			status, payment_status, subtotal, tax_amount, discount_amount, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	orderColumns = `id, order_reference, user_id, address_id, payment_option_id, payment_method,
		status, payment_status, subtotal, tax_amount, discount_amount, total_amount,
		created_at, shipped_at, delivered_at`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`
	listOrdersByUserSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY id DESC`
	listOrdersSQL        = `SELECT ` + orderColumns + ` FROM orders ORDER BY id DESC`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	listOrderCouponsSQL = `SELECT order_id, coupon_id
		FROM order_coupons WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderSQL = `UPDATE orders
		SET status = $2, payment_status = $3, shipped_at = $4, delivered_at = $5
		WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	conn
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{conn{pool: pool}}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.q(ctx).QueryRow(ctx, createOrderSQL,
		o.Reference, o.UserID, o.AddressID, o.PaymentMethodID, o.PaymentMethod,
		string(o.Status), string(o.PaymentStatus),
		o.Subtotal, o.Tax, o.Discount, o.Total,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "create order %s", o.Reference)
	}
	return nil
}

// AddItems bulk-inserts order lines with COPY.
func (r *OrderRepository) AddItems(ctx context.Context, orderID int64, items []order.Item) error {
	_, err := r.q(ctx).CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "product_name", "quantity", "price"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{orderID, it.ProductID, it.ProductName, it.Quantity, it.Price}, nil
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "add items to order %d", orderID)
	}
	return nil
}

func (r *OrderRepository) AttachCoupons(ctx context.Context, orderID int64, couponIDs []int64) error {
	_, err := r.q(ctx).CopyFrom(ctx,
		pgx.Identifier{"order_coupons"},
		[]string{"order_id", "coupon_id", "position"},
		pgx.CopyFromSlice(len(couponIDs), func(i int) ([]any, error) {
			return []any{orderID, couponIDs[i], i}, nil
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "attach coupons to order %d", orderID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetForUpdate must be called inside a transaction for the lock to matter.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return r.getOne(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return r.list(ctx, listOrdersByUserSQL, userID)
}

func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, listOrdersSQL)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.q(ctx).Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.ShippedAt, o.DeliveredAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update order %d", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes the order; items and coupon links cascade.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q(ctx).Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) getOne(ctx context.Context, query string, id int64) (*order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	orders := []order.Order{o}
	if err := r.loadDetails(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if err := r.loadDetails(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadDetails fills items and coupon ids of orders with one query each.
func (r *OrderRepository) loadDetails(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	idx := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		idx[o.ID] = i
	}

	rows, err := r.q(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	for _, it := range items {
		o := &orders[idx[it.OrderID]]
		o.Items = append(o.Items, it)
	}

	rows, err = r.q(ctx).Query(ctx, listOrderCouponsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order coupons")
	}
	var orderID, couponID int64
	_, err = pgx.ForEachRow(rows, []any{&orderID, &couponID}, func() error {
		o := &orders[idx[orderID]]
		o.CouponIDs = append(o.CouponIDs, couponID)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "list order coupons")
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentStatus string
		shippedAt     *time.Time
		deliveredAt   *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Reference, &o.UserID, &o.AddressID, &o.PaymentMethodID, &o.PaymentMethod,
		&status, &paymentStatus, &o.Subtotal, &o.Tax, &o.Discount, &o.Total,
		&o.CreatedAt, &shippedAt, &deliveredAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.ShippedAt = shippedAt
	o.DeliveredAt = deliveredAt
	return o, err
}
