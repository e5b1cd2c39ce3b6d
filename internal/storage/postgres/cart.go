package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

const (
	createCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`

	getCartByUserSQL = `SELECT id, user_id, created_at FROM carts WHERE user_id = $1`

	getCartByIDSQL = `SELECT id, user_id, created_at FROM carts WHERE id = $1`

	// Holding the cart row blocks new lines: their foreign key check needs a
	// share lock on it.
	lockCartByUserSQL = getCartByUserSQL + ` FOR UPDATE`

	cartItemColumns = `ci.id, ci.cart_id, c.user_id, ci.product_id, ci.quantity, ci.price_at_addition`

	listCartItemsSQL = `SELECT ` + cartItemColumns + `
		FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		WHERE ci.cart_id = $1 ORDER BY ci.id`

	lockCartItemsSQL = listCartItemsSQL + ` FOR UPDATE OF ci`

	getCartItemSQL = `SELECT ` + cartItemColumns + `
		FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		WHERE ci.id = $1`

	// The stored price is kept on conflict.
	upsertCartItemSQL = `WITH upserted AS (
			INSERT INTO cart_items (cart_id, product_id, quantity, price_at_addition)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING id, cart_id, product_id, quantity, price_at_addition
		)
		SELECT ci.id, ci.cart_id, c.user_id, ci.product_id, ci.quantity, ci.price_at_addition
		FROM upserted ci JOIN carts c ON c.id = ci.cart_id`

	setCartItemQuantitySQL = `UPDATE cart_items ci SET quantity = $2
		FROM carts c
		WHERE ci.id = $1 AND c.id = ci.cart_id
		RETURNING ` + cartItemColumns

	deleteCartItemSQL = `DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $1 AND c.id = ci.cart_id
		RETURNING ` + cartItemColumns

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	conn
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{conn{pool: pool}}
}

// GetOrCreate relies on the unique user_id constraint so concurrent callers
// end up with the same cart.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID int64) (*cart.Cart, error) {
	if _, err := r.q(ctx).Exec(ctx, createCartSQL, userID); err != nil {
		return nil, errors.Wrapf(err, "create cart for user %d", userID)
	}
	return r.GetByUser(ctx, userID)
}

func (r *CartRepository) GetByUser(ctx context.Context, userID int64) (*cart.Cart, error) {
	return r.get(ctx, getCartByUserSQL, listCartItemsSQL, userID)
}

// GetByUserForUpdate reads the user's cart and row-locks it together with its
// lines until the surrounding transaction ends. Concurrent checkouts of the
// same cart are serialized and see the cart as the previous one left it.
func (r *CartRepository) GetByUserForUpdate(ctx context.Context, userID int64) (*cart.Cart, error) {
	return r.get(ctx, lockCartByUserSQL, lockCartItemsSQL, userID)
}

func (r *CartRepository) GetByID(ctx context.Context, cartID int64) (*cart.Cart, error) {
	return r.get(ctx, getCartByIDSQL, listCartItemsSQL, cartID)
}

func (r *CartRepository) get(ctx context.Context, query, itemsQuery string, arg int64) (*cart.Cart, error) {
	var (
		c         cart.Cart
		createdAt time.Time
	)
	err := r.q(ctx).QueryRow(ctx, query, arg).Scan(&c.ID, &c.UserID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	c.CreatedAt = createdAt

	rows, err := r.q(ctx).Query(ctx, itemsQuery, c.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of cart %d", c.ID)
	}
	if c.Items, err = pgx.CollectRows(rows, scanCartItem); err != nil {
		return nil, errors.Wrapf(err, "list items of cart %d", c.ID)
	}
	return &c, nil
}

func (r *CartRepository) GetItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	return r.itemQuery(ctx, getCartItemSQL, itemID)
}

func (r *CartRepository) UpsertItem(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*cart.Item, error) {
	it, err := r.itemQuery(ctx, upsertCartItemSQL, cartID, productID, quantity, price)
	switch {
	case isFKViolation(err, "cart_items_cart_id_fkey"):
		return nil, cart.ErrNotFound
	case isFKViolation(err, "cart_items_product_id_fkey"):
		return nil, product.ErrNotFound
	case isOutOfRange(err):
		return nil, cart.ErrInvalidQuantity
	}
	return it, err
}

func (r *CartRepository) SetItemQuantity(ctx context.Context, itemID int64, quantity int) (*cart.Item, error) {
	it, err := r.itemQuery(ctx, setCartItemQuantitySQL, itemID, quantity)
	if isOutOfRange(err) {
		return nil, cart.ErrInvalidQuantity
	}
	return it, err
}

func (r *CartRepository) DeleteItem(ctx context.Context, itemID int64) (*cart.Item, error) {
	return r.itemQuery(ctx, deleteCartItemSQL, itemID)
}

func (r *CartRepository) Clear(ctx context.Context, cartID int64) error {
	if _, err := r.q(ctx).Exec(ctx, clearCartSQL, cartID); err != nil {
		return errors.Wrapf(err, "clear cart %d", cartID)
	}
	return nil
}

func (r *CartRepository) itemQuery(ctx context.Context, query string, args ...any) (*cart.Item, error) {
	rows, err := r.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query cart item")
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.CartID, &it.UserID, &it.ProductID, &it.Quantity, &it.PriceAtAddition)
	return it, err
}
