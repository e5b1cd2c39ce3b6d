package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

const (
	getProductByIDSQL = `SELECT id, name, price, stock
		FROM products WHERE id = $1 AND is_active`

	getProductsByIDsSQL = `SELECT id, name, price, stock
		FROM products WHERE id = ANY($1) AND is_active ORDER BY id`

	deductStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	getStockSQL = `SELECT name, stock FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ stock.Ledger       = (*ProductRepository)(nil)
)

// ProductRepository reads the catalog and owns the stock column.
type ProductRepository struct {
	conn
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{conn{pool: pool}}
}

// GetByID returns a single active product.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.q(ctx).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// GetByIDs returns the active products among ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.q(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// CheckAvailability compares the current stock with quantity.
func (r *ProductRepository) CheckAvailability(ctx context.Context, productID int64, quantity int) error {
	var (
		name      string
		available int
	)
	if err := r.q(ctx).QueryRow(ctx, getStockSQL, productID).Scan(&name, &available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "get stock of product %d", productID)
	}
	return stock.Check(productID, name, available, quantity)
}

// Deduct subtracts quantity in a single conditional update. When the row is
// not updated the current stock is read back to report why.
func (r *ProductRepository) Deduct(ctx context.Context, productID int64, quantity int) error {
	tag, err := r.q(ctx).Exec(ctx, deductStockSQL, productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "deduct stock of product %d", productID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if err := r.CheckAvailability(ctx, productID, quantity); err != nil {
		return err
	}
	// Stock was replenished between the update and the read.
	return &stock.InsufficientStockError{ProductID: productID, Requested: quantity}
}

// Restore adds quantity back to the product's stock.
func (r *ProductRepository) Restore(ctx context.Context, productID int64, quantity int) error {
	tag, err := r.q(ctx).Exec(ctx, restoreStockSQL, productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "restore stock of product %d", productID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Create inserts p and fills its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	if err := r.q(ctx).QueryRow(ctx, insertProductSQL, p.Name, p.Price, p.Stock).Scan(&p.ID); err != nil {
		return errors.Wrapf(err, "create product %q", p.Name)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &price, &p.Stock)
	p.Price = price
	return p, err
}
