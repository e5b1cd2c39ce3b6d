package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

const (
	getPaymentOptionSQL = `SELECT id, name, provider, account_name, account_number, is_active
		FROM payment_options WHERE id = $1`

	insertPaymentOptionSQL = `INSERT INTO payment_options (name, provider, account_name, account_number, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository reads payment options.
type PaymentRepository struct {
	conn
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{conn{pool: pool}}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Method, error) {
	var m payment.Method
	err := r.q(ctx).QueryRow(ctx, getPaymentOptionSQL, id).Scan(
		&m.ID, &m.Name, &m.Provider, &m.AccountName, &m.AccountNumber, &m.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get payment option %d", id)
	}
	return &m, nil
}

func (r *PaymentRepository) GetActiveByID(ctx context.Context, id int64) (*payment.Method, error) {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, payment.ErrNotFound
	}
	return m, nil
}

// Create inserts m and fills its ID.
func (r *PaymentRepository) Create(ctx context.Context, m *payment.Method) error {
	err := r.q(ctx).QueryRow(ctx, insertPaymentOptionSQL,
		m.Name, m.Provider, m.AccountName, m.AccountNumber, m.Active,
	).Scan(&m.ID)
	if err != nil {
		return errors.Wrap(err, "create payment option")
	}
	return nil
}
