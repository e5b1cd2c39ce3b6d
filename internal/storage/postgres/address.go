package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/address"
)

const (
	getAddressSQL = `SELECT id, user_id, address_line, city, state, country, postal_code, phone_number
		FROM addresses WHERE id = $1`

	insertAddressSQL = `INSERT INTO addresses (user_id, address_line, city, state, country, postal_code, phone_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	conn
}

func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{conn{pool: pool}}
}

func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*address.Address, error) {
	var a address.Address
	err := r.q(ctx).QueryRow(ctx, getAddressSQL, id).Scan(
		&a.ID, &a.UserID, &a.Line, &a.City, &a.State, &a.Country, &a.PostalCode, &a.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get address %d", id)
	}
	return &a, nil
}

// Create inserts a and fills its ID.
func (r *AddressRepository) Create(ctx context.Context, a *address.Address) error {
	err := r.q(ctx).QueryRow(ctx, insertAddressSQL,
		a.UserID, a.Line, a.City, a.State, a.Country, a.PostalCode, a.PhoneNumber,
	).Scan(&a.ID)
	if err != nil {
		return errors.Wrap(err, "create address")
	}
	return nil
}
