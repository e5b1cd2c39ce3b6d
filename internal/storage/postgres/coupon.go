package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	findActiveCouponsSQL = `SELECT id, code, discount_percent, valid_from, valid_to, active
		FROM coupons WHERE id = ANY($1) AND active`

	insertCouponSQL = `INSERT INTO coupons (code, discount_percent, valid_from, valid_to, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO NOTHING`

	upsertCouponSQL = `INSERT INTO coupons (code, discount_percent, valid_from, valid_to, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			discount_percent = EXCLUDED.discount_percent,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			active = EXCLUDED.active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	conn
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{conn{pool: pool}}
}

// FindActiveByIDs returns active coupons in the order of ids. Window checks
// are left to coupon.Evaluate.
func (r *CouponRepository) FindActiveByIDs(ctx context.Context, ids []int64) ([]coupon.Coupon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.q(ctx).Query(ctx, findActiveCouponsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}
	found, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}

	byID := make(map[int64]coupon.Coupon, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]coupon.Coupon, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out, nil
}

// InsertBatch inserts coupons whose code is not yet known and reports how
// many rows were added.
func (r *CouponRepository) InsertBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	return r.batch(ctx, insertCouponSQL, coupons)
}

// Upsert inserts or overwrites coupons by code.
func (r *CouponRepository) Upsert(ctx context.Context, coupons []coupon.Coupon) error {
	_, err := r.batch(ctx, upsertCouponSQL, coupons)
	return err
}

func (r *CouponRepository) batch(ctx context.Context, query string, coupons []coupon.Coupon) (int64, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, c := range coupons {
		b.Queue(query, c.Code, c.DiscountPercent, c.ValidFrom, c.ValidTo, c.Active)
	}

	br := r.q(ctx).SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var affected int64
	for _, c := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return affected, errors.Wrapf(err, "write coupon %s", c.Code)
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return affected, errors.Wrap(err, "close batch")
	}
	return affected, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.ValidFrom, &c.ValidTo, &c.Active)
	return c, err
}
