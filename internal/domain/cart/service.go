package cart

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// Service implements cart operations on top of a Repository. Reads of a
// user's cart go through the optional Cache; every write invalidates it.
type Service struct {
	carts    Repository
	products product.Repository
	cache    Cache
	group    singleflight.Group
}

// NewService creates a cart Service. cache may be nil.
func NewService(carts Repository, products product.Repository, cache Cache) *Service {
	return &Service{
		carts:    carts,
		products: products,
		cache:    cache,
	}
}

// GetOrCreate returns the user's cart, creating an empty one on first use.
func (s *Service) GetOrCreate(ctx context.Context, userID int64) (*Cart, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get or create cart")
	}
	return c, nil
}

// Get returns the user's cart with its lines, served from cache when possible.
// Concurrent misses for the same user share one database read.
func (s *Service) Get(ctx context.Context, userID int64) (*Cart, error) {
	if s.cache != nil {
		c, err := s.cache.Get(ctx, userID)
		switch {
		case err == nil:
			return c, nil
		case !errors.Is(err, ErrCacheMiss):
			zctx.From(ctx).Warn("Cart cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		c, err := s.carts.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, c); err != nil {
				zctx.From(ctx).Warn("Cart cache write failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return v.(*Cart), nil
}

// GetItem returns a single cart line.
func (s *Service) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	return s.carts.GetItem(ctx, itemID)
}

// AddItem adds quantity of a product to the cart. A product already in the
// cart has its quantity increased and keeps its original price.
func (s *Service) AddItem(ctx context.Context, cartID, productID int64, quantity int) (*Item, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", productID)
	}
	return s.upsert(ctx, cartID, productID, quantity, p.Price)
}

func (s *Service) upsert(ctx context.Context, cartID, productID int64, quantity int, price decimal.Decimal) (*Item, error) {
	it, err := s.carts.UpsertItem(ctx, cartID, productID, quantity, price)
	if err != nil {
		return nil, errors.Wrap(err, "upsert item")
	}
	s.Invalidate(ctx, it.UserID)
	return it, nil
}

// AddItems merges several lines into the cart. Every quantity and product is
// checked before the first line is written, so a bad line leaves the cart
// unchanged. A storage failure midway keeps the lines merged so far.
func (s *Service) AddItems(ctx context.Context, cartID int64, items []LineItem) ([]Item, error) {
	ids := make([]int64, 0, len(items))
	for _, li := range items {
		if !validQuantity(li.Quantity) {
			return nil, ErrInvalidQuantity
		}
		ids = append(ids, li.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	prices := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}
	for _, li := range items {
		if _, ok := prices[li.ProductID]; !ok {
			return nil, errors.Wrapf(product.ErrNotFound, "get product %d", li.ProductID)
		}
	}

	out := make([]Item, 0, len(items))
	for _, li := range items {
		it, err := s.upsert(ctx, cartID, li.ProductID, li.Quantity, prices[li.ProductID])
		if err != nil {
			return out, err
		}
		out = append(out, *it)
	}
	return out, nil
}

// UpdateItemQuantity sets the line quantity. A quantity of zero or less
// removes the line and reports removed.
func (s *Service) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (it *Item, removed bool, err error) {
	if quantity <= 0 {
		it, err = s.carts.DeleteItem(ctx, itemID)
		if err != nil {
			return nil, false, errors.Wrap(err, "delete item")
		}
		s.Invalidate(ctx, it.UserID)
		return it, true, nil
	}
	if quantity > MaxQuantity {
		return nil, false, ErrInvalidQuantity
	}
	it, err = s.carts.SetItemQuantity(ctx, itemID, quantity)
	if err != nil {
		return nil, false, errors.Wrap(err, "set item quantity")
	}
	s.Invalidate(ctx, it.UserID)
	return it, false, nil
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, itemID int64) error {
	it, err := s.carts.DeleteItem(ctx, itemID)
	if err != nil {
		return errors.Wrap(err, "delete item")
	}
	s.Invalidate(ctx, it.UserID)
	return nil
}

// Clear removes all lines from the cart.
func (s *Service) Clear(ctx context.Context, cartID int64) error {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return errors.Wrap(err, "get cart")
	}
	if err := s.carts.Clear(ctx, cartID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	s.Invalidate(ctx, c.UserID)
	return nil
}

// Invalidate drops the cached cart of a user. Failures are logged only.
func (s *Service) Invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Cart cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
