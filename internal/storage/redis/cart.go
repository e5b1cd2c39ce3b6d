// Package redis caches rendered carts in Redis.
package redis

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var _ cart.Cache = (*CartCache)(nil)

// CartCache stores carts as JSON under cart:<user id>. Entries expire after
// the base TTL plus up to a minute of jitter.
type CartCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func NewCartCache(client redis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CartCache{client: client, baseTTL: ttl}
}

func (c *CartCache) Get(ctx context.Context, userID int64) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	out, err := decodeCart(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return out, nil
}

func (c *CartCache) Set(ctx context.Context, v *cart.Cart) error {
	ttl := c.baseTTL + time.Duration(rand.Int64N(int64(time.Minute)))
	if err := c.client.Set(ctx, cacheKey(v.UserID), encodeCart(v), ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (c *CartCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func cacheKey(userID int64) string {
	return "cart:" + strconv.FormatInt(userID, 10)
}

func encodeCart(c *cart.Cart) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(c.UserID) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(c.CreatedAt.Format(time.RFC3339Nano)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range c.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price_at_addition", func(e *jx.Encoder) { e.Str(it.PriceAtAddition.String()) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

func decodeCart(data []byte) (*cart.Cart, error) {
	var c cart.Cart
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "user_id":
			c.UserID, err = d.Int64()
		case "created_at":
			var s string
			if s, err = d.Str(); err == nil {
				c.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range c.Items {
		c.Items[i].CartID = c.ID
		c.Items[i].UserID = c.UserID
	}
	return &c, nil
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var it cart.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			it.ID, err = d.Int64()
		case "product_id":
			it.ProductID, err = d.Int64()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price_at_addition":
			var s string
			if s, err = d.Str(); err == nil {
				it.PriceAtAddition, err = decimal.NewFromString(s)
			}
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}
