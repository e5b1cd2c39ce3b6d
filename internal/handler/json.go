package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid JSON body")

// decodeBody walks the top-level object of the request body, calling field
// for every key.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 512)
	if err := d.Obj(field); err != nil {
		return errBadBody
	}
	return nil
}

func decodeInt64s(d *jx.Decoder) ([]int64, error) {
	var out []int64
	err := d.Arr(func(d *jx.Decoder) error {
		v, err := d.Int64()
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid %s", name)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeCart(e *jx.Encoder, c *cart.Cart, taxRate decimal.Decimal) {
	s := cart.RenderSummary(c, taxRate)
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(c.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range s.Items {
					encodeCartItem(e, &it)
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, s.Subtotal) })
		e.Field("tax", func(e *jx.Encoder) { money(e, s.Tax) })
		e.Field("total", func(e *jx.Encoder) { money(e, s.Total) })
	})
}

func encodeCartItem(e *jx.Encoder, it *cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
		e.Field("cart_id", func(e *jx.Encoder) { e.Int64(it.CartID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("price_at_addition", func(e *jx.Encoder) { money(e, it.PriceAtAddition) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("order_reference", func(e *jx.Encoder) { e.Str(o.Reference) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("address_id", func(e *jx.Encoder) { e.Int64(o.AddressID) })
		e.Field("payment_method_id", func(e *jx.Encoder) { e.Int64(o.PaymentMethodID) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethod) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("tax", func(e *jx.Encoder) { money(e, o.Tax) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total", func(e *jx.Encoder) { money(e, o.Total) })
		e.Field("coupon_ids", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range o.CouponIDs {
					e.Int64(id)
				}
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
						e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { money(e, it.Price) })
					})
				}
			})
		})
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
		if o.ShippedAt != nil {
			e.Field("shipped_at", func(e *jx.Encoder) { timestamp(e, *o.ShippedAt) })
		}
		if o.DeliveredAt != nil {
			e.Field("delivered_at", func(e *jx.Encoder) { timestamp(e, *o.DeliveredAt) })
		}
	})
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
	})
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
