// Package notify delivers order lifecycle events to downstream consumers.
package notify

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Type names an order lifecycle event.
type Type string

const (
	OrderCreated          Type = "order.created"
	OrderStatusUpdated    Type = "order.status_updated"
	OrderCancelled        Type = "order.cancelled"
	OrderPaymentConfirmed Type = "order.payment_confirmed"
	OrderPaymentRejected  Type = "order.payment_rejected"
)

// Item is an order line as shown to the customer.
type Item struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// Address is the shipping destination included in events.
type Address struct {
	City       string
	State      string
	Country    string
	PostalCode string
}

// Event describes a change to an order.
type Event struct {
	Type          Type
	OrderID       int64
	Reference     string
	UserID        int64
	Status        string
	PaymentStatus string
	Total         decimal.Decimal
	Items         []Item
	Address       *Address
	// Reason is set for payment rejections.
	Reason     string
	OccurredAt time.Time
}

// Encode writes the event as a JSON object.
func (ev Event) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Int64(ev.OrderID) })
		e.Field("order_reference", func(e *jx.Encoder) { e.Str(ev.Reference) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(ev.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(ev.Status) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(ev.PaymentStatus) })
		e.Field("total", func(e *jx.Encoder) { e.Str(ev.Total.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range ev.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { e.Str(it.Price.StringFixed(2)) })
					})
				}
			})
		})
		if a := ev.Address; a != nil {
			e.Field("address", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
					e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
					e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
					e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
				})
			})
		}
		if ev.Reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(ev.Reason) })
		}
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format(time.RFC3339Nano)) })
	})
}

// MarshalJSON implements json.Marshaler.
func (ev Event) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	ev.Encode(&e)
	return e.Bytes(), nil
}
