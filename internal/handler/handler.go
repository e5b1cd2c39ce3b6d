// Package handler exposes the cart and order services over HTTP.
//
// Authentication happens upstream: the gateway sets X-User-ID and
// X-User-Role, and this package only enforces ownership and the admin role.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// CartService is the cart API used by the handlers.
type CartService interface {
	GetOrCreate(ctx context.Context, userID int64) (*cart.Cart, error)
	Get(ctx context.Context, userID int64) (*cart.Cart, error)
	GetItem(ctx context.Context, itemID int64) (*cart.Item, error)
	AddItem(ctx context.Context, cartID, productID int64, quantity int) (*cart.Item, error)
	AddItems(ctx context.Context, cartID int64, items []cart.LineItem) ([]cart.Item, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*cart.Item, bool, error)
	RemoveItem(ctx context.Context, itemID int64) error
	Clear(ctx context.Context, cartID int64) error
}

// OrderService is the checkout and lifecycle API used by the handlers.
type OrderService interface {
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.Order, error)
	Get(ctx context.Context, orderID int64) (*order.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status order.Status) (*order.Order, error)
	Cancel(ctx context.Context, orderID int64) (*order.Order, error)
	ConfirmPayment(ctx context.Context, orderID int64) (*order.Order, error)
	RejectPayment(ctx context.Context, orderID int64, reason string) (*order.Order, error)
	Delete(ctx context.Context, orderID int64) error
	DeleteOwn(ctx context.Context, userID, orderID int64) error
}

var (
	_ CartService  = (*cart.Service)(nil)
	_ OrderService = (*order.Service)(nil)
)

// Config holds non-dependency settings.
type Config struct {
	// TaxRate prices cart summaries. Zero means cart.DefaultTaxRate.
	TaxRate decimal.Decimal
}

// Handler serves the /api routes.
type Handler struct {
	carts   CartService
	orders  OrderService
	taxRate decimal.Decimal
}

// New creates a Handler.
func New(cfg Config, carts CartService, orders OrderService) *Handler {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = cart.DefaultTaxRate
	}
	return &Handler{
		carts:   carts,
		orders:  orders,
		taxRate: cfg.TaxRate,
	}
}

// Routes builds the API router. Paths are relative to the mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	r.Use(identify)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addItem)
		r.Post("/merge", h.mergeCart)
		r.Patch("/items/{itemID}", h.updateItem)
		r.Delete("/items/{itemID}", h.removeItem)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOwnOrders)
		r.Post("/checkout", h.checkout)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
		r.Delete("/{orderID}", h.deleteOwnOrder)
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/", h.listOrders)
		r.Patch("/{orderID}/status", h.updateStatus)
		r.Post("/{orderID}/payment/confirm", h.confirmPayment)
		r.Post("/{orderID}/payment/reject", h.rejectPayment)
		r.Delete("/{orderID}", h.deleteOrder)
	})

	return r
}

// Mount attaches the API and the probe endpoints to a root router.
func (h *Handler) Mount(root chi.Router, live, ready http.HandlerFunc) {
	root.Get("/livez", live)
	root.Get("/readyz", ready)
	root.Mount("/api", h.Routes())
}
