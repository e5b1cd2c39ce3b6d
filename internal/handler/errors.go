package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// writeDomainError maps service errors to HTTP statuses. Anything unknown is
// logged and reported as 500 without details.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *stock.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
				e.Field("message", func(e *jx.Encoder) { e.Str(stockErr.Error()) })
				e.Field("product_id", func(e *jx.Encoder) { e.Int64(stockErr.ProductID) })
				e.Field("available", func(e *jx.Encoder) { e.Int(stockErr.Available) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(stockErr.Requested) })
			})
		})
		return
	}

	var pnf *order.ProductNotFoundError
	switch {
	case errors.As(err, &pnf):
		writeError(w, http.StatusNotFound, pnf.Error())
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrAddressNotFound),
		errors.Is(err, order.ErrPaymentMethodNotFound):
		writeError(w, http.StatusNotFound, rootMessage(err))
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, order.ErrNotManualPayment):
		writeError(w, http.StatusUnprocessableEntity, rootMessage(err))
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, rootMessage(err))
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// rootMessage strips wrapping context so internal ids and query names do not
// leak to clients.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
