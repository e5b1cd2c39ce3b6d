package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	req := order.CheckoutRequest{UserID: identityFrom(r.Context()).UserID}
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "address_id":
			req.AddressID, err = d.Int64()
		case "payment_method_id":
			req.PaymentMethodID, err = d.Int64()
		case "coupon_ids":
			req.CouponIDs, err = decodeInt64s(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.orders.Checkout(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	h.respondOrder(w, r)(h.orders.Cancel(r.Context(), o.ID))
}

func (h *Handler) deleteOwnOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orders.DeleteOwn(r.Context(), identityFrom(r.Context()).UserID, orderID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status order.Status
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = order.Status(v)
		return err
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.respondOrder(w, r)(h.orders.UpdateStatus(r.Context(), orderID, status))
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondOrder(w, r)(h.orders.ConfirmPayment(r.Context(), orderID))
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var reason string
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
			if key != "reason" {
				return d.Skip()
			}
			v, err := d.Str()
			reason = v
			return err
		}); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	h.respondOrder(w, r)(h.orders.RejectPayment(r.Context(), orderID, reason))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orders.Delete(r.Context(), orderID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visibleOrder loads the {orderID} order if the caller owns it or is an
// admin. Other users' orders are reported as missing.
func (h *Handler) visibleOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	id := identityFrom(r.Context())
	o, err := h.orders.Get(r.Context(), orderID)
	if err == nil && !id.IsAdmin() && o.UserID != id.UserID {
		err = order.ErrNotFound
	}
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return o, true
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request) func(*order.Order, error) {
	return func(o *order.Order, err error) {
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
	}
}
