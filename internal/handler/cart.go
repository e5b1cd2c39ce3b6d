package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c, h.taxRate) })
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.carts.GetOrCreate(ctx, identityFrom(ctx).UserID)
	if err == nil {
		err = h.carts.Clear(ctx, c.ID)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var line cart.LineItem
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		return decodeLineField(d, key, &line)
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := h.carts.GetOrCreate(ctx, identityFrom(ctx).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	it, err := h.carts.AddItem(ctx, c.ID, line.ProductID, line.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCartItem(e, it) })
}

// mergeCart adds a guest cart's lines to the caller's cart.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	var lines []cart.LineItem
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			var line cart.LineItem
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				return decodeLineField(d, key, &line)
			}); err != nil {
				return err
			}
			lines = append(lines, line)
			return nil
		})
	}); err != nil {
		writeDomainError(w, r, err)
		return
	}

	ctx := r.Context()
	c, err := h.carts.GetOrCreate(ctx, identityFrom(ctx).UserID)
	if err == nil {
		_, err = h.carts.AddItems(ctx, c.ID, lines)
	}
	if err == nil {
		c, err = h.carts.Get(ctx, c.UserID)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c, h.taxRate) })
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.ownItem(w, r)
	if !ok {
		return
	}
	quantity, hasQuantity := 0, false
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		quantity, hasQuantity = v, true
		return err
	}); err != nil || !hasQuantity {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	it, removed, err := h.carts.UpdateItemQuantity(r.Context(), itemID, quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if removed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartItem(e, it) })
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.ownItem(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), itemID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownItem resolves the {itemID} path parameter and checks the line belongs to
// the caller. Someone else's item is reported as missing.
func (h *Handler) ownItem(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	it, err := h.carts.GetItem(r.Context(), itemID)
	if err == nil && it.UserID != identityFrom(r.Context()).UserID {
		err = cart.ErrItemNotFound
	}
	if err != nil {
		writeDomainError(w, r, err)
		return 0, false
	}
	return itemID, true
}

func decodeLineField(d *jx.Decoder, key string, line *cart.LineItem) error {
	var err error
	switch key {
	case "product_id":
		line.ProductID, err = d.Int64()
	case "quantity":
		line.Quantity, err = d.Int()
	default:
		err = d.Skip()
	}
	return err
}
