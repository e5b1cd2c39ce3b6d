package handler

import (
	"context"
	"net/http"
	"strconv"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	roleAdmin = "admin"
)

// Identity is the caller as asserted by the gateway.
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller may manage every order.
func (i Identity) IsAdmin() bool {
	return i.Role == roleAdmin
}

type identityKey struct{}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// identify rejects requests without a positive X-User-ID.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := strconv.ParseInt(r.Header.Get(headerUserID), 10, 64)
		if err != nil || uid <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+headerUserID)
			return
		}
		id := Identity{UserID: uid, Role: r.Header.Get(headerUserRole)}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
