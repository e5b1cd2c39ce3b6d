package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address does not exist.
var ErrNotFound = errors.New("address not found")

// Address is a user's shipping address.
type Address struct {
	ID          int64
	UserID      int64
	Line        string
	City        string
	State       string
	Country     string
	PostalCode  string
	PhoneNumber string
}

// Repository provides address lookups.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Address, error)
}
