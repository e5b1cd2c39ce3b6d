package order

import "github.com/oklog/ulid/v2"

// NewReference returns a unique, time-sortable order reference.
func NewReference() string {
	return "ORD-" + ulid.Make().String()
}
