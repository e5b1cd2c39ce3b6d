package payment

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a payment method does not exist or is inactive.
var ErrNotFound = errors.New("payment method not found")

// DefaultManualProviders lists providers settled offline by an operator.
var DefaultManualProviders = []string{"manual", "bank_transfer", "opay", "uba bank", "gtbank"}

// Method is a payment option a customer can choose at checkout.
type Method struct {
	ID            int64
	Name          string
	Provider      string
	AccountName   string
	AccountNumber string
	Active        bool
}

// IsManual reports whether the method's provider is in the manual list.
// Provider names are compared case-insensitively.
func (m Method) IsManual(manualProviders []string) bool {
	p := strings.ToLower(strings.TrimSpace(m.Provider))
	return slices.ContainsFunc(manualProviders, func(s string) bool {
		return strings.ToLower(s) == p
	})
}

// Repository provides payment method lookups.
type Repository interface {
	// GetActiveByID returns ErrNotFound for unknown or inactive methods.
	GetActiveByID(ctx context.Context, id int64) (*Method, error)
	GetByID(ctx context.Context, id int64) (*Method, error)
}
