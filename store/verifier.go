// Package store holds the application level subscription verification glue:
// exchanging the credentials collected on device for verified entitlements
// with the platform backends. It sits above the purchase session and owns no
// retry policy; a failed verification is reported back as is.
package store

import (
	"context"
	"time"

	"github.com/memspace/iap"
)

// Entitlement represents the verified outcome for one product.
type Entitlement struct {
	ProductID string    `json:"productId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Active    bool      `json:"active"`
}

// Verifier validates purchase credentials with a platform backend.
type Verifier interface {
	Verify(ctx context.Context, credentials *iap.Credentials) ([]*Entitlement, error)
}
