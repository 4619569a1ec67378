package iap

import (
	"context"

	"github.com/memspace/iap/schema"
)

// Platform names the native purchasing subsystem a record came from.
type Platform string

const (
	PlatformStoreKit Platform = "storekit"
	PlatformBilling  Platform = "billing"
)

// Delegate is the minimal capability surface shared by the two store
// variants. The payloads stay platform specific; the two native protocols
// are not unified beyond this surface.
type Delegate interface {
	// FetchProducts queries the store catalog.
	FetchProducts(ctx context.Context, identifiers []string) ([]*ProductListing, error)

	// Purchase buys one listing; a declined purchase returns a result whose
	// Declined method reports true, not an error.
	Purchase(ctx context.Context, listing *ProductListing) (*PurchaseResult, error)

	// FetchCredentials returns the platform credential material for server
	// side verification.
	FetchCredentials(ctx context.Context) (*Credentials, error)
}

// ProductListing is a tagged variant catalog record.
type ProductListing struct {
	Platform   Platform
	Product    *schema.Product
	SkuDetails *schema.SkuDetails
}

// Identifier returns the platform specific product identifier.
func (l *ProductListing) Identifier() string {
	switch l.Platform {
	case PlatformStoreKit:
		if l.Product != nil {
			return l.Product.ProductIdentifier
		}
	case PlatformBilling:
		if l.SkuDetails != nil {
			return l.SkuDetails.Sku
		}
	}
	return ""
}

// PurchaseResult is a tagged variant purchase outcome.
type PurchaseResult struct {
	Platform    Platform
	Transaction *schema.Transaction
	Purchase    *schema.Purchase
}

// Declined reports whether the user declined the purchase.
func (r *PurchaseResult) Declined() bool {
	return r.Transaction == nil && r.Purchase == nil
}

// Credentials carries platform credential material: the raw StoreKit receipt
// or the owned billing purchases with their tokens.
type Credentials struct {
	Platform  Platform
	Receipt   []byte
	Purchases []*schema.Purchase
}
