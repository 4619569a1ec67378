package iap

import (
	"context"
	"fmt"

	"github.com/memspace/iap/billing"
	"github.com/memspace/iap/schema"
)

// BillingDelegate adapts a ready billing client to the common Delegate
// surface.
type BillingDelegate struct {
	client  *billing.Client
	skuType string
}

// NewBillingDelegate creates the billing variant of the Delegate; skuType
// defaults to in-app products.
func NewBillingDelegate(client *billing.Client, skuType string) *BillingDelegate {
	if skuType == "" {
		skuType = schema.SkuTypeInApp
	}
	return &BillingDelegate{client: client, skuType: skuType}
}

// FetchProducts queries sku details for the supplied identifiers.
func (d *BillingDelegate) FetchProducts(ctx context.Context, identifiers []string) ([]*ProductListing, error) {
	result, err := d.client.QuerySkuDetails(ctx, d.skuType, identifiers)
	if err != nil {
		return nil, err
	}
	if result.ResponseCode != schema.ResponseCodeOK {
		return nil, schema.NewResponseError(result.ResponseCode)
	}
	ret := make([]*ProductListing, 0, len(result.SkuDetails))
	for _, details := range result.SkuDetails {
		ret = append(ret, &ProductListing{Platform: PlatformBilling, SkuDetails: details})
	}
	return ret, nil
}

// Purchase launches a billing flow for the listed sku and waits for the
// matching purchase update.
func (d *BillingDelegate) Purchase(ctx context.Context, listing *ProductListing) (*PurchaseResult, error) {
	if listing.SkuDetails == nil {
		return nil, fmt.Errorf("listing %v is not a billing sku", listing.Identifier())
	}
	purchase, err := d.client.Purchase(ctx, listing.SkuDetails)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Platform: PlatformBilling, Purchase: purchase}, nil
}

// FetchCredentials returns the currently owned purchases with their tokens.
func (d *BillingDelegate) FetchCredentials(ctx context.Context) (*Credentials, error) {
	result, err := d.client.QueryPurchases(ctx, d.skuType)
	if err != nil {
		return nil, err
	}
	if result.ResponseCode != schema.ResponseCodeOK {
		return nil, schema.NewResponseError(result.ResponseCode)
	}
	return &Credentials{Platform: PlatformBilling, Purchases: result.Purchases}, nil
}

var _ Delegate = (*BillingDelegate)(nil)
