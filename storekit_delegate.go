package iap

import (
	"context"
	"fmt"

	"github.com/viant/afs"

	"github.com/memspace/iap/schema"
	"github.com/memspace/iap/storekit"
)

// StoreKitDelegate adapts the StoreKit queue and its correlation delegate to
// the common Delegate surface.
type StoreKitDelegate struct {
	queue    *storekit.Queue
	delegate *storekit.Delegate
	fs       afs.Service
}

// NewStoreKitDelegate creates the StoreKit variant of the Delegate.
func NewStoreKitDelegate(queue *storekit.Queue, delegate *storekit.Delegate) *StoreKitDelegate {
	return &StoreKitDelegate{queue: queue, delegate: delegate, fs: afs.New()}
}

// FetchProducts queries the store catalog; identifiers the store rejects are
// simply absent from the result.
func (d *StoreKitDelegate) FetchProducts(ctx context.Context, identifiers []string) ([]*ProductListing, error) {
	result, err := d.queue.Products(ctx, identifiers)
	if err != nil {
		return nil, err
	}
	ret := make([]*ProductListing, 0, len(result.Products))
	for _, product := range result.Products {
		ret = append(ret, &ProductListing{Platform: PlatformStoreKit, Product: product})
	}
	return ret, nil
}

// Purchase submits a payment for the listed product and waits for the
// matching terminal transaction.
func (d *StoreKitDelegate) Purchase(ctx context.Context, listing *ProductListing) (*PurchaseResult, error) {
	if listing.Product == nil {
		return nil, fmt.Errorf("listing %v is not a storekit product", listing.Identifier())
	}
	payment := &schema.Payment{ProductIdentifier: listing.Product.ProductIdentifier, Quantity: 1}
	transaction, err := d.delegate.Purchase(ctx, payment)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Platform: PlatformStoreKit, Transaction: transaction}, nil
}

// FetchCredentials loads the raw device receipt, refreshing it once when the
// device holds none yet.
func (d *StoreKitDelegate) FetchCredentials(ctx context.Context) (*Credentials, error) {
	location, err := d.queue.ReadReceipt(ctx)
	if err != nil {
		return nil, err
	}
	if location == "" {
		if err = d.queue.RefreshReceipt(ctx); err != nil {
			return nil, err
		}
		if location, err = d.queue.ReadReceipt(ctx); err != nil {
			return nil, err
		}
	}
	if location == "" {
		return nil, fmt.Errorf("no receipt present on device")
	}
	data, err := d.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt %v: %w", location, err)
	}
	return &Credentials{Platform: PlatformStoreKit, Receipt: data}, nil
}

var _ Delegate = (*StoreKitDelegate)(nil)
