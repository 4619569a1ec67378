// Package iap bridges application code to the native in-app purchase
// subsystems, the StoreKit payment queue and the Play Billing Library,
// over a bidirectional JSON-RPC channel.
//
// The package keeps the two store APIs distinct: the storekit
// and billing packages expose each platform's own operations and semantics,
// and only the minimal Delegate capability surface (fetch products, purchase,
// fetch credentials) is shared. A Session owns the channel transport, the
// payment queue and the billing client manager; it is constructed explicitly
// by the application entry point and one instance per process is a
// convention, not an enforcement.
//
// Example:
//
//	session, _ := iap.New(&iap.Options{Transport: iap.TransportOptions{
//		Type:    "stdio",
//		Command: "/usr/local/bin/iap-bridge",
//	}})
//	delegate := storekit.NewDelegate(session.Queue())
//	_ = delegate.Attach(ctx)
//	transaction, err := delegate.Purchase(ctx, &schema.Payment{ProductIdentifier: "gem_pack"})
package iap
