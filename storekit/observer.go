package storekit

import "github.com/memspace/iap/schema"

// TransactionObserver is the single registered application side recipient of
// payment queue lifecycle events. Registering a new observer replaces the
// previous one; while none is registered events are buffered, not dropped.
type TransactionObserver interface {
	// TransactionsUpdated delivers a batch of created or updated
	// transactions in queue order.
	TransactionsUpdated(transactions []*schema.Transaction)

	// TransactionsRemoved delivers transactions removed from the native
	// queue after a finish.
	TransactionsRemoved(transactions []*schema.Transaction)

	// RestoreFinished signals that a restore operation completed.
	RestoreFinished()

	// RestoreFailed signals that a restore operation failed.
	RestoreFailed(transactionError *schema.TransactionError)

	// ShouldAddStorePayment decides whether a store initiated payment should
	// proceed. The decision is bounded by the queue's store payment timeout;
	// exceeding it counts as decline.
	ShouldAddStorePayment(payment *schema.Payment, product *schema.Product) bool
}
