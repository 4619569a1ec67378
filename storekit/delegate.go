package storekit

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/memspace/iap/schema"
)

var errPurchaseFailed = errors.New("purchase failed")

func newPaymentID() string {
	return uuid.NewString()
}

// UnsolicitedTransactionHandler receives terminal transactions that match no
// outstanding operation, e.g. transactions left unfinished by a previous
// process run. The handler is responsible only for finishing them, never for
// granting entitlement.
type UnsolicitedTransactionHandler func(transaction *schema.Transaction)

// StorePaymentDecider decides whether a store initiated payment proceeds.
type StorePaymentDecider func(payment *schema.Payment, product *schema.Product) bool

// Delegate correlates asynchronous transaction updates back to the purchase
// or restore call that caused them. The update channel is a single shared
// broadcast stream, so a terminal transaction is matched to the outstanding
// purchase by payment identity, not by value equality of its payment fields.
type Delegate struct {
	queue        *Queue
	logger       *zap.Logger
	unsolicited  UnsolicitedTransactionHandler
	storePayment StorePaymentDecider
	forward      TransactionObserver

	mux      sync.Mutex
	purchase *purchaseOperation
	restore  *restoreOperation
}

type purchaseOutcome struct {
	transaction *schema.Transaction
	err         error
}

type purchaseOperation struct {
	paymentID string
	done      chan purchaseOutcome
}

type restoreOutcome struct {
	transactions []*schema.Transaction
	err          error
}

type restoreOperation struct {
	restored []*schema.Transaction
	done     chan restoreOutcome
}

// DelegateOption customizes a Delegate.
type DelegateOption func(d *Delegate)

// WithUnsolicitedHandler overrides the default unsolicited transaction
// handling, which finishes the transaction right away.
func WithUnsolicitedHandler(handler UnsolicitedTransactionHandler) DelegateOption {
	return func(d *Delegate) {
		d.unsolicited = handler
	}
}

// WithStorePaymentDecider sets the store payment decision callback; without
// one every store initiated payment is declined.
func WithStorePaymentDecider(decider StorePaymentDecider) DelegateOption {
	return func(d *Delegate) {
		d.storePayment = decider
	}
}

// WithObserver forwards every queue event to the supplied observer after the
// delegate's own correlation bookkeeping.
func WithObserver(observer TransactionObserver) DelegateOption {
	return func(d *Delegate) {
		d.forward = observer
	}
}

// NewDelegate creates a delegate over the queue.
func NewDelegate(queue *Queue, options ...DelegateOption) *Delegate {
	ret := &Delegate{queue: queue, logger: queue.logger}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Attach registers the delegate as the queue observer, flushing any buffered
// events through it.
func (d *Delegate) Attach(ctx context.Context) error {
	return d.queue.SetTransactionObserver(ctx, d)
}

// Purchase submits a payment and resolves once the matching terminal
// transaction arrives. A user declined purchase resolves to a nil transaction
// and nil error. At most one purchase may be outstanding at a time.
func (d *Delegate) Purchase(ctx context.Context, payment *schema.Payment) (*schema.Transaction, error) {
	if payment.ID == "" {
		payment.ID = newPaymentID()
	}
	d.mux.Lock()
	if d.purchase != nil {
		d.mux.Unlock()
		return nil, schema.NewOperationInProgress("purchase")
	}
	operation := &purchaseOperation{paymentID: payment.ID, done: make(chan purchaseOutcome, 1)}
	d.purchase = operation
	d.mux.Unlock()

	if err := d.queue.AddPayment(ctx, payment); err != nil {
		d.clearPurchase(operation)
		return nil, err
	}
	select {
	case outcome := <-operation.done:
		return outcome.transaction, outcome.err
	case <-ctx.Done():
		d.clearPurchase(operation)
		return nil, ctx.Err()
	}
}

// RestoreCompletedTransactions re-delivers previously completed transactions,
// aggregating every restored transaction reported between the request and the
// terminating restore signal. At most one restore may be outstanding at a
// time.
func (d *Delegate) RestoreCompletedTransactions(ctx context.Context, applicationUsername string) ([]*schema.Transaction, error) {
	d.mux.Lock()
	if d.restore != nil {
		d.mux.Unlock()
		return nil, schema.NewOperationInProgress("restore")
	}
	// the aggregation window opens atomically with the request
	operation := &restoreOperation{done: make(chan restoreOutcome, 1)}
	d.restore = operation
	d.mux.Unlock()

	if err := d.queue.Restore(ctx, applicationUsername); err != nil {
		d.clearRestore(operation)
		return nil, err
	}
	select {
	case outcome := <-operation.done:
		return outcome.transactions, outcome.err
	case <-ctx.Done():
		d.clearRestore(operation)
		return nil, ctx.Err()
	}
}

// TransactionsUpdated implements TransactionObserver.
func (d *Delegate) TransactionsUpdated(transactions []*schema.Transaction) {
	for _, transaction := range transactions {
		d.transactionUpdated(transaction)
	}
	if d.forward != nil {
		d.forward.TransactionsUpdated(transactions)
	}
}

// TransactionsRemoved implements TransactionObserver.
func (d *Delegate) TransactionsRemoved(transactions []*schema.Transaction) {
	if d.forward != nil {
		d.forward.TransactionsRemoved(transactions)
	}
}

// RestoreFinished closes the restore aggregation window successfully.
func (d *Delegate) RestoreFinished() {
	d.mux.Lock()
	operation := d.restore
	d.restore = nil
	d.mux.Unlock()
	if operation != nil {
		operation.done <- restoreOutcome{transactions: operation.restored}
	}
	if d.forward != nil {
		d.forward.RestoreFinished()
	}
}

// RestoreFailed closes the restore aggregation window with an error; success
// and failure are mutually exclusive completions of the same operation.
func (d *Delegate) RestoreFailed(transactionError *schema.TransactionError) {
	d.mux.Lock()
	operation := d.restore
	d.restore = nil
	d.mux.Unlock()
	if operation != nil {
		outcome := restoreOutcome{err: errors.New("restore failed")}
		if transactionError != nil {
			outcome.err = transactionError
		}
		operation.done <- outcome
	}
	if d.forward != nil {
		d.forward.RestoreFailed(transactionError)
	}
}

// ShouldAddStorePayment implements TransactionObserver.
func (d *Delegate) ShouldAddStorePayment(payment *schema.Payment, product *schema.Product) bool {
	if d.storePayment != nil {
		return d.storePayment(payment, product)
	}
	if d.forward != nil {
		return d.forward.ShouldAddStorePayment(payment, product)
	}
	return false
}

func (d *Delegate) transactionUpdated(transaction *schema.Transaction) {
	switch transaction.State {
	case schema.TransactionPurchased, schema.TransactionFailed:
		if d.resolvePurchase(transaction) {
			return
		}
		d.handleUnsolicited(transaction)
	case schema.TransactionRestored:
		if d.collectRestored(transaction) {
			return
		}
		d.handleUnsolicited(transaction)
	default:
		// purchasing and deferred carry no terminal outcome yet; a later
		// notification for the same handle supersedes them
	}
}

func (d *Delegate) resolvePurchase(transaction *schema.Transaction) bool {
	d.mux.Lock()
	operation := d.purchase
	if operation == nil || transaction.Payment == nil || transaction.Payment.ID != operation.paymentID {
		d.mux.Unlock()
		return false
	}
	d.purchase = nil
	d.mux.Unlock()

	if transaction.State == schema.TransactionFailed {
		if transaction.Error.Cancelled() {
			// user declined is an outcome, not an error
			operation.done <- purchaseOutcome{}
		} else {
			outcome := purchaseOutcome{err: errPurchaseFailed}
			if transaction.Error != nil {
				outcome.err = transaction.Error
			}
			operation.done <- outcome
		}
		// the caller never sees a failed transaction, so no one else will
		// finish it
		d.finish(transaction)
		return true
	}
	operation.done <- purchaseOutcome{transaction: transaction}
	return true
}

func (d *Delegate) finish(transaction *schema.Transaction) {
	if err := d.queue.Finish(context.Background(), transaction.Handle); err != nil {
		d.logger.Warn("failed to finish transaction",
			zap.Uint64("handle", transaction.Handle), zap.Error(err))
	}
}

func (d *Delegate) collectRestored(transaction *schema.Transaction) bool {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.restore == nil {
		return false
	}
	d.restore.restored = append(d.restore.restored, transaction)
	return true
}

func (d *Delegate) handleUnsolicited(transaction *schema.Transaction) {
	if d.unsolicited != nil {
		d.unsolicited(transaction)
		return
	}
	d.finish(transaction)
}

func (d *Delegate) clearPurchase(operation *purchaseOperation) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.purchase == operation {
		d.purchase = nil
	}
}

func (d *Delegate) clearRestore(operation *restoreOperation) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.restore == operation {
		d.restore = nil
	}
}

var _ TransactionObserver = (*Delegate)(nil)
