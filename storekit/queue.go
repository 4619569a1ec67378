// Package storekit bridges application code to the native StoreKit payment
// queue over a bidirectional JSON-RPC channel. The queue buffers transaction
// events arriving before an observer is attached and tracks delivered but not
// yet finished transactions, since an unfinished transaction is an open
// obligation on the native store.
package storekit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"go.uber.org/zap"

	"github.com/memspace/iap/handle"
	"github.com/memspace/iap/schema"
)

const defaultStorePaymentTimeout = 5 * time.Second

// restoreSignal buffers a terminal restore outcome that arrived with no
// observer attached; only the latest one is kept.
type restoreSignal struct {
	err *schema.TransactionError
}

// Queue represents the application side of the native payment queue. The
// native layer starts reporting transaction updates as soon as the process
// starts, regardless of whether an observer is attached yet; everything that
// arrives earlier is buffered and flushed on registration.
type Queue struct {
	transport           transport.Transport
	logger              *zap.Logger
	storePaymentTimeout time.Duration

	// dispatchMux serializes live event delivery with the registration
	// flush so a live event can never overtake an older buffered one.
	dispatchMux sync.Mutex

	mux                 sync.Mutex
	observer            TransactionObserver
	pendingUpdated      []*schema.Transaction
	pendingRemoved      []*schema.Transaction
	pendingStorePayment *schema.StorePayment
	pendingRestore      *restoreSignal
	unfinished          *handle.Registry[*schema.Transaction]
}

// Option customizes a Queue.
type Option func(q *Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithStorePaymentTimeout bounds how long a store payment decision may take
// before it counts as decline.
func WithStorePaymentTimeout(timeout time.Duration) Option {
	return func(q *Queue) {
		q.storePaymentTimeout = timeout
	}
}

// New creates a payment queue bound to the supplied channel transport.
func New(aTransport transport.Transport, options ...Option) *Queue {
	ret := &Queue{
		transport:           aTransport,
		storePaymentTimeout: defaultStorePaymentTimeout,
		unfinished:          handle.New[*schema.Transaction](),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = zap.NewNop()
	}
	return ret
}

// Products queries the store catalog for the supplied product identifiers;
// identifiers the store does not recognize come back separately.
func (q *Queue) Products(ctx context.Context, identifiers []string) (*schema.ProductsResult, error) {
	return send[schema.ProductsResult](ctx, q.transport, schema.MethodProductsQuery, &schema.ProductsQueryParams{ProductIdentifiers: identifiers})
}

// CanMakePayments reports whether the device user is allowed to pay.
func (q *Queue) CanMakePayments(ctx context.Context) (bool, error) {
	ret, err := send[bool](ctx, q.transport, schema.MethodQueueCanMakePayments, nil)
	if err != nil {
		return false, err
	}
	return *ret, nil
}

// AddPayment submits a payment to the native queue. A payment identity is
// assigned when absent: the native layer echoes it back inside transaction
// records, which is what lets the correlation layer match by identity rather
// than by value equality of the payment fields.
func (q *Queue) AddPayment(ctx context.Context, payment *schema.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	return q.call(ctx, schema.MethodQueueAddPayment, payment)
}

// FinishTransaction finishes the supplied transaction, see Finish.
func (q *Queue) FinishTransaction(ctx context.Context, transaction *schema.Transaction) error {
	return q.Finish(ctx, transaction.Handle)
}

// Finish acknowledges a delivered transaction to the native store. Finishing
// an unknown or already finished handle is an error, never a silent success,
// since that would mask content unlocked for a transaction the store still
// considers open. If the native call fails the transaction stays finishable;
// no automatic retry happens here.
func (q *Queue) Finish(ctx context.Context, transactionHandle uint64) error {
	tracked, err := q.unfinished.Take(transactionHandle)
	if err != nil {
		return schema.NewUnknownTransaction(transactionHandle)
	}
	if !tracked.State.Terminal() {
		q.unfinished.Register(transactionHandle, tracked)
		return jsonrpc.NewInvalidRequest(fmt.Sprintf("transaction %v has no terminal outcome yet", transactionHandle), nil)
	}
	if err := q.call(ctx, schema.MethodQueueFinishTransaction, &schema.FinishTransactionParams{Handle: transactionHandle}); err != nil {
		q.unfinished.Register(transactionHandle, tracked)
		return err
	}
	return nil
}

// Restore asks the native queue to re-deliver previously completed, still
// restorable transactions; the terminal outcome arrives as a later event.
func (q *Queue) Restore(ctx context.Context, applicationUsername string) error {
	return q.call(ctx, schema.MethodQueueRestore, &schema.RestoreParams{ApplicationUsername: applicationUsername})
}

// ReadReceipt returns the opaque receipt location, or empty when the device
// holds no receipt.
func (q *Queue) ReadReceipt(ctx context.Context) (string, error) {
	ret, err := send[schema.ReceiptResult](ctx, q.transport, schema.MethodReceiptRead, nil)
	if err != nil {
		return "", err
	}
	return ret.Location, nil
}

// RefreshReceipt asks the store to refresh the device receipt.
func (q *Queue) RefreshReceipt(ctx context.Context) error {
	return q.call(ctx, schema.MethodReceiptRefresh, nil)
}

// HasObserver reports whether an observer is currently registered.
func (q *Queue) HasObserver() bool {
	q.mux.Lock()
	defer q.mux.Unlock()
	return q.observer != nil
}

// Unfinished returns a snapshot of the delivered but not yet finished
// transactions.
func (q *Queue) Unfinished() []*schema.Transaction {
	return q.unfinished.Values()
}

// SetTransactionObserver registers the observer, flushing buffered events
// through it first: updated transactions, then removals, then the restore
// signal, then the latest store payment, the order they would have arrived
// live in. The native layer resumes live delivery only after the flush, so no
// live event can be delivered ahead of an older buffered one.
func (q *Queue) SetTransactionObserver(ctx context.Context, observer TransactionObserver) error {
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	q.mux.Lock()
	q.observer = observer
	updated := q.pendingUpdated
	removed := q.pendingRemoved
	restore := q.pendingRestore
	intent := q.pendingStorePayment
	q.pendingUpdated, q.pendingRemoved, q.pendingRestore, q.pendingStorePayment = nil, nil, nil, nil
	q.mux.Unlock()

	if len(updated) > 0 {
		observer.TransactionsUpdated(updated)
	}
	if len(removed) > 0 {
		observer.TransactionsRemoved(removed)
	}
	if restore != nil {
		if restore.err != nil {
			observer.RestoreFailed(restore.err)
		} else {
			observer.RestoreFinished()
		}
	}
	var resubmitErr error
	if intent != nil && q.askStorePayment(observer, intent) {
		// the native layer already declined on the app's behalf while no
		// observer was attached; resubmit the payment now it was accepted
		resubmitErr = q.AddPayment(ctx, intent.Payment)
	}
	// live delivery resumes regardless of the resubmission outcome
	if err := q.call(ctx, schema.MethodQueueEnableObserver, nil); err != nil {
		return err
	}
	return resubmitErr
}

// RemoveTransactionObserver detaches the observer; subsequent events are
// buffered again.
func (q *Queue) RemoveTransactionObserver(ctx context.Context) error {
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	q.mux.Lock()
	q.observer = nil
	q.mux.Unlock()
	return q.call(ctx, schema.MethodQueueDisableObserver, nil)
}

func (q *Queue) transactionsUpdated(transactions []*schema.Transaction) {
	q.mux.Lock()
	for _, transaction := range transactions {
		// a later notification for the same handle supersedes a deferred one
		q.unfinished.Register(transaction.Handle, transaction)
	}
	observer := q.observer
	if observer == nil {
		q.pendingUpdated = append(q.pendingUpdated, transactions...)
		q.mux.Unlock()
		return
	}
	q.mux.Unlock()
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	observer.TransactionsUpdated(transactions)
}

func (q *Queue) transactionsRemoved(transactions []*schema.Transaction) {
	q.mux.Lock()
	observer := q.observer
	if observer == nil {
		q.pendingRemoved = append(q.pendingRemoved, transactions...)
		q.mux.Unlock()
		return
	}
	q.mux.Unlock()
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	observer.TransactionsRemoved(transactions)
}

func (q *Queue) restoreFinished() {
	q.mux.Lock()
	observer := q.observer
	if observer == nil {
		q.pendingRestore = &restoreSignal{}
		q.mux.Unlock()
		return
	}
	q.mux.Unlock()
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	observer.RestoreFinished()
}

func (q *Queue) restoreFailed(transactionError *schema.TransactionError) {
	q.mux.Lock()
	observer := q.observer
	if observer == nil {
		q.pendingRestore = &restoreSignal{err: transactionError}
		q.mux.Unlock()
		return
	}
	q.mux.Unlock()
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	observer.RestoreFailed(transactionError)
}

func (q *Queue) storePaymentReceived(intent *schema.StorePayment) bool {
	q.mux.Lock()
	observer := q.observer
	if observer == nil {
		// only the latest intent reflects current user intent
		q.pendingStorePayment = intent
		q.mux.Unlock()
		return false
	}
	q.mux.Unlock()
	q.dispatchMux.Lock()
	defer q.dispatchMux.Unlock()
	return q.askStorePayment(observer, intent)
}

// askStorePayment bounds the observer decision so a slow handler cannot
// stall the shared event dispatch queue.
func (q *Queue) askStorePayment(observer TransactionObserver, intent *schema.StorePayment) bool {
	decision := make(chan bool, 1)
	go func() {
		decision <- observer.ShouldAddStorePayment(intent.Payment, intent.Product)
	}()
	select {
	case ret := <-decision:
		return ret
	case <-time.After(q.storePaymentTimeout):
		q.logger.Warn("store payment decision timed out, declining",
			zap.String("product", intent.Product.ProductIdentifier))
		return false
	}
}

func (q *Queue) call(ctx context.Context, method string, parameters any) error {
	request, err := jsonrpc.NewRequest(method, parameters)
	if err != nil {
		return jsonrpc.NewInvalidRequest(err.Error(), nil)
	}
	response, err := q.transport.Send(ctx, request)
	if err != nil {
		return jsonrpc.NewInternalError(err.Error(), nil)
	}
	if response.Error != nil {
		return response.Error
	}
	return nil
}

func send[R any](ctx context.Context, aTransport transport.Transport, method string, parameters any) (*R, error) {
	request, err := jsonrpc.NewRequest(method, parameters)
	if err != nil {
		return nil, jsonrpc.NewInvalidRequest(err.Error(), nil)
	}
	response, err := aTransport.Send(ctx, request)
	if err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	var result R
	if err = json.Unmarshal(response.Result, &result); err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	return &result, nil
}
