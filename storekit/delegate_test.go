package storekit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"

	"github.com/memspace/iap/schema"
)

// awaitMethod returns a transport hook that signals once the given method was
// sent; purchase and restore register their operation before sending, so the
// signal marks the point the test may start delivering events.
func awaitMethod(mt *mockTransport, method string) chan struct{} {
	ret := make(chan struct{})
	mt.send = func(ctx context.Context, r *jsonrpc.Request) (*jsonrpc.Response, error) {
		if r.Method == method {
			select {
			case <-ret:
			default:
				close(ret)
			}
		}
		return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Result: []byte(`null`)}, nil
	}
	return ret
}

func TestDelegate_PurchaseResolvesByPaymentIdentity(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	submitted := awaitMethod(mt, schema.MethodQueueAddPayment)
	type result struct {
		transaction *schema.Transaction
		err         error
	}
	done := make(chan result, 1)
	payment := &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"}
	go func() {
		transaction, err := delegate.Purchase(context.Background(), payment)
		done <- result{transaction, err}
	}()
	<-submitted

	// an update for the same product but another payment must not resolve it
	stranger := &schema.Transaction{
		Handle:                10,
		State:                 schema.TransactionPurchased,
		Payment:               &schema.Payment{ID: "pay-other", ProductIdentifier: "coins"},
		TransactionIdentifier: "t-other",
	}
	queue.transactionsUpdated([]*schema.Transaction{stranger})

	match := &schema.Transaction{
		Handle:                11,
		State:                 schema.TransactionPurchased,
		Payment:               &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"},
		TransactionIdentifier: "t-mine",
	}
	queue.transactionsUpdated([]*schema.Transaction{match})

	outcome := <-done
	require.NoError(t, outcome.err)
	require.NotNil(t, outcome.transaction)
	assert.Equal(t, "t-mine", outcome.transaction.TransactionIdentifier)
	// the stranger went down the unsolicited path and was finished
	assert.Contains(t, mt.methods(), schema.MethodQueueFinishTransaction)
}

func TestDelegate_PurchaseCancelledIsNotAnError(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	submitted := awaitMethod(mt, schema.MethodQueueAddPayment)
	done := make(chan error, 1)
	var transaction *schema.Transaction
	go func() {
		var err error
		transaction, err = delegate.Purchase(context.Background(), &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"})
		done <- err
	}()
	<-submitted

	queue.transactionsUpdated([]*schema.Transaction{{
		Handle:  1,
		State:   schema.TransactionFailed,
		Payment: &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"},
		Error:   &schema.TransactionError{Code: schema.SKErrorPaymentCancelled, Domain: "SKErrorDomain"},
	}})

	require.NoError(t, <-done)
	assert.Nil(t, transaction)

	// the declined transaction is finished on the caller's behalf
	assert.Contains(t, mt.methods(), schema.MethodQueueFinishTransaction)
	assert.Empty(t, queue.Unfinished())
}

func TestDelegate_PurchaseFailureSurfacesStoreError(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	submitted := awaitMethod(mt, schema.MethodQueueAddPayment)
	done := make(chan error, 1)
	go func() {
		_, err := delegate.Purchase(context.Background(), &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"})
		done <- err
	}()
	<-submitted

	queue.transactionsUpdated([]*schema.Transaction{{
		Handle:  1,
		State:   schema.TransactionFailed,
		Payment: &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"},
		Error:   &schema.TransactionError{Code: 0, Domain: "SKErrorDomain", Message: "payment invalid"},
	}})

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment invalid")
	// the failed transaction never reaches the caller, so it is finished here
	assert.Empty(t, queue.Unfinished())
}

func TestDelegate_SinglePurchaseAtATime(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	submitted := awaitMethod(mt, schema.MethodQueueAddPayment)
	done := make(chan error, 1)
	go func() {
		_, err := delegate.Purchase(context.Background(), &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"})
		done <- err
	}()
	<-submitted

	_, err := delegate.Purchase(context.Background(), &schema.Payment{ProductIdentifier: "gems"})
	require.Error(t, err)
	var rpcError *jsonrpc.Error
	require.ErrorAs(t, err, &rpcError)
	assert.Equal(t, schema.OperationInProgress, rpcError.Code)

	queue.transactionsUpdated([]*schema.Transaction{{
		Handle:  1,
		State:   schema.TransactionPurchased,
		Payment: &schema.Payment{ID: "pay-1", ProductIdentifier: "coins"},
	}})
	require.NoError(t, <-done)
}

func TestDelegate_PurchaseContextCancellation(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := delegate.Purchase(ctx, &schema.Payment{ProductIdentifier: "coins"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the slot is free again after abandonment
	submitted := awaitMethod(mt, schema.MethodQueueAddPayment)
	done := make(chan error, 1)
	go func() {
		_, err := delegate.Purchase(context.Background(), &schema.Payment{ID: "pay-2", ProductIdentifier: "coins"})
		done <- err
	}()
	<-submitted
	queue.transactionsUpdated([]*schema.Transaction{{
		Handle:  2,
		State:   schema.TransactionPurchased,
		Payment: &schema.Payment{ID: "pay-2", ProductIdentifier: "coins"},
	}})
	require.NoError(t, <-done)
}

func TestDelegate_RestoreAggregatesUntilFinished(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	requested := awaitMethod(mt, schema.MethodQueueRestore)
	type result struct {
		transactions []*schema.Transaction
		err          error
	}
	done := make(chan result, 1)
	go func() {
		transactions, err := delegate.RestoreCompletedTransactions(context.Background(), "user-1")
		done <- result{transactions, err}
	}()
	<-requested

	queue.transactionsUpdated([]*schema.Transaction{
		{Handle: 1, State: schema.TransactionRestored, TransactionIdentifier: "r-1"},
		{Handle: 2, State: schema.TransactionRestored, TransactionIdentifier: "r-2"},
	})
	// an unrelated purchase interleaved in the same stream is not aggregated
	queue.transactionsUpdated([]*schema.Transaction{purchasedTransaction(9, "coins")})
	queue.transactionsUpdated([]*schema.Transaction{
		{Handle: 3, State: schema.TransactionRestored, TransactionIdentifier: "r-3"},
	})
	queue.restoreFinished()

	outcome := <-done
	require.NoError(t, outcome.err)
	require.Len(t, outcome.transactions, 3)
	assert.Equal(t, "r-1", outcome.transactions[0].TransactionIdentifier)
	assert.Equal(t, "r-3", outcome.transactions[2].TransactionIdentifier)
}

func TestDelegate_RestoreFailureDiscardsPartialResults(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	requested := awaitMethod(mt, schema.MethodQueueRestore)
	done := make(chan error, 1)
	go func() {
		_, err := delegate.RestoreCompletedTransactions(context.Background(), "")
		done <- err
	}()
	<-requested

	queue.transactionsUpdated([]*schema.Transaction{
		{Handle: 1, State: schema.TransactionRestored, TransactionIdentifier: "r-1"},
	})
	queue.restoreFailed(&schema.TransactionError{Code: 11, Domain: "SKErrorDomain", Message: "cloud unavailable"})

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud unavailable")
}

func TestDelegate_UnsolicitedHandlerOverride(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	var received []*schema.Transaction
	delegate := NewDelegate(queue, WithUnsolicitedHandler(func(transaction *schema.Transaction) {
		received = append(received, transaction)
	}))
	require.NoError(t, delegate.Attach(context.Background()))

	queue.transactionsUpdated([]*schema.Transaction{purchasedTransaction(9, "coins")})
	require.Len(t, received, 1)
	assert.Equal(t, uint64(9), received[0].Handle)
	// the custom handler owns finishing now
	assert.NotContains(t, mt.methods(), schema.MethodQueueFinishTransaction)
}

func TestDelegate_UnsolicitedDefaultFinishes(t *testing.T) {
	mt := &mockTransport{}
	queue := New(mt)
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	queue.transactionsUpdated([]*schema.Transaction{purchasedTransaction(9, "coins")})
	assert.Contains(t, mt.methods(), schema.MethodQueueFinishTransaction)
	assert.Empty(t, queue.Unfinished())
}

func TestDelegate_StorePaymentDecider(t *testing.T) {
	queue := New(&mockTransport{})
	delegate := NewDelegate(queue, WithStorePaymentDecider(func(payment *schema.Payment, product *schema.Product) bool {
		return product.ProductIdentifier == "coins"
	}))
	require.NoError(t, delegate.Attach(context.Background()))

	coins := &schema.StorePayment{Payment: &schema.Payment{}, Product: &schema.Product{ProductIdentifier: "coins"}}
	gems := &schema.StorePayment{Payment: &schema.Payment{}, Product: &schema.Product{ProductIdentifier: "gems"}}
	assert.True(t, queue.storePaymentReceived(coins))
	assert.False(t, queue.storePaymentReceived(gems))
}

func TestDelegate_WithoutDeciderDeclines(t *testing.T) {
	queue := New(&mockTransport{})
	delegate := NewDelegate(queue)
	require.NoError(t, delegate.Attach(context.Background()))

	intent := &schema.StorePayment{Payment: &schema.Payment{}, Product: &schema.Product{ProductIdentifier: "coins"}}
	assert.False(t, queue.storePaymentReceived(intent))
}
