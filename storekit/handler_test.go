package storekit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"

	"github.com/memspace/iap/schema"
)

func TestHandler_TransactionsUpdatedKeepsQueueOrder(t *testing.T) {
	queue := New(&mockTransport{})
	observer := &recordingObserver{}
	require.NoError(t, queue.SetTransactionObserver(context.Background(), observer))
	handler := NewHandler(queue)

	// the batch arrives keyed by handle; map order is meaningless, handle
	// order is queue order
	params, _ := json.Marshal(map[string]*schema.Transaction{
		"12": {State: schema.TransactionPurchased, TransactionIdentifier: "t-12"},
		"3":  {State: schema.TransactionPurchased, TransactionIdentifier: "t-3"},
		"7":  {State: schema.TransactionPurchased, TransactionIdentifier: "t-7"},
	})
	handler.OnNotification(context.Background(), &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version, Method: schema.EventTransactionsUpdated, Params: params,
	})

	require.Len(t, observer.updated, 3)
	assert.Equal(t, uint64(3), observer.updated[0].Handle)
	assert.Equal(t, uint64(7), observer.updated[1].Handle)
	assert.Equal(t, uint64(12), observer.updated[2].Handle)
	assert.Equal(t, "t-3", observer.updated[0].TransactionIdentifier)
}

func TestHandler_StorePaymentRequest(t *testing.T) {
	queue := New(&mockTransport{})
	observer := &recordingObserver{accept: true}
	require.NoError(t, queue.SetTransactionObserver(context.Background(), observer))
	handler := NewHandler(queue)

	intent := &schema.StorePayment{
		Payment: &schema.Payment{ProductIdentifier: "coins"},
		Product: &schema.Product{ProductIdentifier: "coins"},
	}
	params, _ := json.Marshal(intent)
	request := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: schema.EventStorePaymentReceived, Params: params, Id: 1}
	response := &jsonrpc.Response{}
	handler.Serve(context.Background(), request, response)

	require.Nil(t, response.Error)
	var accepted bool
	require.NoError(t, json.Unmarshal(response.Result, &accepted))
	assert.True(t, accepted)
}

func TestHandler_UnknownMethod(t *testing.T) {
	handler := NewHandler(New(&mockTransport{}))

	request := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "PaymentQueue#bogus", Id: 1}
	response := &jsonrpc.Response{}
	handler.Serve(context.Background(), request, response)
	require.NotNil(t, response.Error)
	assert.Equal(t, -32601, response.Error.Code)
}

func TestHandler_RestoreEvents(t *testing.T) {
	queue := New(&mockTransport{})
	observer := &recordingObserver{}
	require.NoError(t, queue.SetTransactionObserver(context.Background(), observer))
	handler := NewHandler(queue)

	handler.OnNotification(context.Background(), &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version, Method: schema.EventRestoreFinished,
	})
	params, _ := json.Marshal(&schema.TransactionError{Code: 11, Domain: "SKErrorDomain", Message: "cloud unavailable"})
	handler.OnNotification(context.Background(), &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version, Method: schema.EventRestoreFailed, Params: params,
	})

	assert.Equal(t, []string{"restoreFinished", "restoreFailed"}, observer.recorded())
}
