package storekit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"go.uber.org/zap"

	"github.com/memspace/iap/schema"
)

// Handler routes native to app payment queue events arriving on the channel.
// An unknown method indicates a version mismatch between the library and the
// native layer and is surfaced loudly, never silently ignored.
type Handler struct {
	queue  *Queue
	logger *zap.Logger
}

// NewHandler creates a channel handler bound to the queue.
func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue, logger: queue.logger}
}

// Serve handles the request/reply events; the only one the native layer
// issues is the store payment intent query, which expects a boolean decision.
func (h *Handler) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	switch request.Method {
	case schema.EventStorePaymentReceived:
		intent := &schema.StorePayment{}
		if err := json.Unmarshal(request.Params, intent); err != nil {
			response.Error = jsonrpc.NewInvalidParamsError(fmt.Sprintf("failed to parse: %v", err), request.Params)
			return
		}
		h.setResponse(response, h.queue.storePaymentReceived(intent))
	default:
		h.logger.Error("unexpected request from native layer", zap.String("method", request.Method))
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v not found", request.Method), request.Params)
	}
}

// OnNotification handles the fire and forget events.
func (h *Handler) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	switch notification.Method {
	case schema.EventTransactionsUpdated:
		var batch map[uint64]*schema.Transaction
		if err := json.Unmarshal(notification.Params, &batch); err != nil {
			h.logger.Error("failed to parse transactions update", zap.Error(err))
			return
		}
		h.queue.transactionsUpdated(orderedTransactions(batch))
	case schema.EventTransactionsRemoved:
		params := &schema.TransactionsRemovedParams{}
		if err := json.Unmarshal(notification.Params, params); err != nil {
			h.logger.Error("failed to parse transactions removal", zap.Error(err))
			return
		}
		h.queue.transactionsRemoved(params.Transactions)
	case schema.EventRestoreFinished:
		h.queue.restoreFinished()
	case schema.EventRestoreFailed:
		transactionError := &schema.TransactionError{}
		if err := json.Unmarshal(notification.Params, transactionError); err != nil {
			h.logger.Error("failed to parse restore failure", zap.Error(err))
			return
		}
		h.queue.restoreFailed(transactionError)
	default:
		h.logger.Error("unexpected notification from native layer", zap.String("method", notification.Method))
	}
}

func (h *Handler) setResponse(response *jsonrpc.Response, result interface{}) {
	var err error
	response.Result, err = json.Marshal(result)
	if err != nil {
		response.Error = jsonrpc.NewInternalError(err.Error(), []byte{})
	}
}

// orderedTransactions restores queue order for a batch keyed by handle;
// handles are assigned monotonically on the native side.
func orderedTransactions(batch map[uint64]*schema.Transaction) []*schema.Transaction {
	handles := make([]uint64, 0, len(batch))
	for transactionHandle := range batch {
		handles = append(handles, transactionHandle)
	}
	slices.Sort(handles)
	ret := make([]*schema.Transaction, 0, len(batch))
	for _, transactionHandle := range handles {
		transaction := batch[transactionHandle]
		transaction.Handle = transactionHandle
		ret = append(ret, transaction)
	}
	return ret
}

var _ transport.Handler = (*Handler)(nil)
