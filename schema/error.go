package schema

import (
	"fmt"

	"github.com/viant/jsonrpc"
)

// Domain error codes carried over the channel alongside the standard JSON-RPC
// range.
const (
	HandleNotFound      = -32001
	ClientNotFound      = -32002
	ClientNotReady      = -32003
	UnknownTransaction  = -32004
	OperationInProgress = -32005
)

// NewHandleNotFound creates an error for a reference to an unknown or
// released handle.
func NewHandleNotFound(handle uint64) *jsonrpc.Error {
	return jsonrpc.NewError(HandleNotFound, fmt.Sprintf("unknown handle: %v", handle), nil)
}

// NewClientNotFound creates an error for an operation on an uninitialized
// billing client.
func NewClientNotFound() *jsonrpc.Error {
	return jsonrpc.NewError(ClientNotFound, "Must initialize BillingClient with a call to startConnection().", nil)
}

// NewClientNotReady creates an error for an operation issued before the
// billing connection reached the ready state.
func NewClientNotReady() *jsonrpc.Error {
	return jsonrpc.NewError(ClientNotReady, "BillingClient is not ready", nil)
}

// NewUnknownTransaction creates an error for finishing a transaction the
// queue no longer tracks.
func NewUnknownTransaction(handle uint64) *jsonrpc.Error {
	return jsonrpc.NewError(UnknownTransaction, fmt.Sprintf("transaction already finished or unknown: %v", handle), nil)
}

// NewOperationInProgress creates an error for starting a second concurrent
// operation of the same kind.
func NewOperationInProgress(kind string) *jsonrpc.Error {
	return jsonrpc.NewError(OperationInProgress, kind+" operation already in progress", nil)
}
