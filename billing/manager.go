// Package billing bridges application code to the native Billing Library
// over a bidirectional JSON-RPC channel. Each client holds an opaque handle
// and a connection state machine; purchase updates arrive on a shared
// broadcast stream and are correlated back to the billing flow that caused
// them.
package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"go.uber.org/zap"

	"github.com/memspace/iap/handle"
	"github.com/memspace/iap/internal/collection"
	"github.com/memspace/iap/schema"
)

// Manager owns the billing client registry and routes native to app events
// to the client identified by their handle.
type Manager struct {
	transport transport.Transport
	logger    *zap.Logger
	clients   *handle.Registry[*Client]
}

// Option customizes a Manager.
type Option func(m *Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a billing client manager bound to the supplied channel
// transport.
func NewManager(aTransport transport.Transport, options ...Option) *Manager {
	ret := &Manager{transport: aTransport, clients: handle.New[*Client]()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = zap.NewNop()
	}
	return ret
}

// ClientOption customizes a Client.
type ClientOption func(c *Client)

// WithOnDisconnect registers a callback invoked when the native service
// drops the connection, so the application can re-initiate it.
func WithOnDisconnect(callback func()) ClientOption {
	return func(c *Client) {
		c.onDisconnect = callback
	}
}

// WithUnsolicitedPurchases registers a handler for purchases that match no
// outstanding billing flow, e.g. purchases completed outside the app.
func WithUnsolicitedPurchases(handler UnsolicitedPurchaseHandler) ClientOption {
	return func(c *Client) {
		c.unsolicited = handler
	}
}

// NewClient allocates a handle and registers a new, disconnected client.
func (m *Manager) NewClient(options ...ClientOption) *Client {
	clientHandle := m.clients.Allocate()
	ret := &Client{
		handle:     clientHandle,
		manager:    m,
		logger:     m.logger.With(zap.Uint64("client", clientHandle)),
		skuDetails: collection.NewSyncMap[uint64, *schema.SkuDetails](),
	}
	for _, opt := range options {
		opt(ret)
	}
	m.clients.Register(clientHandle, ret)
	return ret
}

// Lookup returns the client registered under a handle.
func (m *Manager) Lookup(clientHandle uint64) (*Client, error) {
	return m.clients.Lookup(clientHandle)
}

// Serve implements transport.Handler; the billing channel carries no native
// to app requests, so anything arriving here is a version mismatch.
func (m *Manager) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	m.logger.Error("unexpected request from native layer", zap.String("method", request.Method))
	response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v not found", request.Method), request.Params)
}

// OnNotification routes purchase update and disconnect events by client
// handle.
func (m *Manager) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	switch notification.Method {
	case schema.EventPurchasesUpdated:
		params := &schema.PurchasesUpdatedParams{}
		if err := json.Unmarshal(notification.Params, params); err != nil {
			m.logger.Error("failed to parse purchases update", zap.Error(err))
			return
		}
		client, err := m.clients.Lookup(params.Handle)
		if err != nil {
			m.logger.Error("purchases update for unknown client", zap.Uint64("handle", params.Handle))
			return
		}
		client.purchasesUpdated(params.ResponseCode, params.Purchases)
	case schema.EventClientDisconnected:
		// the payload is the bare client handle
		var clientHandle uint64
		if err := json.Unmarshal(notification.Params, &clientHandle); err != nil {
			m.logger.Error("failed to parse disconnect event", zap.Error(err))
			return
		}
		client, err := m.clients.Lookup(clientHandle)
		if err != nil {
			m.logger.Error("disconnect for unknown client", zap.Uint64("handle", clientHandle))
			return
		}
		client.disconnected()
	default:
		m.logger.Error("unexpected notification from native layer", zap.String("method", notification.Method))
	}
}

func (m *Manager) call(ctx context.Context, method string, parameters any) error {
	request, err := jsonrpc.NewRequest(method, parameters)
	if err != nil {
		return jsonrpc.NewInvalidRequest(err.Error(), nil)
	}
	response, err := m.transport.Send(ctx, request)
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

var _ transport.Handler = (*Manager)(nil)
