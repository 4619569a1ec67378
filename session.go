package iap

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"go.uber.org/zap"

	"github.com/memspace/iap/billing"
	"github.com/memspace/iap/storekit"
)

const (
	queueMethodPrefix   = "PaymentQueue#"
	billingMethodPrefix = "BillingClient#"
)

// Session owns the channel transport, the StoreKit payment queue and the
// billing client manager. It replaces the global singleton queues of the
// original bindings: construct one at the application entry point and pass
// it down.
type Session struct {
	logger    *zap.Logger
	transport transport.Transport
	queue     *storekit.Queue
	billing   *billing.Manager
	handler   *sessionHandler
}

// Option customizes a Session.
type Option func(s *Session)

// WithLogger sets the session logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTransport injects a channel transport directly, bypassing the
// transport configuration in Options.
func WithTransport(aTransport transport.Transport) Option {
	return func(s *Session) {
		s.transport = aTransport
	}
}

// New creates a session, building the channel transport from options unless
// one was injected.
func New(options *Options, opts ...Option) (*Session, error) {
	options.Init()
	ret := &Session{}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = zap.NewNop()
	}
	ret.handler = &sessionHandler{logger: ret.logger}
	if ret.transport == nil {
		aTransport, err := options.getTransport(context.Background(), ret.handler)
		if err != nil {
			return nil, err
		}
		ret.transport = aTransport
	}
	ret.queue = storekit.New(ret.transport, storekit.WithLogger(ret.logger))
	ret.billing = billing.NewManager(ret.transport, billing.WithLogger(ret.logger))
	ret.handler.queue = storekit.NewHandler(ret.queue)
	ret.handler.billing = ret.billing
	return ret, nil
}

// Queue returns the StoreKit payment queue.
func (s *Session) Queue() *storekit.Queue {
	return s.queue
}

// Billing returns the billing client manager.
func (s *Session) Billing() *billing.Manager {
	return s.billing
}

// Handler returns the channel handler routing native to app messages; it is
// what a transport built elsewhere should be wired to.
func (s *Session) Handler() transport.Handler {
	return s.handler
}

// sessionHandler routes native to app messages to the subsystem the method
// name addresses. Both native subsystems share one ordered channel.
type sessionHandler struct {
	logger  *zap.Logger
	queue   transport.Handler
	billing transport.Handler
}

func (h *sessionHandler) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	target := h.target(request.Method)
	if target == nil {
		h.logger.Error("unexpected request from native layer", zap.String("method", request.Method))
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %v not found", request.Method), request.Params)
		return
	}
	target.Serve(ctx, request, response)
}

func (h *sessionHandler) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	target := h.target(notification.Method)
	if target == nil {
		h.logger.Error("unexpected notification from native layer", zap.String("method", notification.Method))
		return
	}
	target.OnNotification(ctx, notification)
}

func (h *sessionHandler) target(method string) transport.Handler {
	switch {
	case strings.HasPrefix(method, queueMethodPrefix):
		return h.queue
	case strings.HasPrefix(method, billingMethodPrefix):
		return h.billing
	}
	return nil
}
