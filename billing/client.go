package billing

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/memspace/iap/internal/collection"
	"github.com/memspace/iap/schema"
)

// ConnectionState represents the billing connection lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateReady
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// UnsolicitedPurchaseHandler receives purchases that match no outstanding
// billing flow; it owns consuming or acknowledging them, never entitlement.
type UnsolicitedPurchaseHandler func(purchases []*schema.Purchase)

// Client represents one native billing client identified by an opaque
// handle. Every operation other than StartConnection and EndConnection
// requires the ready state.
type Client struct {
	handle       uint64
	manager      *Manager
	logger       *zap.Logger
	onDisconnect func()
	unsolicited  UnsolicitedPurchaseHandler

	// sku details records returned by querySkuDetails, keyed by the handle
	// the native layer assigned; billing flows reference them by handle
	skuDetails *collection.SyncMap[uint64, *schema.SkuDetails]

	mux      sync.Mutex
	state    ConnectionState
	started  bool
	released bool
	flow     *flowOperation
}

type flowOutcome struct {
	purchase *schema.Purchase
	err      error
}

type flowOperation struct {
	sku  string
	done chan flowOutcome
}

// Handle returns the client handle.
func (c *Client) Handle() uint64 {
	return c.handle
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state
}

// StartConnection moves the client to connecting and asks the native layer
// to set up the billing service connection. Only one connection attempt may
// be in flight; starting another while connecting is rejected.
func (c *Client) StartConnection(ctx context.Context) (schema.BillingResponse, error) {
	c.mux.Lock()
	if c.released {
		c.mux.Unlock()
		return 0, schema.NewClientNotFound()
	}
	switch c.state {
	case StateConnecting:
		c.mux.Unlock()
		return 0, schema.NewOperationInProgress("connection")
	case StateReady:
		c.mux.Unlock()
		return schema.ResponseCodeOK, nil
	}
	c.state = StateConnecting
	c.started = true
	c.mux.Unlock()

	code, err := send[schema.BillingResponse](ctx, c.manager.transport, schema.MethodClientStartConnection, c.handle)
	c.mux.Lock()
	if err != nil || *code != schema.ResponseCodeOK {
		c.state = StateDisconnected
	} else if c.state == StateConnecting {
		c.state = StateReady
	}
	c.mux.Unlock()
	if err != nil {
		return 0, err
	}
	return *code, nil
}

// EndConnection tears down the native connection and releases the client
// handle. It is idempotent: calling it on a client that never connected, or
// twice, is a no-op.
func (c *Client) EndConnection(ctx context.Context) error {
	c.mux.Lock()
	if !c.started || c.released {
		c.mux.Unlock()
		return nil
	}
	c.mux.Unlock()

	if err := c.manager.call(ctx, schema.MethodClientEndConnection, c.handle); err != nil {
		return err
	}
	c.mux.Lock()
	c.released = true
	c.state = StateDisconnected
	operation := c.flow
	c.flow = nil
	c.mux.Unlock()
	if operation != nil {
		operation.done <- flowOutcome{err: schema.NewResponseError(schema.ResponseCodeServiceDisconnected)}
	}
	c.releaseSkuDetails()
	_ = c.manager.clients.Release(c.handle)
	return nil
}

// releaseSkuDetails drops the fetched sku details records; their native
// counterparts are torn down with the connection, so the handles are dead.
func (c *Client) releaseSkuDetails() {
	count := c.skuDetails.Len()
	if count == 0 {
		return
	}
	handles := make([]uint64, 0, count)
	c.skuDetails.Range(func(detailsHandle uint64, _ *schema.SkuDetails) bool {
		handles = append(handles, detailsHandle)
		return true
	})
	for _, detailsHandle := range handles {
		c.skuDetails.Delete(detailsHandle)
	}
	c.logger.Debug("released sku details", zap.Int("count", count))
}

// IsReady asks the native layer whether the billing service connection is
// usable.
func (c *Client) IsReady(ctx context.Context) (bool, error) {
	c.mux.Lock()
	released := c.released
	c.mux.Unlock()
	if released {
		return false, schema.NewClientNotFound()
	}
	ret, err := send[bool](ctx, c.manager.transport, schema.MethodClientIsReady, c.handle)
	if err != nil {
		return false, err
	}
	return *ret, nil
}

// IsFeatureSupported reports whether the native billing service supports a
// feature.
func (c *Client) IsFeatureSupported(ctx context.Context, feature string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	ret, err := send[bool](ctx, c.manager.transport, schema.MethodClientIsFeatureSupported,
		&schema.FeatureParams{Handle: c.handle, Feature: feature})
	if err != nil {
		return false, err
	}
	return *ret, nil
}

// Consume consumes a purchase so the product can be bought again.
func (c *Client) Consume(ctx context.Context, purchaseToken string) (schema.BillingResponse, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	ret, err := send[schema.BillingResponse](ctx, c.manager.transport, schema.MethodClientConsume,
		&schema.ConsumeParams{Handle: c.handle, PurchaseToken: purchaseToken})
	if err != nil {
		return 0, err
	}
	return *ret, nil
}

// QueryPurchases returns the currently owned purchases of a sku type.
func (c *Client) QueryPurchases(ctx context.Context, skuType string) (*schema.PurchasesResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return send[schema.PurchasesResult](ctx, c.manager.transport, schema.MethodClientQueryPurchases,
		&schema.QueryPurchasesParams{Handle: c.handle, SkuType: skuType})
}

// QueryPurchaseHistory returns the most recent purchase of each sku, even if
// no longer owned.
func (c *Client) QueryPurchaseHistory(ctx context.Context, skuType string) (*schema.PurchasesResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return send[schema.PurchasesResult](ctx, c.manager.transport, schema.MethodClientQueryHistory,
		&schema.QueryPurchasesParams{Handle: c.handle, SkuType: skuType})
}

// QuerySkuDetails fetches catalog records for the supplied skus and registers
// them under their native assigned handles for later billing flows.
func (c *Client) QuerySkuDetails(ctx context.Context, skuType string, skus []string) (*schema.SkuDetailsResult, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ret, err := send[schema.SkuDetailsResult](ctx, c.manager.transport, schema.MethodClientQuerySkuDetails,
		&schema.QuerySkuDetailsParams{Handle: c.handle, SkuType: skuType, Skus: skus})
	if err != nil {
		return nil, err
	}
	for _, details := range ret.SkuDetails {
		c.skuDetails.Put(details.Handle, details)
	}
	return ret, nil
}

// SkuDetails returns a previously fetched sku details record by handle.
func (c *Client) SkuDetails(detailsHandle uint64) (*schema.SkuDetails, bool) {
	return c.skuDetails.Get(detailsHandle)
}

// LaunchBillingFlow starts the purchase dialog for a previously fetched sku
// details record. The returned response code only acknowledges the launch;
// the purchase outcome arrives as a later purchases update.
func (c *Client) LaunchBillingFlow(ctx context.Context, params *schema.BillingFlowParams) (schema.BillingResponse, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if _, ok := c.skuDetails.Get(params.SkuDetails); !ok {
		return 0, schema.NewHandleNotFound(params.SkuDetails)
	}
	ret, err := send[schema.BillingResponse](ctx, c.manager.transport, schema.MethodClientLaunchBillingFlow,
		&schema.LaunchBillingFlowParams{Handle: c.handle, Params: *params})
	if err != nil {
		return 0, err
	}
	return *ret, nil
}

// LaunchPriceChangeConfirmation shows the price change confirmation dialog
// for a subscription sku.
func (c *Client) LaunchPriceChangeConfirmation(ctx context.Context, detailsHandle uint64) (schema.BillingResponse, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if _, ok := c.skuDetails.Get(detailsHandle); !ok {
		return 0, schema.NewHandleNotFound(detailsHandle)
	}
	ret, err := send[schema.BillingResponse](ctx, c.manager.transport, schema.MethodClientLaunchPriceChange,
		&schema.PriceChangeParams{Handle: c.handle, SkuDetails: detailsHandle})
	if err != nil {
		return 0, err
	}
	return *ret, nil
}

// LoadRewardedSku prepares a rewarded sku for a billing flow.
func (c *Client) LoadRewardedSku(ctx context.Context, detailsHandle uint64) (schema.BillingResponse, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if _, ok := c.skuDetails.Get(detailsHandle); !ok {
		return 0, schema.NewHandleNotFound(detailsHandle)
	}
	ret, err := send[schema.BillingResponse](ctx, c.manager.transport, schema.MethodClientLoadRewardedSku,
		&schema.PriceChangeParams{Handle: c.handle, SkuDetails: detailsHandle})
	if err != nil {
		return 0, err
	}
	return *ret, nil
}

// SetChildDirected flags the billing flows as child directed.
func (c *Client) SetChildDirected(ctx context.Context, value int) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.manager.call(ctx, schema.MethodClientSetChildDirected,
		&schema.SetChildDirectedParams{Handle: c.handle, ChildDirected: value})
}

// Purchase launches a billing flow for a fetched sku details record and
// resolves once the matching purchase update arrives. A user cancelled flow
// resolves to a nil purchase and nil error. At most one flow may be
// outstanding per client at a time.
func (c *Client) Purchase(ctx context.Context, details *schema.SkuDetails) (*schema.Purchase, error) {
	c.mux.Lock()
	if c.flow != nil {
		c.mux.Unlock()
		return nil, schema.NewOperationInProgress("billing flow")
	}
	operation := &flowOperation{sku: details.Sku, done: make(chan flowOutcome, 1)}
	c.flow = operation
	c.mux.Unlock()

	code, err := c.LaunchBillingFlow(ctx, &schema.BillingFlowParams{SkuDetails: details.Handle})
	if err != nil {
		c.clearFlow(operation)
		return nil, err
	}
	if code != schema.ResponseCodeOK {
		c.clearFlow(operation)
		return nil, schema.NewResponseError(code)
	}
	select {
	case outcome := <-operation.done:
		return outcome.purchase, outcome.err
	case <-ctx.Done():
		c.clearFlow(operation)
		return nil, ctx.Err()
	}
}

func (c *Client) purchasesUpdated(code schema.BillingResponse, purchases []*schema.Purchase) {
	c.mux.Lock()
	operation := c.flow
	c.mux.Unlock()
	if operation == nil {
		c.handleUnsolicited(purchases)
		return
	}
	if code == schema.ResponseCodeUserCanceled {
		c.resolveFlow(operation, flowOutcome{})
		return
	}
	if code != schema.ResponseCodeOK {
		c.resolveFlow(operation, flowOutcome{err: schema.NewResponseError(code)})
		return
	}
	var matched *schema.Purchase
	var rest []*schema.Purchase
	for _, purchase := range purchases {
		if matched == nil && purchase.Sku == operation.sku {
			matched = purchase
			continue
		}
		rest = append(rest, purchase)
	}
	if matched == nil {
		// the whole batch is unrelated to the outstanding flow
		c.handleUnsolicited(purchases)
		return
	}
	c.resolveFlow(operation, flowOutcome{purchase: matched})
	c.handleUnsolicited(rest)
}

func (c *Client) clearFlow(operation *flowOperation) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.flow == operation {
		c.flow = nil
	}
}

func (c *Client) resolveFlow(operation *flowOperation, outcome flowOutcome) {
	c.mux.Lock()
	if c.flow != operation {
		// already resolved or abandoned
		c.mux.Unlock()
		return
	}
	c.flow = nil
	c.mux.Unlock()
	operation.done <- outcome
}

func (c *Client) handleUnsolicited(purchases []*schema.Purchase) {
	if len(purchases) == 0 {
		return
	}
	if c.unsolicited != nil {
		c.unsolicited(purchases)
		return
	}
	c.logger.Warn("purchases update matches no outstanding flow and no handler is registered",
		zap.Int("count", len(purchases)))
}

func (c *Client) disconnected() {
	c.mux.Lock()
	c.state = StateDisconnected
	operation := c.flow
	c.flow = nil
	onDisconnect := c.onDisconnect
	c.mux.Unlock()
	if operation != nil {
		operation.done <- flowOutcome{err: schema.NewResponseError(schema.ResponseCodeServiceDisconnected)}
	}
	if onDisconnect != nil {
		onDisconnect()
	}
}

func (c *Client) ready() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.released {
		return schema.NewClientNotFound()
	}
	if c.state != StateReady {
		return schema.NewClientNotReady()
	}
	return nil
}
