package iap

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"

	"github.com/memspace/iap/schema"
)

type mockTransport struct {
	mux      sync.Mutex
	requests []*jsonrpc.Request
	results  map[string]any
}

func newMockTransport() *mockTransport {
	return &mockTransport{results: map[string]any{}}
}

func (m *mockTransport) Notify(ctx context.Context, n *jsonrpc.Notification) error { return nil }

func (m *mockTransport) Send(ctx context.Context, r *jsonrpc.Request) (*jsonrpc.Response, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.requests = append(m.requests, r)
	data, err := json.Marshal(m.results[r.Method])
	if err != nil {
		return nil, err
	}
	return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Result: data}, nil
}

var _ transport.Transport = (*mockTransport)(nil)

func TestSession_RoutesByMethodPrefix(t *testing.T) {
	mt := newMockTransport()
	mt.results[schema.MethodClientStartConnection] = schema.ResponseCodeOK
	session, err := New(&Options{}, WithTransport(mt))
	require.NoError(t, err)
	handler := session.Handler()

	// payment queue events land in the queue even before an observer exists
	params, _ := json.Marshal(map[string]*schema.Transaction{
		"1": {State: schema.TransactionPurchased, Payment: &schema.Payment{ID: "p-1", ProductIdentifier: "coins"}},
	})
	handler.OnNotification(context.Background(), &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version, Method: schema.EventTransactionsUpdated, Params: params,
	})
	require.Len(t, session.Queue().Unfinished(), 1)

	// billing events land in the client addressed by handle
	client := session.Billing().NewClient()
	_, err = client.StartConnection(context.Background())
	require.NoError(t, err)
	handleData, _ := json.Marshal(client.Handle())
	handler.OnNotification(context.Background(), &jsonrpc.Notification{
		Jsonrpc: jsonrpc.Version, Method: schema.EventClientDisconnected, Params: handleData,
	})
	_, err = session.Billing().Lookup(client.Handle())
	require.NoError(t, err)

	// a method outside both subsystems is rejected loudly
	request := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: "Unknown#event", Id: 1}
	response := &jsonrpc.Response{}
	handler.Serve(context.Background(), request, response)
	require.NotNil(t, response.Error)
	assert.Equal(t, -32601, response.Error.Code)
}

func TestNew_RequiresTransportConfiguration(t *testing.T) {
	_, err := New(&Options{})
	require.Error(t, err)
}

func TestOptions_Init(t *testing.T) {
	options := &Options{}
	options.Init()
	assert.Equal(t, "IapSession", options.Name)
}
