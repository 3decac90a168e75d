package client

import (
	"context"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// accountTimeout bounds an account download, it is shorter than the request default
// because the gateway answers from its cache
const accountTimeout = 10 * time.Second

// NewGatewayClient connects the transport and returns the typed client.
//
// Usage:
//
//	c, err := client.NewGatewayClient(ctx, config, tcp.NewTCPClientTransport())
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
func NewGatewayClient(ctx context.Context, config common.ClientConfig, transport transport.IRPCClientTransport) (IGatewayClient, error) {
	if err := transport.Connect(ctx, config); err != nil {
		return nil, err
	}

	Logger.Debugf("Gateway client %d ready (server version %d)", config.ClientID, transport.ServerVersion())
	return &gatewayClient{
		config:    config.WithDefaults(),
		transport: transport,
	}, nil
}

type gatewayClient struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
}

// --------------------------------------------------------------------------
// Interface Methods (docu see client.IGatewayClient)
// --------------------------------------------------------------------------

func (c *gatewayClient) HistoricalData(ctx context.Context, req common.HistoricalDataRequest) ([]market.Bar, error) {
	resp, err := c.HistoricalDataResponse(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

func (c *gatewayClient) HistoricalDataResponse(ctx context.Context, req common.HistoricalDataRequest) (*common.HistoricalDataResponse, error) {
	return invoke[*common.HistoricalDataResponse](ctx, c.transport, req, c.config.Timeout())
}

func (c *gatewayClient) CancelHistoricalData(requestID int32) error {
	return c.transport.Notify(common.CancelHistoricalDataRequest{TargetID: requestID})
}

func (c *gatewayClient) AccountValues(ctx context.Context, account string) ([]market.AccountValue, error) {
	resp, err := invoke[*common.AccountValuesResponse](ctx, c.transport, common.AccountDataRequest{
		Subscribe: true,
		Account:   account,
	}, min(accountTimeout, c.config.Timeout()))

	// the subscription stays open at the gateway until it is cancelled
	if unsubErr := c.transport.Notify(common.AccountDataRequest{Subscribe: false, Account: account}); unsubErr != nil {
		Logger.Debugf("Failed to unsubscribe account updates: %v", unsubErr)
	}

	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *gatewayClient) ServerVersion() int {
	return c.transport.ServerVersion()
}

func (c *gatewayClient) NextValidID() int32 {
	return c.transport.NextValidID()
}

func (c *gatewayClient) ManagedAccounts() []string {
	return c.transport.ManagedAccounts()
}

func (c *gatewayClient) Events() <-chan common.Inbound {
	return c.transport.Events()
}

func (c *gatewayClient) Done() <-chan struct{} {
	return c.transport.Done()
}

func (c *gatewayClient) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// invoke sends a request and checks that the response has the expected type
func invoke[T any](ctx context.Context, transport transport.IRPCClientTransport, req common.Request, timeout time.Duration) (T, error) {
	var zero T

	resp, err := transport.Call(ctx, req, timeout)
	if err != nil {
		return zero, err
	}

	typed, ok := resp.(T)
	if !ok {
		return zero, common.NewProtocolError("unexpected response type %T for %s, expected %T", resp, req.Kind(), zero)
	}
	return typed, nil
}
