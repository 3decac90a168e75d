package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/server"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/ValentinKolb/ibgw/rpc/transport/tcp"
	"github.com/stretchr/testify/require"
)

// newTestClient starts a fake gateway and connects a client to it
func newTestClient(t *testing.T) (IGatewayClient, *server.FakeGateway) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := server.NewFakeGateway(common.DefaultServerConfig(), tcp.NewTCPServerTransport())
	go g.ServeListener(listener)
	t.Cleanup(func() { g.Close() })

	config := common.DefaultClientConfig()
	config.Endpoint = listener.Addr().String()
	config.TimeoutSecond = 5

	c, err := NewGatewayClient(context.Background(), config, tcp.NewTCPClientTransport())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, g
}

// TestHistoricalData tests the typed historical data request
func TestHistoricalData(t *testing.T) {
	c, g := newTestClient(t)
	g.SetBars("AAPL", []market.Bar{
		{Date: "20240102", Open: 185.1, High: 186.7, Low: 183.9, Close: 185.6, Volume: 82488700, WAP: 185.2, BarCount: 1000},
		{Date: "20240103", Open: 184.2, High: 185.9, Low: 183.4, Close: 184.25, Volume: 58414500, WAP: 184.5, BarCount: 900},
	})

	req := common.NewHistoricalDataRequest(market.Stock("AAPL", "SMART", "USD"))
	req.Duration = market.Weeks(1)
	req.BarSize = market.BarSize1Day

	bars, err := c.HistoricalData(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 184.25, bars[1].Close)

	resp, err := c.HistoricalDataResponse(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int32(1002), resp.RequestID)
	require.Equal(t, "20240103", resp.End)
}

// TestHistoricalDataRemoteError tests that gateway errors keep their code
func TestHistoricalDataRemoteError(t *testing.T) {
	c, g := newTestClient(t)
	g.FailSymbol("XXXX", server.CodeNoSecurityDef, "No security definition has been found for the request")

	_, err := c.HistoricalData(context.Background(), common.NewHistoricalDataRequest(market.Stock("XXXX", "SMART", "USD")))
	var remote *common.RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	require.Equal(t, int32(server.CodeNoSecurityDef), remote.Code)
}

// TestAccountValues tests the account download and the unsubscribe afterwards
func TestAccountValues(t *testing.T) {
	c, g := newTestClient(t)
	g.SetAccountValues([]market.AccountValue{
		{Key: "NetLiquidation", Value: "250000.00", Currency: "USD"},
		{Key: "TotalCashValue", Value: "1000.00", Currency: "USD"},
	})

	values, err := c.AccountValues(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, "DU123456", values[0].Account)

	// subscribe and unsubscribe
	require.Eventually(t, func() bool {
		return g.Received(common.OutReqAccountData) == 2
	}, time.Second, 5*time.Millisecond)

	// a second download works once the first one ended
	values, err = c.AccountValues(context.Background(), "DU123456")
	require.NoError(t, err)
	require.Len(t, values, 2)
}

// TestSessionInfo tests the session state exposed by the client
func TestSessionInfo(t *testing.T) {
	c, _ := newTestClient(t)

	require.Equal(t, common.DefaultServerVersion, c.ServerVersion())
	require.Eventually(t, func() bool { return len(c.ManagedAccounts()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), c.NextValidID())

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
}

// TestCancelHistoricalData tests stopping a keep-up-to-date request
func TestCancelHistoricalData(t *testing.T) {
	c, g := newTestClient(t)

	req := common.NewHistoricalDataRequest(market.Stock("SPY", "ARCA", "USD"))
	req.KeepUpToDate = true
	resp, err := c.HistoricalDataResponse(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, c.CancelHistoricalData(resp.RequestID))
	require.Eventually(t, func() bool {
		return g.Received(common.OutCancelHistoricalData) == 1
	}, time.Second, 5*time.Millisecond)
}

// stubTransport answers every call with a fixed response
type stubTransport struct {
	transport.IRPCClientTransport
	resp     any
	notified []common.Request
}

func (s *stubTransport) Call(context.Context, common.Request, time.Duration) (any, error) {
	return s.resp, nil
}

func (s *stubTransport) Notify(req common.Request) error {
	s.notified = append(s.notified, req)
	return nil
}

// TestUnexpectedResponseType tests that a response of the wrong type is a protocol error
func TestUnexpectedResponseType(t *testing.T) {
	stub := &stubTransport{resp: &common.AccountValuesResponse{}}
	c := &gatewayClient{config: common.DefaultClientConfig(), transport: stub}

	_, err := c.HistoricalData(context.Background(), common.NewHistoricalDataRequest(market.Stock("AAPL", "SMART", "USD")))
	var protoErr *common.ProtocolError
	require.True(t, errors.As(err, &protoErr), "got %v", err)

	stub.resp = &common.HistoricalDataResponse{}
	_, err = c.AccountValues(context.Background(), "DU1")
	require.True(t, errors.As(err, &protoErr), "got %v", err)
	require.Equal(t, []common.Request{common.AccountDataRequest{Subscribe: false, Account: "DU1"}}, stub.notified)
}
