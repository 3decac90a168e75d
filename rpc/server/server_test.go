package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/ibgw/lib/market"
	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/ValentinKolb/ibgw/rpc/transport/base"
	"github.com/ValentinKolb/ibgw/rpc/transport/tcp"
	"github.com/ValentinKolb/ibgw/rpc/transport/unix"
	"github.com/stretchr/testify/require"
)

// startGateway serves a fake gateway on a random local TCP port
func startGateway(t *testing.T) *FakeGateway {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := NewFakeGateway(common.DefaultServerConfig(), tcp.NewTCPServerTransport())
	go g.ServeListener(listener)
	t.Cleanup(func() { g.Close() })

	require.Eventually(t, func() bool { return g.Addr() != nil }, time.Second, time.Millisecond)
	return g
}

// connectClient connects a TCP client transport with the given client id
func connectClient(t *testing.T, g *FakeGateway, clientID int32) transport.IRPCClientTransport {
	t.Helper()

	config := common.DefaultClientConfig()
	config.Endpoint = g.Addr().String()
	config.ClientID = clientID
	config.TimeoutSecond = 5

	tr := tcp.NewTCPClientTransport()
	require.NoError(t, tr.Connect(context.Background(), config))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func historicalRequest(symbol string) common.HistoricalDataRequest {
	return common.NewHistoricalDataRequest(market.Stock(symbol, "SMART", "USD"))
}

// TestFakeGatewaySession tests the handshake and the session announcements
func TestFakeGatewaySession(t *testing.T) {
	g := startGateway(t)
	tr := connectClient(t, g, 1)

	require.Equal(t, common.DefaultServerVersion, tr.ServerVersion())
	require.Eventually(t, func() bool {
		return tr.NextValidID() == 1 && len(tr.ManagedAccounts()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"DU123456"}, tr.ManagedAccounts())
	require.Eventually(t, func() bool { return g.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

// TestFakeGatewayHistoricalData tests canned and synthetic bars
func TestFakeGatewayHistoricalData(t *testing.T) {
	g := startGateway(t)
	canned := []market.Bar{
		{Date: "20240102", Open: 185.1, High: 186.7, Low: 183.9, Close: 185.6, Volume: 82488700, WAP: 185.2, BarCount: 1000},
		{Date: "20240103", Open: 184.2, High: 185.9, Low: 183.4, Close: 184.25, Volume: 58414500, WAP: 184.5, BarCount: 900},
	}
	g.SetBars("AAPL", canned)

	tr := connectClient(t, g, 1)

	resp, err := tr.Call(context.Background(), historicalRequest("AAPL"), 0)
	require.NoError(t, err)
	hist := resp.(*common.HistoricalDataResponse)
	require.Equal(t, int32(1001), hist.RequestID)
	require.Equal(t, canned, hist.Bars)
	require.Equal(t, "20240102", hist.Start)
	require.Equal(t, "20240103", hist.End)

	resp, err = tr.Call(context.Background(), historicalRequest("MSFT"), 0)
	require.NoError(t, err)
	require.Len(t, resp.(*common.HistoricalDataResponse).Bars, common.DefaultServerBars)
	require.Equal(t, int64(2), g.Received(common.OutReqHistoricalData))
}

// TestFakeGatewayOutOfOrder tests that a delayed answer is overtaken by a later request
func TestFakeGatewayOutOfOrder(t *testing.T) {
	g := startGateway(t)
	g.SetDelay("SLOW", 200*time.Millisecond)
	tr := connectClient(t, g, 1)

	slow := make(chan error, 1)
	go func() {
		_, err := tr.Call(context.Background(), historicalRequest("SLOW"), 0)
		slow <- err
	}()
	require.Eventually(t, func() bool { return g.Received(common.OutReqHistoricalData) == 1 }, time.Second, time.Millisecond)

	resp, err := tr.Call(context.Background(), historicalRequest("FAST"), 0)
	require.NoError(t, err)
	require.Equal(t, int32(1002), resp.(*common.HistoricalDataResponse).RequestID)

	select {
	case err := <-slow:
		t.Fatalf("slow request finished first: %v", err)
	default:
	}
	require.NoError(t, <-slow)
}

// TestFakeGatewayFailAndDrop tests remote errors and unanswered requests
func TestFakeGatewayFailAndDrop(t *testing.T) {
	g := startGateway(t)
	g.FailSymbol("XXXX", CodeNoSecurityDef, "No security definition has been found")
	g.Drop("NEVER")
	tr := connectClient(t, g, 1)

	_, err := tr.Call(context.Background(), historicalRequest("XXXX"), 0)
	var remote *common.RemoteError
	require.True(t, errors.As(err, &remote), "got %v", err)
	require.Equal(t, int32(CodeNoSecurityDef), remote.Code)

	_, err = tr.Call(context.Background(), historicalRequest("NEVER"), 100*time.Millisecond)
	require.ErrorIs(t, err, common.ErrTimeout)
}

// TestFakeGatewayAccountValues tests the account download over a unix socket
func TestFakeGatewayAccountValues(t *testing.T) {
	socket := t.TempDir() + "/gw.sock"

	config := common.DefaultServerConfig()
	config.Endpoint = socket
	config.Transport = "unix"
	g := NewFakeGateway(config, unix.NewUnixServerTransport())
	g.SetAccountValues([]market.AccountValue{
		{Key: "NetLiquidation", Value: "250000.00", Currency: "USD"},
		{Key: "BuyingPower", Value: "1000000.00", Currency: "USD"},
		{Key: "CashBalance", Value: "10.00", Currency: "USD", Account: "DU999999"},
	})
	go g.Serve()
	t.Cleanup(func() { g.Close() })
	require.Eventually(t, func() bool { return g.Addr() != nil }, time.Second, time.Millisecond)

	clientConfig := common.DefaultClientConfig()
	clientConfig.Endpoint = socket
	tr := unix.NewUnixClientTransport()
	require.NoError(t, tr.Connect(context.Background(), clientConfig))
	defer tr.Close()

	resp, err := tr.Call(context.Background(), common.AccountDataRequest{Subscribe: true}, 0)
	require.NoError(t, err)
	account := resp.(*common.AccountValuesResponse)
	require.Equal(t, "DU123456", account.Account)
	require.Len(t, account.Values, 2)
	require.Equal(t, "BuyingPower", account.Values[1].Key)
	require.Equal(t, "DU123456", account.Values[1].Account)
}

// TestFakeGatewayDuplicateClientID tests that a second session with the same client id is rejected
func TestFakeGatewayDuplicateClientID(t *testing.T) {
	g := startGateway(t)
	connectClient(t, g, 7)
	require.Eventually(t, func() bool { return g.Clients() == 1 }, time.Second, 5*time.Millisecond)

	second := connectClient(t, g, 7)
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate client was not disconnected")
	}

	var rejected bool
	for msg := range second.Events() {
		if msg.Kind == common.InError && msg.Err.Code == CodeClientIDInUse {
			rejected = true
		}
	}
	require.True(t, rejected)
}

// TestFakeGatewayKeepUpToDate tests the bar update after a keep-up-to-date request and
// the cancel request
func TestFakeGatewayKeepUpToDate(t *testing.T) {
	g := startGateway(t)
	tr := connectClient(t, g, 1)

	req := historicalRequest("SPY")
	req.KeepUpToDate = true
	resp, err := tr.Call(context.Background(), req, 0)
	require.NoError(t, err)
	id := resp.(*common.HistoricalDataResponse).RequestID

	var update *common.HistoricalBarUpdate
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-tr.Events():
				if msg.Kind == common.InHistoricalDataUpdate {
					update = msg.Payload.(*common.HistoricalBarUpdate)
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, id, update.RequestID)

	require.NoError(t, tr.Notify(common.CancelHistoricalDataRequest{TargetID: id}))
	require.Eventually(t, func() bool { return g.Received(common.OutCancelHistoricalData) == 1 }, time.Second, 5*time.Millisecond)
}

// TestFakeGatewayRejectsOldClients tests that a version range above the gateway fails the handshake
func TestFakeGatewayRejectsOldClients(t *testing.T) {
	g := startGateway(t)

	config := common.DefaultClientConfig()
	config.Endpoint = g.Addr().String()
	config.VersionRange = "v180..190"

	tr := tcp.NewTCPClientTransport()
	err := tr.Connect(context.Background(), config)
	var transportErr *common.TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
}

// TestServeConnPipe tests serving an in-memory connection directly
func TestServeConnPipe(t *testing.T) {
	g := NewFakeGateway(common.DefaultServerConfig(), nil)
	client, server := net.Pipe()
	go g.ServeConn(server)
	defer client.Close()

	_, err := client.Write([]byte("API\x00\x00\x00\x00\x09v100..176"))
	require.NoError(t, err)

	header := make([]byte, 4)
	_, err = client.Read(header)
	require.NoError(t, err)
	require.NotZero(t, header[3])
}

// rawSession completes the handshake over a pipe by hand and consumes the session
// announcements
func rawSession(t *testing.T, g *FakeGateway, versionRange string) net.Conn {
	t.Helper()

	client, server := net.Pipe()
	go g.ServeConn(server)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.SetDeadline(time.Now().Add(5*time.Second)))

	_, err := client.Write(append([]byte("API\x00"), base.EncodeFrame([]byte(versionRange))...))
	require.NoError(t, err)
	_, err = base.ReadFrame(client, 0)
	require.NoError(t, err)

	start, err := serializer.EncodeFields(int(common.OutStartAPI), 2, 1, "")
	require.NoError(t, err)
	_, err = client.Write(base.EncodeFrame(start))
	require.NoError(t, err)

	require.Equal(t, common.InNextValidID, nextKind(t, client))
	require.Equal(t, common.InManagedAccounts, nextKind(t, client))
	return client
}

// nextKind reads one frame and returns its message kind
func nextKind(t *testing.T, conn net.Conn) common.IncomingKind {
	t.Helper()

	payload, err := base.ReadFrame(conn, 0)
	require.NoError(t, err)
	c, err := serializer.NewFieldCursor(payload)
	require.NoError(t, err)
	return common.IncomingKind(c.NextInt())
}

// TestFakeGatewayHistoricalDataEnd tests that the end marker follows the bars only for
// sessions that negotiated a version supporting it
func TestFakeGatewayHistoricalDataEnd(t *testing.T) {
	tests := []struct {
		name          string
		serverVersion int
		versionRange  string
		wantEnd       bool
	}{
		{"old session", 176, "v100..176", false},
		{"new session", MinVersionHistoricalDataEnd, "v100..200", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := common.DefaultServerConfig()
			config.ServerVersion = tt.serverVersion
			g := NewFakeGateway(config, nil)
			conn := rawSession(t, g, tt.versionRange)

			req, err := serializer.NewTWSCodec().Encode(1001, historicalRequest("AAPL"))
			require.NoError(t, err)
			// an unsupported request is answered with an error, it marks the end of the answer
			unsupported, err := serializer.EncodeFields(99, 1)
			require.NoError(t, err)

			// the pipe is unbuffered, the gateway answers while the requests are written
			go conn.Write(append(base.EncodeFrame(req), base.EncodeFrame(unsupported)...))

			require.Equal(t, common.InHistoricalData, nextKind(t, conn))
			if tt.wantEnd {
				require.Equal(t, common.InHistoricalDataEnd, nextKind(t, conn))
			}
			require.Equal(t, common.InError, nextKind(t, conn))
		})
	}
}
