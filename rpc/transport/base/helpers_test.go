package base

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
	"github.com/stretchr/testify/require"
)

// pipeConnector connects the transport to an in-memory gateway
type pipeConnector struct {
	serve func(conn net.Conn)
}

func (c *pipeConnector) Connect(_ context.Context, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	go c.serve(server)
	return client, nil
}

func (c *pipeConnector) GetName() string { return "pipe" }

func (c *pipeConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// peerHandshake runs the gateway side of the handshake and returns the start
// session fields
func peerHandshake(conn net.Conn, reply string) ([]string, error) {
	prefix := make([]byte, len(apiPrefix))
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return nil, err
	}
	if string(prefix) != "API\x00" {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	if _, err := ReadFrame(conn, 0); err != nil {
		return nil, err
	}
	if _, err := conn.Write(EncodeFrame([]byte(reply))); err != nil {
		return nil, err
	}
	start, err := ReadFrame(conn, 0)
	if err != nil {
		return nil, err
	}
	return serializer.SplitFields(start)
}

// writeFields sends one framed message
func writeFields(conn net.Conn, values ...interface{}) error {
	payload, err := serializer.EncodeFields(values...)
	if err != nil {
		return err
	}
	_, err = conn.Write(EncodeFrame(payload))
	return err
}

// historicalReply builds a historical data message with n bars, the symbol is
// echoed as start date so callers can check they got their own answer
func historicalReply(id, symbol string, n int) []interface{} {
	values := []interface{}{int(common.InHistoricalData), id, symbol, "20240105", n}
	for i := 0; i < n; i++ {
		values = append(values, fmt.Sprintf("2024010%d", i+2), 1.0, 2.0, 0.5, 1.5, 1000.0, 1.25, 10)
	}
	return values
}

// scriptedPeer completes the handshake, announces the session like a gateway does
// and calls handle for every request
func scriptedPeer(handle func(conn net.Conn, fields []string)) func(conn net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		if _, err := peerHandshake(conn, "176\x0020240102 09:30:00 EST\x00"); err != nil {
			return
		}
		if writeFields(conn, int(common.InNextValidID), 1, 42) != nil {
			return
		}
		if writeFields(conn, int(common.InManagedAccounts), 1, "DU111,DU222") != nil {
			return
		}
		for {
			payload, err := ReadFrame(conn, 0)
			if err != nil {
				return
			}
			fields, err := serializer.SplitFields(payload)
			if err != nil {
				return
			}
			handle(conn, fields)
		}
	}
}

// connectPipe connects a transport to a scripted peer
func connectPipe(t *testing.T, configure func(*common.ClientConfig), handle func(conn net.Conn, fields []string)) *clientTransport {
	t.Helper()

	tr := NewBaseClientTransport(&pipeConnector{serve: scriptedPeer(handle)}, nil).(*clientTransport)
	config := common.DefaultClientConfig()
	config.Endpoint = "pipe"
	config.TimeoutSecond = 5
	if configure != nil {
		configure(&config)
	}

	require.NoError(t, tr.Connect(context.Background(), config))
	t.Cleanup(func() { tr.Close() })
	return tr
}
