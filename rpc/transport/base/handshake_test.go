package base

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/stretchr/testify/require"
)

// TestHandshake tests the exchange of greeting, version and start session
func TestHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	config := common.DefaultClientConfig()
	config.ClientID = 7
	h, err := newHandshakeNegotiator(config)
	require.NoError(t, err)
	require.Equal(t, StateDisconnected, h.State())

	startFields := make(chan []string, 1)
	go func() {
		fields, err := peerHandshake(server, "176\x0020240102 09:30:00 EST\x00")
		if err != nil {
			t.Errorf("peer handshake failed: %v", err)
		}
		startFields <- fields
	}()

	session, err := h.run(client, time.Second)
	require.NoError(t, err)
	require.Equal(t, 176, session.Version)
	require.Equal(t, "20240102 09:30:00 EST", session.ConnTime)
	require.Equal(t, StateReady, h.State())

	select {
	case fields := <-startFields:
		require.Equal(t, []string{"71", "2", "7", ""}, fields)
	case <-time.After(time.Second):
		t.Fatal("start session not received")
	}
}

// TestHandshakeReplyErrors tests the rejection of malformed version replies
func TestHandshakeReplyErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty reply", ""},
		{"empty version", "\x00time\x00"},
		{"non numeric version", "abc\x00time\x00"},
		{"version below range", "99\x00time\x00"},
		{"version above range", "200\x00time\x00"},
		{"invalid utf8", "17\xff\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			go peerHandshake(server, tt.reply)

			h, err := newHandshakeNegotiator(common.DefaultClientConfig())
			require.NoError(t, err)

			_, err = h.run(client, time.Second)
			var protoErr *common.ProtocolError
			require.True(t, errors.As(err, &protoErr), "got %v", err)
			require.Equal(t, StateDisconnected, h.State())
		})
	}
}

// TestHandshakeReplyTooLarge tests that an oversized version reply is a protocol error
func TestHandshakeReplyTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go peerHandshake(server, "176\x00"+strings.Repeat("x", 64)+"\x00")

	config := common.DefaultClientConfig()
	config.MaxFrameBytes = 16
	h, err := newHandshakeNegotiator(config)
	require.NoError(t, err)

	_, err = h.run(client, time.Second)
	var protoErr *common.ProtocolError
	require.True(t, errors.As(err, &protoErr), "got %v", err)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Equal(t, StateDisconnected, h.State())
}

// TestHandshakeClosedPeer tests that a peer closing during the handshake is a transport error
func TestHandshakeClosedPeer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
		server.Close()
	}()

	h, err := newHandshakeNegotiator(common.DefaultClientConfig())
	require.NoError(t, err)

	_, err = h.run(client, time.Second)
	var transportErr *common.TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	require.Equal(t, "handshake", transportErr.Op)
}

// TestHandshakeVersionRange tests parsing of the capability range
func TestHandshakeVersionRange(t *testing.T) {
	tests := []struct {
		versionRange string
		valid        bool
	}{
		{"v100..176", true},
		{"v157..157", true},
		{"v176..100", false},
		{"100..176", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.versionRange, func(t *testing.T) {
			config := common.DefaultClientConfig()
			config.VersionRange = tt.versionRange
			_, err := newHandshakeNegotiator(config)
			require.Equal(t, tt.valid, err == nil, "error: %v", err)
		})
	}
}

// TestConnectHandshakeContext tests that Connect gives up when the context ends
// while the gateway does not answer
func TestConnectHandshakeContext(t *testing.T) {
	silent := &pipeConnector{serve: func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}}

	tr := NewBaseClientTransport(silent, nil)
	config := common.DefaultClientConfig()
	config.Endpoint = "pipe"

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tr.Connect(ctx, config)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)

	_, err = tr.Call(context.Background(), common.AccountDataRequest{Subscribe: true}, time.Second)
	require.ErrorIs(t, err, common.ErrNotConnected)
}
