package transport

import (
	"context"
	"net"
	"time"

	"github.com/ValentinKolb/ibgw/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerConnHandleFunc serves one accepted connection until it ends.
// The server transport closes the connection after the function returned.
type ServerConnHandleFunc func(conn net.Conn)

// IRPCServerTransport accepts connections and hands each one to a handler.
// It is used by the fake gateway.
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for accepted connections
	RegisterHandler(handler ServerConnHandleFunc)
	// Listen creates a listener on endpoint and serves it until Close is called
	Listen(endpoint string) error
	// Serve accepts connections on an existing listener until Close is called
	Serve(listener net.Listener) error
	// Addr returns the listening address, nil before Listen or Serve
	Addr() net.Addr
	// Close stops accepting, closes every open connection and waits for the handlers
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for one multiplexed gateway connection.
// Many requests share the connection; every answer is routed back to the caller that
// issued the request.
type IRPCClientTransport interface {
	// Connect dials the endpoint, runs the version handshake and starts the reader.
	// It returns when the session is ready or the handshake failed.
	Connect(ctx context.Context, config common.ClientConfig) error
	// Call sends a request and waits for its completing message. A timeout <= 0 uses
	// the configured default. Remote errors are returned as *common.RemoteError.
	Call(ctx context.Context, req common.Request, timeout time.Duration) (any, error)
	// Notify sends a fire-and-forget request (no id is registered)
	Notify(req common.Request) error
	// ServerVersion returns the version negotiated in the handshake
	ServerVersion() int
	// NextValidID returns the last next-valid-order-id announced by the gateway
	NextValidID() int32
	// ManagedAccounts returns the last account list announced by the gateway
	ManagedAccounts() []string
	// Events returns unsolicited messages and connection scoped errors.
	// The channel is closed when the connection terminates.
	Events() <-chan common.Inbound
	// Done is closed when the reader terminated
	Done() <-chan struct{}
	// Err returns why the reader terminated (nil while connected)
	Err() error
	// Close closes the connection, pending requests fail with common.ErrDisconnected
	Close() error
}
