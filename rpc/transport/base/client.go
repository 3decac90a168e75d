package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
	"github.com/ValentinKolb/ibgw/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// firstRequestID seeds the id allocator, ids up to it are reserved
	firstRequestID int32 = 1000
	// maxIDAttempts bounds the search for a free id when the counter wrapped
	maxIDAttempts = 1024
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// route handles one decoded message kind inside the pump
type route func(msg common.Inbound)

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	codec     serializer.IPayloadCodec
	config    common.ClientConfig

	conn       net.Conn
	writer     *connectionWriter
	correlator *correlator
	session    Session
	routes     map[common.IncomingKind]route
	metricsKey string

	nextRequestID atomic.Int32
	nextValidID   atomic.Int32
	accounts      atomic.Pointer[[]string]

	events    chan common.Inbound
	done      chan struct{}
	connected atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector.
// A nil codec selects the text field codec.
func NewBaseClientTransport(connector IClientConnector, codec serializer.IPayloadCodec) transport.IRPCClientTransport {
	if codec == nil {
		codec = serializer.NewTWSCodec()
	}
	t := &clientTransport{
		connector:  connector,
		codec:      codec,
		correlator: newCorrelator(),
		done:       make(chan struct{}),
	}
	t.nextRequestID.Store(firstRequestID)
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(ctx context.Context, config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if t.connected.Load() || t.closing.Load() {
		return fmt.Errorf("transport already connected")
	}

	config = config.WithDefaults()
	t.config = config

	negotiator, err := newHandshakeNegotiator(config)
	if err != nil {
		return err
	}

	conn, err := t.connector.Connect(ctx, config.Endpoint)
	if err != nil {
		return &common.TransportError{Op: "dial", Err: err}
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %w", config.Endpoint, err)
	}

	// Abort the handshake when the context ends
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	session, err := negotiator.run(conn, config.HandshakeTimeout())
	if !stop() {
		conn.Close()
		return fmt.Errorf("handshake with %s aborted: %w", config.Endpoint, ctx.Err())
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake with %s failed: %w", config.Endpoint, err)
	}

	t.conn = conn
	t.session = session
	t.writer = newConnectionWriter(conn, config.Timeout())
	t.events = make(chan common.Inbound, config.EventBuffer)
	t.routes = t.newRoutes()
	t.metricsKey = registerConnectionMetrics(config.Endpoint, config.ClientID, t.correlator)
	t.connected.Store(true)

	Logger.Infof("Connected to %s using %s transport (server version %d, connection time %q)",
		config.Endpoint, t.connector.GetName(), session.Version, session.ConnTime)

	go t.pump()
	return nil
}

func (t *clientTransport) Call(ctx context.Context, req common.Request, timeout time.Duration) (any, error) {
	if err := t.checkConnected(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = t.config.Timeout()
	}

	start := time.Now()
	requestsTotal.Inc()

	id, entry, err := t.register(req)
	if err != nil {
		return nil, err
	}

	payload, err := t.codec.Encode(id, req)
	if err != nil {
		t.correlator.cancel(id)
		return nil, err
	}

	if err := t.writer.send(payload); err != nil {
		t.correlator.cancel(id)
		Logger.Debugf("Failed to send %s with id %d: %v", req.Kind(), id, err)
		return nil, err
	}

	// Wait for response or timeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-entry.done:
		return t.complete(env, start)
	case <-timer.C:
		if t.correlator.cancel(id) {
			requestTimeoutsTotal.Inc()
			Logger.Warningf("Request %s with id %d timed out after %s", req.Kind(), id, timeout)
			t.cancelAtGateway(req, id)
			return nil, fmt.Errorf("%w: %s with id %d after %s", common.ErrTimeout, req.Kind(), id, timeout)
		}
	case <-ctx.Done():
		if t.correlator.cancel(id) {
			t.cancelAtGateway(req, id)
			return nil, ctx.Err()
		}
	}

	// cancel lost against resolve, the envelope is already buffered
	return t.complete(<-entry.done, start)
}

func (t *clientTransport) Notify(req common.Request) error {
	if err := t.checkConnected(); err != nil {
		return err
	}
	payload, err := t.codec.Encode(0, req)
	if err != nil {
		return err
	}
	return t.writer.send(payload)
}

func (t *clientTransport) ServerVersion() int {
	return t.session.Version
}

func (t *clientTransport) NextValidID() int32 {
	return t.nextValidID.Load()
}

func (t *clientTransport) ManagedAccounts() []string {
	if accounts := t.accounts.Load(); accounts != nil {
		return append([]string(nil), (*accounts)...)
	}
	return nil
}

func (t *clientTransport) Events() <-chan common.Inbound {
	return t.events
}

func (t *clientTransport) Done() <-chan struct{} {
	return t.done
}

func (t *clientTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *clientTransport) Close() error {
	if !t.connected.Load() {
		return nil
	}
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		t.conn.Close()
	})
	<-t.done
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// checkConnected fails fast before Connect and after the pump terminated
func (t *clientTransport) checkConnected() error {
	if !t.connected.Load() {
		return common.ErrNotConnected
	}
	select {
	case <-t.done:
		if err := t.Err(); err != nil {
			return err
		}
		return common.ErrDisconnected
	default:
		return nil
	}
}

// allocateID returns the next request id. The counter wraps back above the reserved range.
func (t *clientTransport) allocateID() int32 {
	for {
		id := t.nextRequestID.Add(1)
		if id > firstRequestID {
			return id
		}
		t.nextRequestID.CompareAndSwap(id, firstRequestID)
	}
}

// register allocates an id and registers the pending entry, skipping ids that are
// still pending after the counter wrapped
func (t *clientTransport) register(req common.Request) (int32, *pendingEntry, error) {
	scoped := false
	if s, ok := req.(common.ScopedRequest); ok {
		scoped = s.Scoped()
	}

	for attempt := 0; ; attempt++ {
		id := t.allocateID()

		var entry *pendingEntry
		var err error
		if scoped {
			entry, err = t.correlator.registerScoped(id, req.ExpectedKind())
		} else {
			entry, err = t.correlator.register(id, req.ExpectedKind())
		}

		if errors.Is(err, common.ErrDuplicateRequestID) && attempt < maxIDAttempts {
			continue
		}
		if errors.Is(err, common.ErrDisconnected) {
			if cause := t.Err(); cause != nil {
				return 0, nil, cause
			}
		}
		return id, entry, err
	}
}

// cancelAtGateway stops a subscription nobody waits for anymore
func (t *clientTransport) cancelAtGateway(req common.Request, id int32) {
	c, ok := req.(common.CancellableRequest)
	if !ok {
		return
	}
	cancelReq, ok := c.CancelRequest(id)
	if !ok {
		return
	}
	if err := t.Notify(cancelReq); err != nil {
		Logger.Debugf("Failed to cancel %s with id %d: %v", req.Kind(), id, err)
	}
}

// complete maps a delivered envelope to the caller's result
func (t *clientTransport) complete(env common.Envelope, start time.Time) (any, error) {
	requestDuration.UpdateDuration(start)
	if env.Err != nil {
		var remote *common.RemoteError
		if errors.As(env.Err, &remote) {
			remoteErrorsTotal.Inc()
		}
		return nil, env.Err
	}
	return env.Response, nil
}

func (t *clientTransport) setErr(err error) {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	t.err = err
}
