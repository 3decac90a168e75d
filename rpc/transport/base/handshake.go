package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/ibgw/rpc/common"
	"github.com/ValentinKolb/ibgw/rpc/serializer"
)

// apiPrefix precedes the version range of the greeting. It is not length prefixed.
var apiPrefix = []byte("API\x00")

// startAPIVersion is the message version of the start session message
const startAPIVersion = 2

// HandshakeState is the state of the version negotiation of one connection
type HandshakeState int32

const (
	StateDisconnected HandshakeState = iota
	StateGreetingSent
	StateVersionReceived
	StateStartSessionSent
	StateReady
)

// String returns the string representation of a HandshakeState.
func (s HandshakeState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateGreetingSent:
		return "greeting-sent"
	case StateVersionReceived:
		return "version-received"
	case StateStartSessionSent:
		return "start-session-sent"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is the result of a successful handshake
type Session struct {
	Version  int    // negotiated server version
	ConnTime string // connection time reported by the gateway, may be empty
}

// handshakeNegotiator runs the version negotiation on a freshly dialed connection.
// It is used once per connection, before the pump owns the read half.
type handshakeNegotiator struct {
	versionRange string
	minVersion   int
	maxVersion   int
	clientID     int32
	maxFrame     int
	state        atomic.Int32
}

// newHandshakeNegotiator parses the capability range ("v100..176") and creates a negotiator
func newHandshakeNegotiator(config common.ClientConfig) (*handshakeNegotiator, error) {
	h := &handshakeNegotiator{
		versionRange: config.VersionRange,
		clientID:     config.ClientID,
		maxFrame:     config.MaxFrameBytes,
	}
	if _, err := fmt.Sscanf(config.VersionRange, "v%d..%d", &h.minVersion, &h.maxVersion); err != nil {
		return nil, fmt.Errorf("invalid version range %q: %w", config.VersionRange, err)
	}
	if h.minVersion > h.maxVersion {
		return nil, fmt.Errorf("invalid version range %q: min > max", config.VersionRange)
	}
	return h, nil
}

// State returns the current handshake state
func (h *handshakeNegotiator) State() HandshakeState {
	return HandshakeState(h.state.Load())
}

func (h *handshakeNegotiator) setState(s HandshakeState) {
	h.state.Store(int32(s))
	Logger.Debugf("Handshake state: %s", s)
}

// run performs greeting, version reply and start session on conn.
// The whole exchange is bounded by timeout (0 disables the deadline).
func (h *handshakeNegotiator) run(conn net.Conn, timeout time.Duration) (Session, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return Session{}, &common.TransportError{Op: "handshake", Err: err}
		}
		// the pump and the writer manage their own deadlines
		defer conn.SetDeadline(time.Time{})
	}

	// Greeting: "API\0" + length prefixed version range, as one write
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(h.versionRange)))
	greeting := net.Buffers{apiPrefix, header, []byte(h.versionRange)}
	if _, err := greeting.WriteTo(conn); err != nil {
		h.setState(StateDisconnected)
		return Session{}, &common.TransportError{Op: "handshake", Err: err}
	}
	h.setState(StateGreetingSent)

	// Version reply
	payload, err := ReadFrame(conn, h.maxFrame)
	if err != nil {
		h.setState(StateDisconnected)
		if errors.Is(err, ErrFrameTooLarge) {
			return Session{}, &common.ProtocolError{Reason: "handshake reply", Err: err}
		}
		return Session{}, &common.TransportError{Op: "handshake", Err: err}
	}
	session, err := h.parseReply(payload)
	if err != nil {
		h.setState(StateDisconnected)
		return Session{}, err
	}
	h.setState(StateVersionReceived)

	// Start session
	w := serializer.NewFieldWriter()
	w.AddInt(int64(common.OutStartAPI))
	w.AddInt(startAPIVersion)
	w.AddInt(int64(h.clientID))
	w.AddEmpty() // optional capabilities
	start, err := w.Payload()
	if err != nil {
		h.setState(StateDisconnected)
		return Session{}, err
	}
	if err := writeFrame(conn, start); err != nil {
		h.setState(StateDisconnected)
		return Session{}, &common.TransportError{Op: "handshake", Err: err}
	}
	h.setState(StateStartSessionSent)

	h.setState(StateReady)
	return session, nil
}

// parseReply reads the negotiated version (field 0) and the connection time (field 1)
func (h *handshakeNegotiator) parseReply(payload []byte) (Session, error) {
	fields, err := serializer.SplitFields(payload)
	if err != nil {
		return Session{}, &common.ProtocolError{Reason: "invalid handshake reply", Err: err}
	}
	if len(fields) == 0 || fields[0] == "" {
		return Session{}, common.NewProtocolError("handshake reply carries no server version")
	}

	version, err := strconv.Atoi(fields[0])
	if err != nil {
		return Session{}, &common.ProtocolError{Reason: fmt.Sprintf("server version %q is not numeric", fields[0]), Err: err}
	}
	if version < h.minVersion || version > h.maxVersion {
		return Session{}, common.NewProtocolError("server version %d outside of %s", version, h.versionRange)
	}

	session := Session{Version: version}
	if len(fields) > 1 {
		session.ConnTime = fields[1]
	}
	return session, nil
}
